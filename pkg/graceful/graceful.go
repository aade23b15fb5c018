// Package graceful is the single place the domain core and the HTTP adapter
// go to turn an error into a consistently coded outcome: ContextError, the
// ErrorCode taxonomy, and the sentinel-error mapping registered at init.
package graceful
