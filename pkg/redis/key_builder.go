package redis

import "strings"

// KeyBuilder produces namespaced cache keys of the form
// namespace:context:entity[:attribute], lowercased throughout.
type KeyBuilder struct {
	namespace string
	context   string
}

// NewKeyBuilder returns a builder rooted at namespace:context.
func NewKeyBuilder(namespace, context string) *KeyBuilder {
	return &KeyBuilder{
		namespace: strings.ToLower(namespace),
		context:   strings.ToLower(context),
	}
}

// Build returns the key for entity, optionally qualified by attribute.
func (kb *KeyBuilder) Build(entity, attribute string) string {
	parts := []string{kb.namespace, kb.context, strings.ToLower(entity)}
	if attribute != "" {
		parts = append(parts, strings.ToLower(attribute))
	}
	return strings.Join(parts, ":")
}

// BuildPattern returns a SCAN pattern covering entity's keys.
func (kb *KeyBuilder) BuildPattern(entity, pattern string) string {
	if pattern == "" {
		pattern = "*"
	}
	return strings.Join([]string{kb.namespace, kb.context, strings.ToLower(entity), pattern}, ":")
}
