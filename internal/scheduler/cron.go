// Package scheduler drives the two time- and file-based triggers: a cron job
// that periodically starts an UpdateWeather run, and a watcher that
// hot-reloads the monitored zone set from a config file.
package scheduler

import (
	"context"

	"github.com/dmrolfs/weatherzone/internal/model/registrar"
	"github.com/dmrolfs/weatherzone/pkg/events"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronTrigger starts an UpdateWeather run against the Registrar on a
// robfig/cron/v3 schedule.
type CronTrigger struct {
	cron      *cron.Cron
	registrar *events.Runtime[registrar.State, registrar.Command, registrar.Event]
	log       *zap.Logger
}

// NewCronTrigger parses schedule (a cron expression, e.g. "@every 15m") and
// wires it to issue UpdateWeather against registrarRuntime. The saga id
// UpdateWeather generates is discarded; callers that need it use the HTTP
// surface's synchronous POST instead.
func NewCronTrigger(schedule string, registrarRuntime *events.Runtime[registrar.State, registrar.Command, registrar.Event], log *zap.Logger) (*CronTrigger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &CronTrigger{cron: cron.New(), registrar: registrarRuntime, log: log}
	if _, err := t.cron.AddFunc(schedule, t.trigger); err != nil {
		return nil, err
	}
	return t, nil
}

// Start begins running the cron schedule. It returns immediately; the
// schedule keeps firing until Stop is called.
func (t *CronTrigger) Start() {
	t.cron.Start()
}

// Stop waits for any in-flight job to finish and stops future firings.
func (t *CronTrigger) Stop() {
	<-t.cron.Stop().Done()
}

func (t *CronTrigger) trigger() {
	ctx := context.Background()
	if _, err := t.registrar.Execute(ctx, registrar.SingletonID, registrar.UpdateWeather(nil)); err != nil {
		t.log.Warn("scheduled UpdateWeather failed", zap.Error(err))
	}
}
