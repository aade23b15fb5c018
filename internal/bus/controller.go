// Package bus wires the event-broadcast, subscriber-relay, and
// command-relay fabric in pkg/events around the three domain aggregates: it
// is the glue that lets LocationZone events become UpdateLocations commands,
// and lets a saga's Started event fan out per-zone Observe/Forecast/NoteAlert
// work, without the aggregates calling each other directly.
package bus

import (
	"context"
	"sync"

	"github.com/dmrolfs/weatherzone/internal/model/saga"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
	"github.com/dmrolfs/weatherzone/internal/weather"
	"github.com/dmrolfs/weatherzone/pkg/events"
	"github.com/dmrolfs/weatherzone/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// zoneUpdateConcurrency bounds how many per-zone Observe/Forecast submissions
// run at once. A saga touching a large zone fleet should not spawn one
// goroutine per zone; the pool gives backpressure and exposes queue/active
// metrics the way the rest of the command path does.
const zoneUpdateConcurrency = 8

// ZoneUpdateController is the saga-side query described in the saga
// protocol: on every Started event it spawns per-zone Observe, Forecast, and
// (alert-fetch-gated) NoteAlert work against the LocationZone command relay,
// and directly notes the Alert step complete for zones unaffected by any
// active alert.
type ZoneUpdateController struct {
	zoneRelay *events.CommandRelay[zone.Command]
	sagaRelay *events.CommandRelay[saga.Command]
	alertAPI  weather.AlertAPI
	log       *zap.Logger
	pool      *utils.WorkerPool
}

// NewZoneUpdateController constructs a controller wired to the given relays
// and starts its bounded zone-update worker pool.
func NewZoneUpdateController(zoneRelay *events.CommandRelay[zone.Command], sagaRelay *events.CommandRelay[saga.Command], alertAPI weather.AlertAPI, log *zap.Logger) *ZoneUpdateController {
	if log == nil {
		log = zap.NewNop()
	}
	pool := utils.NewWorkerPool("zone-update", zoneUpdateConcurrency)
	pool.Start()
	return &ZoneUpdateController{zoneRelay: zoneRelay, sagaRelay: sagaRelay, alertAPI: alertAPI, log: log, pool: pool}
}

// Stop cancels the zone-update worker pool's context and waits for its
// workers to exit; queued tasks are either skipped or run against the
// cancelled context, so they are not drained. Call during shutdown, after the
// saga query that feeds it has stopped receiving new Started events.
func (c *ZoneUpdateController) Stop() {
	c.pool.Stop()
}

// zoneUpdateTask adapts a closure to utils.Task so per-zone work can be
// submitted to the bounded worker pool.
type zoneUpdateTask struct {
	fn func(ctx context.Context) error
}

func (t zoneUpdateTask) Process(ctx context.Context) error { return t.fn(ctx) }

// Dispatch implements events.Query[saga.Event].
func (c *ZoneUpdateController) Dispatch(ctx context.Context, _ string, evts []events.EventEnvelope[saga.Event]) error {
	for _, envelope := range evts {
		if envelope.Payload.Kind != saga.EvtStarted {
			continue
		}
		c.onStarted(ctx, envelope.Payload.SagaID, envelope.Payload.Zones, envelope.Metadata)
	}
	return nil
}

func (c *ZoneUpdateController) onStarted(ctx context.Context, sagaID string, zones []string, metadata map[string]string) {
	var wg sync.WaitGroup

	submit := func(z string, cmd zone.Command) {
		wg.Add(1)
		task := zoneUpdateTask{fn: func(taskCtx context.Context) error {
			defer wg.Done()
			if err := c.zoneRelay.Submit(taskCtx, z, cmd, metadata); err != nil {
				c.noteFailure(ctx, sagaID, z, metadata)
			}
			return nil
		}}
		if err := c.pool.Submit(task); err != nil {
			wg.Done()
			c.noteFailure(ctx, sagaID, z, metadata)
		}
	}

	for _, z := range zones {
		submit(z, zone.Observe())
		submit(z, zone.ForecastCmd())
	}
	wg.Wait()

	c.fanOutAlerts(ctx, sagaID, zones, metadata)
}

func (c *ZoneUpdateController) fanOutAlerts(ctx context.Context, sagaID string, zones []string, metadata map[string]string) {
	alerts, err := c.alertAPI.ActiveAlerts(ctx)
	if err != nil {
		c.log.Warn("active alerts fetch failed, noting alert step complete for all zones", zap.String("saga_id", sagaID), zap.Error(err))
		for _, z := range zones {
			c.noteAlertStepDone(ctx, sagaID, z, metadata)
		}
		return
	}

	// Per-zone alert work is independent once the single alerts fetch is
	// done; fan it out concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(zoneUpdateConcurrency)
	for _, z := range zones {
		g.Go(func() error {
			matched := false
			for i := range alerts {
				if alerts[i].AffectsZone(z) {
					matched = true
					alert := alerts[i]
					if err := c.zoneRelay.Submit(gctx, z, zone.NoteAlert(&alert), metadata); err != nil {
						c.noteFailure(ctx, sagaID, z, metadata)
					}
				}
			}
			if !matched {
				c.noteAlertStepDone(ctx, sagaID, z, metadata)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *ZoneUpdateController) noteAlertStepDone(ctx context.Context, sagaID, zoneCode string, metadata map[string]string) {
	if err := c.sagaRelay.SubmitAsync(ctx, sagaID, saga.NoteLocationAlertStatusUpdated(zoneCode), metadata); err != nil {
		c.log.Warn("saga relay submit failed", zap.String("saga_id", sagaID), zap.String("zone", zoneCode), zap.Error(err))
	}
}

func (c *ZoneUpdateController) noteFailure(ctx context.Context, sagaID, zoneCode string, metadata map[string]string) {
	if err := c.sagaRelay.SubmitAsync(ctx, sagaID, saga.NoteLocationUpdateFailure(zoneCode), metadata); err != nil {
		c.log.Warn("saga relay submit failed", zap.String("saga_id", sagaID), zap.String("zone", zoneCode), zap.Error(err))
	}
}
