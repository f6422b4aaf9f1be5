package app

import (
	"context"
	"errors"
	"time"

	"sendlater/internal/blobstore"
	"sendlater/internal/eventbus"
	"sendlater/internal/journal"
	"sendlater/internal/registry"
	logx "sendlater/pkg/logx"
)

func (a *App) recoverJournal(ctx context.Context) error {
	return recoverJournal(ctx, a.jour, a.reg, a.blobs, a.bus, a.log)
}

// recoverJournal replays the durable task records left by the previous run.
// Records whose trigger is still in the future are re-armed; records whose
// trigger passed while the process was down are failed (event published,
// payload and record released). Delivering stale media late would be worse
// than reporting the miss.
func recoverJournal(ctx context.Context, jour journal.Store, reg *registry.Registry, blobs blobstore.Store, bus eventbus.Bus, log logx.Logger) error {
	if jour == nil {
		return nil
	}
	recs, err := jour.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	now := time.Now()
	restored, expired := 0, 0
	for _, rec := range recs {
		if rec.TriggerAt.After(now) {
			if err := reg.Restore(rec); err != nil {
				log.Warn("task restore failed", logx.String("id", rec.ID), logx.Err(err))
				continue
			}
			restored++
			continue
		}

		// Expired during downtime.
		bus.Publish(eventbus.Event{
			Type: eventbus.TypeTaskFailed,
			Data: eventbus.TaskFailed{
				ID:          rec.ID,
				Destination: rec.Destination,
				Error:       "trigger time passed while service was down",
			},
		})
		if err := blobs.Remove(rec.PayloadRef); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			log.Warn("expired payload removal failed", logx.String("id", rec.ID), logx.Err(err))
		}
		if err := jour.Delete(ctx, rec.ID); err != nil {
			log.Warn("expired record removal failed", logx.String("id", rec.ID), logx.Err(err))
		}
		expired++
	}

	log.Info("journal recovered",
		logx.Int("restored", restored), logx.Int("expired", expired))
	return nil
}
