// Package sweeper periodically reaps upload files that no pending task
// references, typically leftovers from crashes or journal-less runs.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sendlater/internal/blobstore"
	logx "sendlater/pkg/logx"
)

type Config struct {
	Enabled   bool
	Every     time.Duration // default 1h
	Retention time.Duration // default 24h
}

func (c Config) withDefaults() Config {
	if c.Every <= 0 {
		c.Every = time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	return c
}

type Service struct {
	cfg   Config
	blobs blobstore.Store
	// live returns the payload refs of currently pending tasks.
	live func() map[string]bool
	log  logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, blobs blobstore.Store, live func() map[string]bool, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), blobs: blobs, live: live, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.Every)
	if _, err := c.AddFunc(spec, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("sweeper started",
		logx.Duration("every", s.cfg.Every), logx.Duration("retention", s.cfg.Retention))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Service) sweep(ctx context.Context) {
	n, err := s.SweepOnce(ctx)
	if err != nil {
		s.log.Warn("sweep failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("swept orphaned uploads", logx.Int("removed", n))
	}
}

// SweepOnce removes unreferenced uploads older than the retention window.
// It returns the number of files removed.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := s.blobs.List()
	if err != nil {
		return 0, err
	}
	live := s.live()
	cutoff := time.Now().Add(-s.cfg.Retention)

	removed := 0
	for _, e := range entries {
		if live[e.Ref] || e.ModTime.After(cutoff) {
			continue
		}
		if err := s.blobs.Remove(e.Ref); err != nil {
			if !errors.Is(err, blobstore.ErrNotFound) {
				s.log.Warn("orphan removal failed", logx.String("ref", e.Ref), logx.Err(err))
			}
			continue
		}
		removed++
	}
	return removed, nil
}
