// Package scheduling is the thin orchestration layer between the HTTP
// boundary and the task registry: it validates inbound requests, guarantees
// a rejected request never leaves an orphaned upload, and proxies channel
// readiness for read paths.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sendlater/internal/blobstore"
	"sendlater/internal/config"
	"sendlater/internal/metrics"
	"sendlater/internal/registry"
	"sendlater/internal/transport"
	logx "sendlater/pkg/logx"
)

// ScheduleRequest carries one validated-on-entry schedule call.
// PayloadRef is the already-stored upload ("" when no file arrived).
type ScheduleRequest struct {
	ID          string
	Destination string
	PayloadRef  string
	TriggerAt   string // raw scheduleTime field
}

type Service struct {
	reg     *registry.Registry
	blobs   blobstore.Store
	status  transport.ChannelStatus
	metrics *metrics.Metrics
	log     logx.Logger
	now     func() time.Time

	mu    sync.RWMutex
	dests []config.Destination
}

func New(reg *registry.Registry, blobs blobstore.Store, status transport.ChannelStatus, m *metrics.Metrics, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		reg:     reg,
		blobs:   blobs,
		status:  status,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Apply updates the configured destination set (hot reload).
func (s *Service) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.dests = append([]config.Destination(nil), cfg.Destinations...)
	s.mu.Unlock()
}

// RequestSchedule validates req and delegates to the registry. On every
// rejection path the stored payload is removed so no upload is orphaned.
func (s *Service) RequestSchedule(ctx context.Context, req ScheduleRequest) (string, error) {
	reject := func(reason string, err error) (string, error) {
		s.discard(req.PayloadRef)
		s.metrics.Rejected(reason)
		s.log.Debug("schedule rejected",
			logx.String("id", req.ID), logx.String("reason", reason), logx.Err(err))
		return "", err
	}

	if strings.TrimSpace(req.PayloadRef) == "" {
		return reject("no_file", ErrNoFile)
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Destination) == "" ||
		strings.TrimSpace(req.TriggerAt) == "" {
		return reject("missing_field", ErrMissingField)
	}

	triggerAt, err := ParseScheduleTime(req.TriggerAt)
	if err != nil {
		return reject("bad_time", fmt.Errorf("%w: %v", ErrBadTime, err))
	}

	if err := s.reg.Schedule(ctx, req.ID, req.Destination, req.PayloadRef, triggerAt); err != nil {
		reason := "error"
		switch {
		case errors.Is(err, registry.ErrPastTime):
			reason = "past_time"
		case errors.Is(err, registry.ErrDuplicateTask):
			reason = "duplicate"
		}
		return reject(reason, err)
	}
	return req.ID, nil
}

// RequestCancel delegates directly to the registry.
func (s *Service) RequestCancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return registry.ErrNotFound
	}
	return s.reg.Cancel(ctx, id)
}

// Ready proxies the delivery channel's readiness. It gates read-only
// listing, not scheduling: tasks may be created while disconnected.
func (s *Service) Ready() bool {
	return s.status != nil && s.status.Ready()
}

// Pending lists tasks still waiting for their trigger, soonest first.
func (s *Service) Pending() []registry.Info {
	return s.reg.Snapshot()
}

// Destinations lists the configured delivery targets.
func (s *Service) Destinations(ctx context.Context) ([]config.Destination, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]config.Destination(nil), s.dests...), nil
}

func (s *Service) discard(payloadRef string) {
	if strings.TrimSpace(payloadRef) == "" {
		return
	}
	if err := s.blobs.Remove(payloadRef); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.log.Warn("discarding rejected upload failed",
			logx.String("ref", payloadRef), logx.Err(err))
	}
}

// scheduleTimeLayouts are the accepted forms of the scheduleTime field:
// RFC3339 plus the seconds-less ISO shapes produced by datetime-local inputs
// (interpreted in server-local time).
var scheduleTimeLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02T15:04", true},
}

// ParseScheduleTime parses the wire form of a trigger time.
func ParseScheduleTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, l := range scheduleTimeLayouts {
		var t time.Time
		var err error
		if l.local {
			t, err = time.ParseInLocation(l.layout, raw, time.Local)
		} else {
			t, err = time.Parse(l.layout, raw)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", raw)
}
