package scheduling

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"sendlater/internal/blobstore"
	"sendlater/internal/config"
	"sendlater/internal/eventbus"
	"sendlater/internal/registry"
	logx "sendlater/pkg/logx"
)

type nopDelivery struct{}

func (nopDelivery) SendFile(context.Context, string, string, string) error { return nil }

type stubStatus struct{ ready bool }

func (s stubStatus) Ready() bool { return s.ready }

type memBlobs struct {
	mu   sync.Mutex
	refs map[string]bool
}

func newMemBlobs(refs ...string) *memBlobs {
	b := &memBlobs{refs: map[string]bool{}}
	for _, r := range refs {
		b.refs[r] = true
	}
	return b
}

func (b *memBlobs) Save(_ context.Context, name string, _ io.Reader) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs[name] = true
	return name, nil
}

func (b *memBlobs) Remove(ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.refs[ref] {
		return blobstore.ErrNotFound
	}
	delete(b.refs, ref)
	return nil
}

func (b *memBlobs) Path(ref string) string { return ref }

func (b *memBlobs) List() ([]blobstore.Entry, error) { return nil, nil }

func (b *memBlobs) has(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs[ref]
}

func newService(t *testing.T, ready bool, refs ...string) (*Service, *memBlobs) {
	t.Helper()
	blobs := newMemBlobs(refs...)
	reg := registry.New(registry.Deps{
		Delivery: nopDelivery{},
		Blobs:    blobs,
		Bus:      eventbus.New(),
	})
	t.Cleanup(reg.Close)
	return New(reg, blobs, stubStatus{ready: ready}, nil, logx.Nop()), blobs
}

func futureTime() string {
	return time.Now().Add(time.Hour).Format(time.RFC3339)
}

func TestRequestScheduleValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr error
	}{
		{
			name:    "no file",
			req:     ScheduleRequest{ID: "a", Destination: "g", TriggerAt: futureTime()},
			wantErr: ErrNoFile,
		},
		{
			name:    "missing id",
			req:     ScheduleRequest{Destination: "g", PayloadRef: "f", TriggerAt: futureTime()},
			wantErr: ErrMissingField,
		},
		{
			name:    "missing destination",
			req:     ScheduleRequest{ID: "a", PayloadRef: "f", TriggerAt: futureTime()},
			wantErr: ErrMissingField,
		},
		{
			name:    "missing time",
			req:     ScheduleRequest{ID: "a", Destination: "g", PayloadRef: "f"},
			wantErr: ErrMissingField,
		},
		{
			name:    "bad time",
			req:     ScheduleRequest{ID: "a", Destination: "g", PayloadRef: "f", TriggerAt: "tomorrow-ish"},
			wantErr: ErrBadTime,
		},
		{
			name:    "past time",
			req:     ScheduleRequest{ID: "a", Destination: "g", PayloadRef: "f", TriggerAt: time.Now().Add(-time.Hour).Format(time.RFC3339)},
			wantErr: registry.ErrPastTime,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, blobs := newService(t, true, "f")
			_, err := svc.RequestSchedule(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			// No orphaned uploads on rejection.
			if tt.req.PayloadRef != "" && blobs.has(tt.req.PayloadRef) {
				t.Fatal("rejected upload was not deleted")
			}
		})
	}
}

func TestRequestScheduleDuplicateDeletesSecondFile(t *testing.T) {
	t.Parallel()
	svc, blobs := newService(t, true, "first", "second")
	ctx := context.Background()

	if _, err := svc.RequestSchedule(ctx, ScheduleRequest{
		ID: "dup", Destination: "g", PayloadRef: "first", TriggerAt: futureTime(),
	}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := svc.RequestSchedule(ctx, ScheduleRequest{
		ID: "dup", Destination: "g", PayloadRef: "second", TriggerAt: futureTime(),
	})
	if !errors.Is(err, registry.ErrDuplicateTask) {
		t.Fatalf("err = %v, want ErrDuplicateTask", err)
	}
	if blobs.has("second") {
		t.Fatal("duplicate request's upload was not deleted")
	}
	if !blobs.has("first") {
		t.Fatal("pending task's upload was deleted")
	}
}

func TestRequestCancel(t *testing.T) {
	t.Parallel()
	svc, blobs := newService(t, true, "f")
	ctx := context.Background()

	if _, err := svc.RequestSchedule(ctx, ScheduleRequest{
		ID: "c1", Destination: "g", PayloadRef: "f", TriggerAt: futureTime(),
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := svc.RequestCancel(ctx, "c1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if blobs.has("f") {
		t.Fatal("payload survived cancel")
	}
	if err := svc.RequestCancel(ctx, "c1"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("second cancel: err = %v, want ErrNotFound", err)
	}
	if err := svc.RequestCancel(ctx, ""); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("empty id cancel: err = %v, want ErrNotFound", err)
	}
}

func TestReadyAndDestinations(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, false)
	if svc.Ready() {
		t.Fatal("Ready() = true with disconnected channel")
	}

	svc.Apply(&config.Config{Destinations: []config.Destination{
		{Name: "Family", ID: "1001"},
		{Name: "Work", ID: "1002"},
	}})
	dests, err := svc.Destinations(context.Background())
	if err != nil {
		t.Fatalf("Destinations: %v", err)
	}
	if len(dests) != 2 || dests[0].Name != "Family" {
		t.Fatalf("unexpected destinations: %+v", dests)
	}
}

func TestParseScheduleTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{name: "rfc3339", raw: "2031-06-01T10:30:00Z", ok: true},
		{name: "rfc3339 offset", raw: "2031-06-01T10:30:00+07:00", ok: true},
		{name: "datetime-local seconds", raw: "2031-06-01T10:30:00", ok: true},
		{name: "datetime-local", raw: "2031-06-01T10:30", ok: true},
		{name: "garbage", raw: "soon", ok: false},
		{name: "empty", raw: "", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseScheduleTime(tt.raw)
			if tt.ok && (err != nil || got.IsZero()) {
				t.Fatalf("ParseScheduleTime(%q) = %v, %v", tt.raw, got, err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("ParseScheduleTime(%q) succeeded, want error", tt.raw)
			}
		})
	}
}
