package sweeper

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"sendlater/internal/blobstore"
	logx "sendlater/pkg/logx"
)

func newFixture(t *testing.T, retention time.Duration, live map[string]bool) (*Service, blobstore.Store) {
	t.Helper()
	blobs, err := blobstore.NewDisk(t.TempDir(), 1<<20, logx.Nop())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	svc := New(Config{Enabled: true, Retention: retention}, blobs, func() map[string]bool {
		out := make(map[string]bool, len(live))
		for k, v := range live {
			out[k] = v
		}
		return out
	}, logx.Nop())
	return svc, blobs
}

func save(t *testing.T, blobs blobstore.Store, name, body string) string {
	t.Helper()
	ref, err := blobs.Save(context.Background(), name, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return ref
}

// age back-dates a payload file so it falls outside the retention window.
func age(t *testing.T, path string, by time.Duration) {
	t.Helper()
	old := time.Now().Add(-by)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func TestSweepOnceRemovesOrphans(t *testing.T) {
	t.Parallel()
	live := map[string]bool{}
	svc, blobs := newFixture(t, time.Hour, live)

	orphan := save(t, blobs, "orphan.jpg", "x")
	pending := save(t, blobs, "pending.jpg", "y")
	fresh := save(t, blobs, "fresh.jpg", "z")

	age(t, orphan, 2*time.Hour)
	age(t, pending, 2*time.Hour)
	live[pending] = true

	n, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}

	entries, err := blobs.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := map[string]bool{}
	for _, e := range entries {
		got[e.Ref] = true
	}
	if got[orphan] {
		t.Error("orphan survived the sweep")
	}
	if !got[pending] {
		t.Error("live payload was removed")
	}
	if !got[fresh] {
		t.Error("payload inside retention window was removed")
	}
}

func TestSweepOnceEmptyStore(t *testing.T) {
	t.Parallel()
	svc, _ := newFixture(t, time.Hour, nil)
	n, err := svc.SweepOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("SweepOnce = %d, %v", n, err)
	}
}

func TestSweepOnceHonorsContext(t *testing.T) {
	t.Parallel()
	svc, _ := newFixture(t, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.SweepOnce(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestStartStopDisabled(t *testing.T) {
	t.Parallel()
	svc, _ := newFixture(t, time.Hour, nil)
	svc.cfg.Enabled = false

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Stop(ctx) // no-op when never started
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	svc, _ := newFixture(t, time.Hour, nil)
	svc.cfg.Every = time.Hour

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second Start is a no-op.
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start again: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	svc.Stop(stopCtx)
	svc.Stop(stopCtx)
}
