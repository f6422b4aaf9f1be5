package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "sendlater/pkg/logx"
)

func newStore(t *testing.T, maxBytes int64) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewDisk(dir, maxBytes, logx.Nop())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return s, dir
}

func TestSaveRemoveList(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t, 1<<20)
	ctx := context.Background()

	ref, err := s.Save(ctx, "photo.jpg", strings.NewReader("jpegbytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(ref, dir) {
		t.Fatalf("ref %q not under upload dir", ref)
	}
	if !strings.HasSuffix(ref, "-photo.jpg") {
		t.Fatalf("ref %q lost the original name", ref)
	}
	if _, err := os.Stat(ref); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	entries, err := s.List()
	if err != nil || len(entries) != 1 {
		t.Fatalf("List: %v, n=%d", err, len(entries))
	}
	if entries[0].Size != int64(len("jpegbytes")) {
		t.Fatalf("Size = %d", entries[0].Size)
	}

	if err := s.Remove(ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove: err = %v, want ErrNotFound", err)
	}
}

func TestSaveRejectsOversizedPayload(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t, 8)

	_, err := s.Save(context.Background(), "big.bin", strings.NewReader("way more than eight bytes"))
	if err == nil {
		t.Fatal("oversized Save succeeded")
	}
	des, _ := os.ReadDir(dir)
	if len(des) != 0 {
		t.Fatal("partial file left after rejected Save")
	}
}

// Two uploads of the same filename in the same millisecond must both be
// stored, not collide on the exclusive create.
func TestSaveDisambiguatesSameMillisecondNames(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t, 1<<20)
	s.(*diskStore).now = func() time.Time {
		return time.UnixMilli(1700000000000)
	}
	ctx := context.Background()

	first, err := s.Save(ctx, "photo.jpg", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	second, err := s.Save(ctx, "photo.jpg", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if first == second {
		t.Fatalf("both saves returned ref %q", first)
	}
	for _, ref := range []string{first, second} {
		if _, err := os.Stat(ref); err != nil {
			t.Fatalf("stored file missing: %v", err)
		}
	}
	des, err := os.ReadDir(dir)
	if err != nil || len(des) != 2 {
		t.Fatalf("ReadDir: %v, n=%d", err, len(des))
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "photo.jpg", want: "photo.jpg"},
		{name: "traversal", in: "../../etc/passwd", want: "passwd"},
		{name: "spaces and unicode", in: "my photo☺.png", want: "my_photo_.png"},
		{name: "empty", in: "", want: "upload.bin"},
		{name: "dots only", in: "...", want: "upload.bin"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeName(tt.in); got != tt.want {
				t.Fatalf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPathToleratesBareKeys(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t, 1<<20)
	got := s.Path("123-a.jpg")
	if got != filepath.Join(dir, "123-a.jpg") {
		t.Fatalf("Path = %q", got)
	}
	abs := filepath.Join(dir, "456-b.jpg")
	if s.Path(abs) != abs {
		t.Fatalf("absolute ref rewritten: %q", s.Path(abs))
	}
}
