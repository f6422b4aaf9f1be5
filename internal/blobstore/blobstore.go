// Package blobstore owns the on-disk payload files backing scheduled tasks.
//
// Every payload lives under a single upload directory, keyed
// "<unix-milli>-<original-name>". The ref returned by Save is the absolute
// file path; callers treat it as opaque.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "sendlater/pkg/logx"
)

var ErrNotFound = errors.New("payload not found")

// Store is the payload persistence capability used by the scheduling core.
type Store interface {
	// Save streams r into a new payload file and returns its ref.
	Save(ctx context.Context, name string, r io.Reader) (string, error)

	// Remove deletes the payload. Removing an already-removed payload
	// returns ErrNotFound.
	Remove(ref string) error

	// Path maps a ref to a local filesystem path usable by transports.
	Path(ref string) string

	// List enumerates stored payloads (used by the sweeper).
	List() ([]Entry, error)
}

type Entry struct {
	Ref     string
	ModTime time.Time
	Size    int64
}

type diskStore struct {
	dir      string
	maxBytes int64
	log      logx.Logger
	now      func() time.Time
}

// NewDisk opens (and creates if needed) the upload directory.
func NewDisk(dir string, maxBytes int64, log logx.Logger) (Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("upload dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &diskStore{dir: abs, maxBytes: maxBytes, log: log, now: time.Now}, nil
}

func (s *diskStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stamp := s.now().UnixMilli()
	clean := sanitizeName(name)

	// Same name in the same millisecond collides on O_EXCL; disambiguate
	// with an attempt counter instead of failing the upload.
	var (
		f    *os.File
		path string
	)
	for attempt := 0; ; attempt++ {
		key := fmt.Sprintf("%d-%s", stamp, clean)
		if attempt > 0 {
			key = fmt.Sprintf("%d-%d-%s", stamp, attempt, clean)
		}
		path = filepath.Join(s.dir, key)

		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) || attempt >= 1000 {
			return "", fmt.Errorf("create payload: %w", err)
		}
	}

	// +1 so an exactly-at-limit payload is distinguishable from an oversized one.
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	cerr := f.Close()
	if err == nil && cerr != nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("payload exceeds %d bytes", s.maxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.log.Debug("payload stored", logx.String("ref", filepath.Base(path)), logx.Int64("bytes", n))
	return path, nil
}

func (s *diskStore) Remove(ref string) error {
	path := s.Path(ref)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	s.log.Debug("payload removed", logx.String("ref", filepath.Base(path)))
	return nil
}

func (s *diskStore) Path(ref string) string {
	// Refs handed out by Save are absolute; tolerate bare keys too.
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(s.dir, filepath.Base(ref))
}

func (s *diskStore) List() ([]Entry, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Ref:     filepath.Join(s.dir, de.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return out, nil
}

// sanitizeName reduces an upload filename to a safe path component.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "upload.bin"
	}
	return out
}
