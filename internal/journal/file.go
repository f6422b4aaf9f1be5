package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "sendlater/pkg/logx"
)

// fileStore is a dependency-free journal backend: a single append-only
// JSON Lines file of put/del operations, compacted by rewrite once the
// number of appended operations outgrows the live set.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	f      *os.File
	live   map[string]Record
	writes int
}

type fileOp struct {
	Op  string  `json:"op"` // "put" or "del"
	ID  string  `json:"id"`
	Rec *Record `json:"rec,omitempty"`
}

const compactEvery = 512

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	live := map[string]Record{}
	if err := replay(path, live); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, path: path, f: f, live: live}, nil
}

func replay(path string, into map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var op fileOp
		if err := json.Unmarshal([]byte(line), &op); err != nil {
			// Torn tail write after a crash; ignore the rest.
			return nil
		}
		switch op.Op {
		case "put":
			if op.Rec != nil {
				into[op.Rec.ID] = *op.Rec
			}
		case "del":
			delete(into, op.ID)
		}
	}
	return sc.Err()
}

func (s *fileStore) appendLocked(op fileOp) error {
	if s.f == nil {
		return errors.New("journal file closed")
	}
	enc := json.NewEncoder(s.f)
	if err := enc.Encode(op); err != nil {
		return err
	}
	s.writes++
	if s.writes >= compactEvery && s.writes > 2*len(s.live) {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked rewrites the journal so it holds exactly the live set.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for id, rec := range s.live {
		r := rec
		if err := enc.Encode(fileOp{Op: "put", ID: id, Rec: &r}); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	old := s.f
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	_ = old.Close()

	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return err
	}
	s.f = nf
	s.writes = len(s.live)
	s.log.Debug("journal compacted", logx.Int("records", len(s.live)))
	return nil
}

func (s *fileStore) Put(ctx context.Context, rec Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(fileOp{Op: "put", ID: rec.ID, Rec: &rec}); err != nil {
		return err
	}
	s.live[rec.ID] = rec
	return nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; !ok {
		return nil
	}
	if err := s.appendLocked(fileOp{Op: "del", ID: id}); err != nil {
		return err
	}
	delete(s.live, id)
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.live))
	for _, rec := range s.live {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
