// Package journal keeps a durable record per pending task so scheduled
// deliveries survive a process restart.
//
// A record is written when a task is accepted and deleted when the task
// reaches a terminal state. On startup the app replays the journal: records
// whose trigger is still in the future are re-armed, expired ones are failed.
package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "sendlater/pkg/logx"
)

// Record is the write-ahead entry for one pending task.
// Keep it compact and schema-stable.
type Record struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	PayloadRef  string    `json:"payload_ref"`
	TriggerAt   time.Time `json:"trigger_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the minimal persistence API used by the registry and recovery.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Config configures the journal.
//
// Driver values:
//   - "file":   dependency-free JSONL journal with rewrite compaction
//   - "sqlite": SQLite database file
//   - "badger": BadgerDB directory
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
// It returns (nil, nil) if the journal is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "badger":
		return openBadger(cfg, log)
	default:
		return nil, errors.New("unknown journal driver: " + driver)
	}
}
