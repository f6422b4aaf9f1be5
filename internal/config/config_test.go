package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
telegram:
  token: "123:abc"
destinations:
  - name: Team
    id: "-100200300"
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAMLWithDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := parseBytes("config.yaml", []byte(minimalYAML))
	if err != nil {
		t.Fatalf("parseBytes: %v", err)
	}
	if cfg.HTTP.Address != "127.0.0.1:8080" {
		t.Errorf("Address = %q", cfg.HTTP.Address)
	}
	if cfg.Upload.Dir != "./uploads" {
		t.Errorf("Upload.Dir = %q", cfg.Upload.Dir)
	}
	if cfg.Upload.MaxBytes != 32<<20 {
		t.Errorf("MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if len(cfg.Destinations) != 1 || cfg.Destinations[0].ID != "-100200300" {
		t.Errorf("Destinations = %+v", cfg.Destinations)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	body := `{
  "http": {"address": "0.0.0.0:9090"},
  "telegram": {"token": "123:abc", "poll_timeout": "15s"},
  "journal": {"driver": "sqlite", "path": "./data/journal.db"},
  "destinations": [{"name": "Ops", "id": "42"}]
}`
	cfg, err := parseBytes("config.json", []byte(body))
	if err != nil {
		t.Fatalf("parseBytes: %v", err)
	}
	if cfg.HTTP.Address != "0.0.0.0:9090" {
		t.Errorf("Address = %q", cfg.HTTP.Address)
	}
	if got := cfg.Telegram.PollTimeout.Std(); got != 15*time.Second {
		t.Errorf("PollTimeout = %v", got)
	}
	if cfg.Journal.Driver != "sqlite" {
		t.Errorf("Journal.Driver = %q", cfg.Journal.Driver)
	}
}

func TestParseRejections(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		body    string
		wantSub string
	}{
		{
			name:    "unknown field",
			body:    "telegram:\n  token: t\nbogus: 1\n",
			wantSub: "bogus",
		},
		{
			name:    "missing token",
			body:    "destinations:\n  - {name: A, id: \"1\"}\n",
			wantSub: "telegram.token",
		},
		{
			name:    "empty destination id",
			body:    "telegram:\n  token: t\ndestinations:\n  - {name: A, id: \"\"}\n",
			wantSub: "id is required",
		},
		{
			name:    "duplicate destination id",
			body:    "telegram:\n  token: t\ndestinations:\n  - {name: A, id: \"1\"}\n  - {name: B, id: \"1\"}\n",
			wantSub: "duplicate id",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseBytes("config.yaml", []byte(tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestManagerLoadAndGet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", minimalYAML)
	m := NewManager(path)

	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	default:
		t.Fatal("no config delivered")
	}

	// A full buffer drops the oldest update, not the newest.
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("expected newest config after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
	// Idempotent.
	m.Unsubscribe(ch)
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: `"10s"`, want: 10 * time.Second},
		{in: `"1h30m"`, want: 90 * time.Minute},
		{in: `""`, want: 0},
		{in: `"  "`, want: 0},
		{in: `"-5s"`, wantErr: true},
		{in: `"fast"`, wantErr: true},
		{in: `300`, wantErr: true},
	}
	for _, tc := range cases {
		var d Duration
		err := json.Unmarshal([]byte(tc.in), &d)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Unmarshal(%s): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unmarshal(%s): %v", tc.in, err)
			continue
		}
		if d.Std() != tc.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tc.in, d.Std(), tc.want)
		}
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	var zero Duration
	if got := zero.Or(time.Minute); got != time.Minute {
		t.Errorf("Or on zero = %v", got)
	}
	d := Duration(5 * time.Second)
	if got := d.Or(time.Minute); got != 5*time.Second {
		t.Errorf("Or on set = %v", got)
	}
}
