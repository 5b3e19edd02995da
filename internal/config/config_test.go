package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDelay(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "seconds", input: "3", want: 3 * time.Second},
		{name: "duration", input: "250ms", want: 250 * time.Millisecond},
		{name: "negative", input: "-2", want: -2 * time.Second},
		{name: "bad", input: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDelay(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Duration() != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestDelayAsFlag(t *testing.T) {
	var d Delay
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&d, "delay", "")
	if err := fs.Parse([]string{"-delay", "2"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Duration() != 2*time.Second {
		t.Fatalf("got %v", d)
	}
}

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `
mbox: /tmp/work.mbox
label: Work
threadsfile: /tmp/threads.txt
msg_delay: 1
thread_delay: 1500ms
skip_thread_delay: 0
delete: true
page_size: 100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mbox != "/tmp/work.mbox" || cfg.Label != "Work" || !cfg.Delete {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.MsgDelay.Duration() != time.Second || cfg.ThreadDelay.Duration() != 1500*time.Millisecond {
		t.Fatalf("unexpected delays %+v", cfg)
	}
	if cfg.RPS != 4 {
		t.Fatalf("default rps lost: %d", cfg.RPS)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeProfile(t, "mbox: a.mbox\nlabels: Work\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLoadEmptyProfile(t *testing.T) {
	cfg, err := Load(writeProfile(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PageSize != 500 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := Defaults()
	base.Mbox = "archive.mbox"

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no-mbox", mutate: func(c *Config) { c.Mbox = "" }},
		{name: "negative-delay", mutate: func(c *Config) { c.SkipThreadDelay = Delay(-time.Second) }},
		{name: "page-too-big", mutate: func(c *Config) { c.PageSize = 501 }},
		{name: "page-zero", mutate: func(c *Config) { c.PageSize = 0 }},
		{name: "negative-rps", mutate: func(c *Config) { c.RPS = -1 }},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
