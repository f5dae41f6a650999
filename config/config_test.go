package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/polybot/service/bluesky"
	"github.com/blacktop/polybot/service/mastodon"
	"github.com/blacktop/polybot/state"
)

func TestPath(t *testing.T) {
	got := Path("/etc/bots", state.Namespace{Bot: "weather", Profile: "staging"})
	if want := filepath.Join("/etc/bots", "weather-staging.yaml"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestLoadMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nothing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Twitter != nil || cfg.Mastodon != nil || cfg.Bluesky != nil {
		t.Errorf("Load = %+v, want empty config", cfg)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.yaml")
	cfg := &Config{
		Mastodon: &mastodon.Config{Server: "https://mastodon.example", AccessToken: "token"},
		Bluesky:  &bluesky.Config{Handle: "bot.bsky.social", AppPassword: "pw"},
		State:    StateConfig{Format: "cbor", Compression: "zstd"},
	}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Twitter != nil {
		t.Errorf("Twitter = %+v, want nil", got.Twitter)
	}
	if *got.Mastodon != *cfg.Mastodon || *got.Bluesky != *cfg.Bluesky {
		t.Errorf("Load = %+v, want %+v", got, cfg)
	}
	if got.State != cfg.State {
		t.Errorf("State = %+v, want %+v", got.State, cfg.State)
	}
}

func TestLoadHandWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	data := []byte(`# credentials for the weather bot
twitter:
  api_key: k
  api_secret: s
  access_token: t
  access_secret: a
state:
  backend: sqlite
  dir: data
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Twitter == nil || cfg.Twitter.AccessSecret != "a" {
		t.Errorf("Twitter = %+v", cfg.Twitter)
	}
	if got, want := cfg.DatabasePath("/srv/bot"), filepath.Join("/srv/bot", "data", "polybot.sqlite"); got != want {
		t.Errorf("DatabasePath = %q, want %q", got, want)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":      "twitter: [",
		"backend":     "state:\n  backend: redis\n",
		"format":      "state:\n  format: xml\n",
		"compression": "state:\n  compression: lz4\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bot.yaml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load accepted an invalid config")
			}
		})
	}
}

func TestStateDir(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"", "/cfg"},
		{"/var/lib/bot", "/var/lib/bot"},
		{"state", filepath.Join("/cfg", "state")},
	}
	for _, tt := range tests {
		cfg := &Config{State: StateConfig{Dir: tt.dir}}
		if got := cfg.StateDir("/cfg"); got != tt.want {
			t.Errorf("StateDir(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestFileBackend(t *testing.T) {
	cfg := &Config{State: StateConfig{Format: "cbor", Compression: "zstd"}}
	backend, err := cfg.FileBackend("/cfg")
	if err != nil {
		t.Fatalf("FileBackend: %v", err)
	}
	want := state.FileBackend{Dir: "/cfg", Format: state.FormatCBOR, Compression: state.CompressionZstd}
	if backend != want {
		t.Errorf("FileBackend = %+v, want %+v", backend, want)
	}
}
