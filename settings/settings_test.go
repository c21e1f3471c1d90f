package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoadFirstRunWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen == "" {
		t.Error("default config has no listen address")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("Load again: %v", err)
	}
	if !reflect.DeepEqual(cfg, again) {
		t.Errorf("reloaded config differs: %#v vs %#v", cfg, again)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &Config{
		Vault:          "/srv/vault",
		Listen:         "127.0.0.1:9000",
		RecursiveLocal: true,
		Resync:         "*/30 * * * *",
		OpenCommand:    "code",
		AllowedOrigins: []string{"app://obsidian.md"},
		Sources: SourceList{
			Local{Dir: "events", Color: "#ff0000"},
			Remote{URL: "https://calendar.example.com/feed", Color: "#00ff00"},
			ICS{URL: "https://example.com/cal.ics"},
		},
	}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got, cfg)
	}
}

func TestSourceListTypeKeySelectsKind(t *testing.T) {
	var list SourceList
	err := yaml.Unmarshal([]byte("- dir: events\n- type: remote\n  url: https://x.example\n- type: ics\n  url: https://x.example/c.ics\n"), &list)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if _, ok := list[0].(Local); !ok {
		t.Errorf("entry 0 = %T, want Local", list[0])
	}
	if _, ok := list[1].(Remote); !ok {
		t.Errorf("entry 1 = %T, want Remote", list[1])
	}
	if _, ok := list[2].(ICS); !ok {
		t.Errorf("entry 2 = %T, want ICS", list[2])
	}
}

func TestSourceListRejectsUnknownType(t *testing.T) {
	var list SourceList
	if err := yaml.Unmarshal([]byte("- type: carddav\n  url: https://x.example\n"), &list); err == nil {
		t.Error("expected error for unknown source type")
	}
}

func TestNormalizeBackfills(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()
	if cfg.Vault == "" || cfg.Listen == "" {
		t.Errorf("defaults missing: %#v", cfg)
	}
	if cfg.Sources == nil {
		t.Error("sources not initialized")
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Error("allowed origins not initialized")
	}
}

func TestLocals(t *testing.T) {
	cfg := &Config{Sources: SourceList{
		Remote{URL: "https://x.example"},
		Local{Dir: "work"},
		ICS{URL: "https://x.example/c.ics"},
		Local{Dir: "home"},
	}}
	locals := cfg.Locals()
	if len(locals) != 2 || locals[0].Dir != "work" || locals[1].Dir != "home" {
		t.Errorf("Locals() = %#v", locals)
	}
}
