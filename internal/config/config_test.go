package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("explicit missing config path should error")
	}
	if cfg.Model != "gpt-5.1" {
		t.Errorf("Model = %q, want default", cfg.Model)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"model":"gpt-5.1-codex"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-5.1-codex" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.APIEndpoint == "" || cfg.APIKeyEnvVar == "" {
		t.Errorf("defaults not filled: %+v", cfg)
	}
	if cfg.Choices == nil || *cfg.Choices != 3 {
		t.Errorf("Choices default not filled: %v", cfg.Choices)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg := Defaults()
	cfg.Model = "gpt-5.1-codex-mini"
	two := 2
	cfg.Choices = &two

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Model != "gpt-5.1-codex-mini" {
		t.Errorf("Model = %q", got.Model)
	}
	if got.Choices == nil || *got.Choices != 2 {
		t.Errorf("Choices = %v, want 2", got.Choices)
	}
}

func TestResolvePrecedence(t *testing.T) {
	if got := ResolveString("flag", "env", "file", "def"); got != "flag" {
		t.Errorf("flag should win, got %q", got)
	}
	if got := ResolveString("", "env", "file", "def"); got != "env" {
		t.Errorf("env should win, got %q", got)
	}
	if got := ResolveString("", "", "file", "def"); got != "file" {
		t.Errorf("file should win, got %q", got)
	}
	if got := ResolveString("", "", "", "def"); got != "def" {
		t.Errorf("default should win, got %q", got)
	}

	five := 5
	if got := ResolveInt(9, true, &five, 1); got != 9 {
		t.Errorf("set flag should win, got %d", got)
	}
	if got := ResolveInt(9, false, &five, 1); got != 5 {
		t.Errorf("file value should win, got %d", got)
	}
	if got := ResolveInt(9, false, nil, 1); got != 1 {
		t.Errorf("default should win, got %d", got)
	}

	no := false
	if got := ResolveBool(true, true, &no, false); got != true {
		t.Error("set flag should win")
	}
	if got := ResolveBool(true, false, &no, true); got != false {
		t.Error("file value should win")
	}
}
