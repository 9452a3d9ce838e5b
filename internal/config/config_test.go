package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
redis:
  addr: "localhost:6379"
  db: 2
gemini:
  api_key: "from-file"
  model: "gemini-1.5-pro"
chat:
  user_id: "alice"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port: %q", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("redis: %+v", cfg.Redis)
	}
	if cfg.Gemini.APIKey != "from-file" || cfg.Gemini.Model != "gemini-1.5-pro" {
		t.Fatalf("gemini: %+v", cfg.Gemini)
	}
	if cfg.Chat.UserID != "alice" {
		t.Fatalf("chat user: %q", cfg.Chat.UserID)
	}
}

func TestLoadDefaultsAndEnvFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	path := writeConfig(t, "server:\n  port: \"8080\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gemini.APIKey != "from-env" {
		t.Fatalf("expected env fallback, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Gemini.Model != "gemini-1.5-flash" {
		t.Fatalf("expected default model, got %q", cfg.Gemini.Model)
	}
	if cfg.Chat.UserID != "guest" {
		t.Fatalf("expected default user, got %q", cfg.Chat.UserID)
	}
}

func TestLoadFileKeyWinsOverEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	path := writeConfig(t, "gemini:\n  api_key: \"from-file\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gemini.APIKey != "from-file" {
		t.Fatalf("file key should win, got %q", cfg.Gemini.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
