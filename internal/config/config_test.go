package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	secret := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	path := filepath.Join(dir, "taskdesk.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault(secret)), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	if cfg.Auth.JWTSecret != secret {
		t.Fatalf("unexpected secret %q", cfg.Auth.JWTSecret)
	}
	if cfg.Addr() != ":8080" || cfg.BasePath() != "/v1" || cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("unexpected defaults %q %q %v", cfg.Addr(), cfg.BasePath(), cfg.TokenTTL())
	}
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		t.Fatal("admin seed missing from default template")
	}
}

func TestValidateRejectsBadSecret(t *testing.T) {
	if _, err := FromYAML([]byte("auth:\n  jwt_secret: 'not base64!!!'\nadmin:\n  email: a@b.c\n  password: x\n")); err == nil {
		t.Fatal("expected base64 error")
	}
	if _, err := FromYAML([]byte("admin:\n  email: a@b.c\n  password: x\n")); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("expected pointer to config init, got %v", err)
	}
}
