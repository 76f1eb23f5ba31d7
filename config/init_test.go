package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoadDefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DEVICE_TOKEN", "dev-token")
	t.Setenv("SESSION_KEY", testKey)
	t.Setenv("MAIL_USERNAME", "mailer")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Token != "dev-token" || cfg.Session.Key != testKey {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Mail.Username != "mailer" {
		t.Fatalf("mail.username = %q", cfg.Mail.Username)
	}
	if cfg.Server.HTTPPort != "8080" || cfg.Database.Driver != "sqlite" || cfg.Credentials.Algorithm != "argon2id" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Session.MaxAge != 7*24*time.Hour || cfg.RateLimit.Burst != 5 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadFileFromFlag(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_FILE", "")
	path := filepath.Join(dir, "smartinlet.yaml")
	body := `
server:
  http_port: "9090"
device:
  token: from-file
session:
  key: ` + testKey + `
credentials:
  algorithm: bcrypt
ratelimit:
  device_rps: 2.5
  burst: 10
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != "9090" || cfg.Device.Token != "from-file" || cfg.Credentials.Algorithm != "bcrypt" {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.RateLimit.DeviceRPS != 2.5 || cfg.RateLimit.Burst != 10 {
		t.Fatalf("ratelimit: %+v", cfg.RateLimit)
	}
}

func TestLoadRejectsPlaceholders(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SESSION_KEY", testKey)
	t.Setenv("DEVICE_TOKEN", "")

	_, err := Load(nil)
	if err == nil || !strings.Contains(err.Error(), "device.token") {
		t.Fatalf("err = %v", err)
	}

	t.Setenv("DEVICE_TOKEN", "x")
	t.Setenv("SESSION_KEY", "short")
	_, err = Load(nil)
	if err == nil || !strings.Contains(err.Error(), "session.key") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		var c Config
		c.Server.Address, c.Server.HTTPPort = "0.0.0.0", "8080"
		c.Device.Token = "t"
		c.Session.Key = testKey
		c.Database.Driver, c.Database.Migrations = "sqlite", "auto"
		c.Credentials.Algorithm = "argon2id"
		c.RateLimit.DeviceRPS, c.RateLimit.Burst = 1, 1
		return &c
	}
	if err := validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"unknown driver":     func(c *Config) { c.Database.Driver = "oracle" },
		"sql on sqlite":      func(c *Config) { c.Database.Migrations = "sql" },
		"unknown algorithm":  func(c *Config) { c.Credentials.Algorithm = "md5" },
		"zero rate":          func(c *Config) { c.RateLimit.DeviceRPS = 0 },
		"empty port":         func(c *Config) { c.Server.HTTPPort = "" },
		"unknown migrations": func(c *Config) { c.Database.Migrations = "later" },
	}
	for name, mutate := range cases {
		c := base()
		mutate(c)
		if err := validate(c); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

// chdir меняет рабочий каталог на время теста (аналог t.Chdir из Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
