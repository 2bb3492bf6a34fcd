package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	c := Load()
	if c.DBDir != "platforms" || c.OutputDir != "docs/data" {
		t.Errorf("paths = %q / %q", c.DBDir, c.OutputDir)
	}
	if c.Delay != 500*time.Millisecond {
		t.Errorf("delay = %v", c.Delay)
	}
	if c.ProbeTimeout != 10*time.Second || c.SegmentTimeout != 5*time.Second {
		t.Errorf("timeouts = %v / %v", c.ProbeTimeout, c.SegmentTimeout)
	}
	if c.Language != "eu" {
		t.Errorf("language = %q", c.Language)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("MUGAK_USERNAME", "user@example.org")
	t.Setenv("MUGAK_PASSWORD", "secret")
	t.Setenv("MUGAK_DELAY", "2s")
	t.Setenv("MUGAK_OUTPUT_DIR", "/tmp/out")

	c := Load()
	if c.Username != "user@example.org" || c.Password != "secret" {
		t.Errorf("credentials = %q / %q", c.Username, c.Password)
	}
	if c.Delay != 2*time.Second {
		t.Errorf("delay = %v", c.Delay)
	}
	if c.OutputDir != "/tmp/out" {
		t.Errorf("output dir = %q", c.OutputDir)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_legacyCredentialNames(t *testing.T) {
	t.Setenv("PRIMERAN_USERNAME", "legacy@example.org")
	t.Setenv("PRIMERAN_PASSWORD", "legacypass")

	c := Load()
	if c.Username != "legacy@example.org" || c.Password != "legacypass" {
		t.Errorf("legacy fallback = %q / %q", c.Username, c.Password)
	}
}

func TestLoad_delayPlainNumberIsMilliseconds(t *testing.T) {
	t.Setenv("MUGAK_DELAY", "250")
	if c := Load(); c.Delay != 250*time.Millisecond {
		t.Errorf("delay = %v", c.Delay)
	}
}

func TestValidate_missingCredentials(t *testing.T) {
	c := &Config{}
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestDBPath(t *testing.T) {
	c := &Config{DBDir: "platforms"}
	want := filepath.Join("platforms", "makusi.eus", "makusi.eus_content.db")
	if got := c.DBPath("makusi.eus"); got != want {
		t.Errorf("DBPath = %q, want %q", got, want)
	}
}
