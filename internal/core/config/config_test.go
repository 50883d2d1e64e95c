package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_FileAndDefaults(t *testing.T) {
	p := writeConfig(t, `
jwt:
  secret: s3cr3t
db:
  driver: postgres
  dsn: postgres://localhost/vinyl
storage:
  bucket: records
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.JWT.Secret != "s3cr3t" {
		t.Errorf("secret = %q", c.JWT.Secret)
	}
	if c.DB.Driver != "postgres" {
		t.Errorf("driver = %q", c.DB.Driver)
	}
	if c.App.HTTP.Port != 5000 {
		t.Errorf("default port = %d", c.App.HTTP.Port)
	}
	if c.Storage.UploadTTLSec != 300 {
		t.Errorf("default upload ttl = %d", c.Storage.UploadTTLSec)
	}
	if c.Storage.Bucket != "records" {
		t.Errorf("bucket = %q", c.Storage.Bucket)
	}
	if c.Catalog.BaseURL != "https://api.spotify.com/v1" {
		t.Errorf("catalog base = %q", c.Catalog.BaseURL)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	p := writeConfig(t, "jwt:\n  secret: from-file\n")
	t.Setenv("APP_JWT_SECRET", "from-env")
	t.Setenv("APP_CATALOG_CLIENTID", "cid")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.JWT.Secret != "from-env" {
		t.Errorf("secret = %q, want env value", c.JWT.Secret)
	}
	if c.Catalog.ClientID != "cid" {
		t.Errorf("client id = %q", c.Catalog.ClientID)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	p := writeConfig(t, "app:\n  name: x\n")
	if _, err := Load(p); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}
