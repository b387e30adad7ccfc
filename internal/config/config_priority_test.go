package config

import (
	"testing"
)

func TestConfigPriority(t *testing.T) {
	t.Run("env vars should override file config", func(t *testing.T) {
		path := writeTempConfig(t,
			"port: 8000\n"+
				"debug: false\n"+
				"database:\n"+
				"  type: \"file-db\"\n"+
				"  dsn: \"file-dsn\"\n"+
				"admin:\n"+
				"  secret: \"file-secret\"\n"+
				"gemini:\n"+
				"  api_keys: [file-key]\n"+
				"server:\n"+
				"  cors_origins: [\"https://file.example.com\"]\n")

		t.Setenv("GOTAROT_PORT", "9000")
		t.Setenv("GOTAROT_DEBUG", "true")
		t.Setenv("GOTAROT_DATABASE_TYPE", "env-db")
		t.Setenv("GOTAROT_DATABASE_DSN", "env-dsn")
		t.Setenv("GOTAROT_ADMIN_SECRET", "env-secret")
		t.Setenv("GOTAROT_GEMINI_API_KEY", "env-key-1, env-key-2")
		t.Setenv("GOTAROT_GEMINI_MODEL", "env-model")
		t.Setenv("GOTAROT_CORS_ORIGINS", "https://a.example.com,https://b.example.com")

		config, _, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}

		if config.Port != 9000 {
			t.Errorf("Expected port from env (9000), but got %d", config.Port)
		}
		if !config.Debug {
			t.Error("Expected debug from env (true), but got false")
		}
		if config.Database.Type != "env-db" {
			t.Errorf("Expected db type from env ('env-db'), but got %s", config.Database.Type)
		}
		if config.Database.DSN != "env-dsn" {
			t.Errorf("Expected db dsn from env ('env-dsn'), but got %s", config.Database.DSN)
		}
		if config.Admin.Secret != "env-secret" {
			t.Errorf("Expected admin secret from env ('env-secret'), but got %s", config.Admin.Secret)
		}
		if len(config.Gemini.APIKeys) != 2 || config.Gemini.APIKeys[0] != "env-key-1" || config.Gemini.APIKeys[1] != "env-key-2" {
			t.Errorf("Expected gemini keys from env, but got %v", config.Gemini.APIKeys)
		}
		if config.Gemini.Model != "env-model" {
			t.Errorf("Expected gemini model from env ('env-model'), but got %s", config.Gemini.Model)
		}
		if len(config.Server.CORSOrigins) != 2 {
			t.Errorf("Expected two cors origins from env, but got %v", config.Server.CORSOrigins)
		}
	})

	t.Run("invalid port env is ignored with a warning", func(t *testing.T) {
		path := writeTempConfig(t, "port: 8000\ndatabase:\n  type: sqlite\n  dsn: x\n")
		t.Setenv("GOTAROT_PORT", "not-a-port")

		config, warning, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if config.Port != 8000 {
			t.Errorf("Expected port from file (8000), but got %d", config.Port)
		}
		if warning == "" {
			t.Error("Expected a warning for the invalid port")
		}
	})
}
