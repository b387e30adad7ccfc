package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AdminConfig holds the shared secret guarding the admin surface.
type AdminConfig struct {
	Secret string `yaml:"secret"`
}

// GeminiConfig holds configuration for the generative upstream.
type GeminiConfig struct {
	APIKeys []string      `yaml:"api_keys"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// KeyCooldown is how long a key that just failed is skipped by the rotation.
	KeyCooldown time.Duration `yaml:"key_cooldown"`
}

// AuthConfig holds configuration for credential handling and the auth gate.
type AuthConfig struct {
	PasswordHasher     string `yaml:"password_hasher"`
	EnforceStatus      *bool  `yaml:"enforce_status"`
	LoginRatePerMinute int    `yaml:"login_rate_per_minute"`
}

// QuotaConfig holds configuration for the quota ledger.
type QuotaConfig struct {
	SerializePerAccount *bool `yaml:"serialize_per_account"`
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// UsageReset is a cron spec for resetting every account's usage counter. Empty disables the job.
	UsageReset string `yaml:"usage_reset"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	CORSOrigins []string `yaml:"cors_origins"`
}

// Config holds the configuration for the tarot backend.
type Config struct {
	Database         DatabaseConfig  `yaml:"database"`
	Admin            AdminConfig     `yaml:"admin"`
	Gemini           GeminiConfig    `yaml:"gemini"`
	Auth             AuthConfig      `yaml:"auth"`
	Quota            QuotaConfig     `yaml:"quota"`
	Scheduler        SchedulerConfig `yaml:"scheduler"`
	Server           ServerConfig    `yaml:"server"`
	Port             int             `yaml:"port"`
	Debug            bool            `yaml:"debug"`
	SeedDemoAccounts bool            `yaml:"seed_demo_accounts"`
}

// StatusEnforced reports whether the auth gate rejects banned and deleted accounts.
func (c *Config) StatusEnforced() bool {
	return c.Auth.EnforceStatus == nil || *c.Auth.EnforceStatus
}

// SerializePerAccount reports whether metered requests of one account run one at a time.
func (c *Config) SerializePerAccount() bool {
	return c.Quota.SerializePerAccount == nil || *c.Quota.SerializePerAccount
}

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warnings []string

	data, err := os.ReadFile(path)
	if err == nil {
		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	// If file does not exist, we continue with an empty config and rely on environment variables.

	// Set default values
	if config.Port == 0 {
		config.Port = 3702
	}
	if config.Gemini.Model == "" {
		config.Gemini.Model = "gemini-2.5-pro"
	}
	if config.Gemini.Timeout <= 0 {
		config.Gemini.Timeout = 60 * time.Second
		warnings = append(warnings, "gemini.timeout not set, using default value of 60s")
	}
	if config.Gemini.KeyCooldown <= 0 {
		config.Gemini.KeyCooldown = time.Minute
	}
	if config.Auth.PasswordHasher == "" {
		config.Auth.PasswordHasher = "sha256"
	}
	if config.Auth.LoginRatePerMinute < 0 {
		config.Auth.LoginRatePerMinute = 0
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{"*"}
	}

	// Override with environment variables if they exist
	if dsn := os.Getenv("GOTAROT_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("GOTAROT_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("GOTAROT_PORT"); port != "" {
		var p int
		if n, err := fmt.Sscanf(port, "%d", &p); err == nil && n == 1 {
			config.Port = p
		} else {
			warnings = append(warnings, fmt.Sprintf("ignoring invalid GOTAROT_PORT %q", port))
		}
	}
	if secret := os.Getenv("GOTAROT_ADMIN_SECRET"); secret != "" {
		config.Admin.Secret = secret
	}
	if keys := os.Getenv("GOTAROT_GEMINI_API_KEY"); keys != "" {
		config.Gemini.APIKeys = splitList(keys)
	}
	if model := os.Getenv("GOTAROT_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if origins := os.Getenv("GOTAROT_CORS_ORIGINS"); origins != "" {
		config.Server.CORSOrigins = splitList(origins)
	}
	if debug := os.Getenv("GOTAROT_DEBUG"); debug != "" {
		config.Debug = (debug == "true")
	}

	// Final validation after overrides
	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, "", fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	switch config.Auth.PasswordHasher {
	case "sha256", "bcrypt":
	default:
		return nil, "", fmt.Errorf("unsupported auth.password_hasher: %s", config.Auth.PasswordHasher)
	}
	if config.Admin.Secret == "" {
		warnings = append(warnings, "admin.secret not set, the admin API will reject every request")
	}
	if len(config.Gemini.APIKeys) == 0 {
		warnings = append(warnings, "no gemini api key configured, readings will return 503")
	}

	return &config, strings.Join(warnings, "; "), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
