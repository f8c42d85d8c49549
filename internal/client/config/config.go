// Package config holds runtime settings for the PINVault CLI.
package config

// Config holds runtime settings.
//
// Fields:
//   - DatabaseDSN: path/DSN of the local sqlite store.
//   - TimeoutMinutes: idle auto-lock interval used when creating a vault;
//     0 disables auto-lock.
//   - S3*: optional off-device backup target (S3 or MinIO). Backup commands
//     are unavailable when S3Bucket is empty.
type Config struct {
	DatabaseDSN    string
	TimeoutMinutes int

	S3Region    string
	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "pinvault.db"
	c.TimeoutMinutes = 15
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
