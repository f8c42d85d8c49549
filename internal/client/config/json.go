package config

import (
	"encoding/json"
	"os"

	"github.com/pinvault/pinvault/internal/flagx"
	"github.com/pinvault/pinvault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
//
// The idle timeout can be given either as plain minutes ("timeout_minutes")
// or as a duration string like "15m" ("idle_timeout"). When both are
// present, idle_timeout wins.
type JsonConfig struct {
	DatabaseDSN    *string         `json:"database_dsn"`
	TimeoutMinutes *int            `json:"timeout_minutes"`
	IdleTimeout    *timex.Duration `json:"idle_timeout"`
	S3Region       *string         `json:"s3_region"`
	S3Bucket       *string         `json:"s3_bucket"`
	S3Endpoint     *string         `json:"s3_endpoint"`
	S3AccessKey    *string         `json:"s3_access_key"`
	S3SecretKey    *string         `json:"s3_secret_key"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c/-config flags. Absent fields keep their current values. Read or parse
// errors panic; the entrypoint treats a broken config file as fatal.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != nil {
		cfg.DatabaseDSN = *jc.DatabaseDSN
	}
	if jc.TimeoutMinutes != nil {
		cfg.TimeoutMinutes = *jc.TimeoutMinutes
	}
	if jc.IdleTimeout != nil {
		cfg.TimeoutMinutes = int(jc.IdleTimeout.Minutes())
	}
	if jc.S3Region != nil {
		cfg.S3Region = *jc.S3Region
	}
	if jc.S3Bucket != nil {
		cfg.S3Bucket = *jc.S3Bucket
	}
	if jc.S3Endpoint != nil {
		cfg.S3Endpoint = *jc.S3Endpoint
	}
	if jc.S3AccessKey != nil {
		cfg.S3AccessKey = *jc.S3AccessKey
	}
	if jc.S3SecretKey != nil {
		cfg.S3SecretKey = *jc.S3SecretKey
	}
}
