package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/biru/internal/flagx"
	"github.com/dmitrijs2005/biru/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "500ms" or as integer nanoseconds.
type JsonConfig struct {
	Server         string         `json:"server"`
	RegistryURL    string         `json:"registry_url"`
	DBPath         string         `json:"db_path"`
	KeyPath        string         `json:"key_path"`
	DebounceDelay  timex.Duration `json:"debounce_delay"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	SessionTTL     timex.Duration `json:"session_ttl"`
	LogLevel       string         `json:"log_level"`
}

// parseJson overlays Config with the values present in a JSON file.
//
// The file path comes from -c/-config or $BIRU_CONFIG (flagx.JsonConfigFlags);
// without one nothing is loaded. Fields missing from the file keep their
// current values. Read or unmarshal errors panic.
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

	setString(&cfg.Server, jc.Server)
	setString(&cfg.RegistryURL, jc.RegistryURL)
	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.KeyPath, jc.KeyPath)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.DebounceDelay.Duration != 0 {
		cfg.DebounceDelay = jc.DebounceDelay.Duration
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SessionTTL.Duration != 0 {
		cfg.SessionTTL = jc.SessionTTL.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
