// Package config loads the attest configuration: defaults, then a JSON file,
// then ATTEST_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ATTEST_"
	// EnvConfFile names an explicit config file.
	EnvConfFile = EnvPrefix + "CONF_FILE"
	// Dir is the per-workspace state directory.
	Dir = ".attest"
)

// Config holds all attest configuration.
type Config struct {
	TUConnections []string `json:"tu_connections,omitempty"`

	DBFile     string `json:"db_file,omitempty"`
	HistoryDir string `json:"history_dir,omitempty"`
	LogFile    string `json:"log_file,omitempty"`
	LogLevel   string `json:"log_level,omitempty"`

	IdentifierDir   string `json:"identifier_dir,omitempty"`
	Make            string `json:"make,omitempty"`
	Flasher         string `json:"flasher,omitempty"`
	Target          string `json:"target,omitempty"`
	ToolDir         string `json:"tool_dir,omitempty"`
	BuildTimeoutS   int    `json:"build_timeout_s,omitempty"`
	FlasherTimeoutS int    `json:"flasher_timeout_s,omitempty"`

	BoardVID        int    `json:"board_vid,omitempty"`
	BoardPID        int    `json:"board_pid,omitempty"`
	DebugInterface  string `json:"debug_interface,omitempty"`
	UARTInterface   string `json:"uart_interface,omitempty"`
	IdentifyOnProbe bool   `json:"identify_on_probe"`

	IDBaudRate      int `json:"id_baud_rate,omitempty"`
	IDSamplesPerBit int `json:"id_samples_per_bit,omitempty"`
	IDCaptureMs     int `json:"id_capture_ms,omitempty"`
	IDStartPattern  int `json:"id_start_pattern,omitempty"`
	IDRetries       int `json:"id_retries,omitempty"`

	UnavailableRetryS int `json:"unavailable_retry_s,omitempty"`
	IdleBackoffMs     int `json:"idle_backoff_ms,omitempty"`
	PrioResetH        int `json:"prio_reset_h,omitempty"`
	LegacyPriority    int `json:"legacy_priority,omitempty"`

	UARTBaudRate    int     `json:"uart_baud_rate,omitempty"`
	LogicThresholdV float64 `json:"logic_threshold_v,omitempty"`

	MQTTBroker string `json:"mqtt_broker,omitempty"`
	MQTTTopic  string `json:"mqtt_topic,omitempty"`
}

// Defaults returns a Config with default values. Paths are relative to the
// workspace.
func Defaults() Config {
	return Config{
		TUConnections:     []string{"P6.0-D7"},
		DBFile:            filepath.Join(Dir, "attest.db"),
		HistoryDir:        Dir,
		LogLevel:          "INFO",
		IdentifierDir:     "msp430-identifier",
		Make:              "make",
		Flasher:           "MSP430Flasher",
		Target:            "msp430f5529",
		BuildTimeoutS:     10,
		FlasherTimeoutS:   30,
		BoardVID:          0x2047,
		BoardPID:          0x0013,
		DebugInterface:    "MSP Debug Interface",
		UARTInterface:     "MSP Application UART",
		IdentifyOnProbe:   true,
		IDBaudRate:        1200,
		IDSamplesPerBit:   3,
		IDCaptureMs:       500,
		IDStartPattern:    0xFE,
		IDRetries:         5,
		UnavailableRetryS: 30,
		IdleBackoffMs:     500,
		PrioResetH:        24,
		LegacyPriority:    5,
		UARTBaudRate:      9600,
		LogicThresholdV:   1.7,
		MQTTTopic:         "attest/status",
	}
}

// Path returns the config file used for workspaceRoot.
func Path(workspaceRoot string) string {
	if p := os.Getenv(EnvConfFile); p != "" {
		return p
	}
	return filepath.Join(workspaceRoot, Dir, "config.json")
}

// Load reads and merges configuration.
// Order: defaults → global (~/.config/attest/config.json) → workspace
// (.attest/config.json or $ATTEST_CONF_FILE) → ATTEST_* environment.
// Relative paths are resolved against workspaceRoot.
func Load(workspaceRoot string) (Config, error) {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeFromFile(&cfg, filepath.Join(home, ".config", "attest", "config.json")); err != nil {
			return cfg, err
		}
	}
	if err := mergeFromFile(&cfg, Path(workspaceRoot)); err != nil {
		return cfg, err
	}
	if err := mergeFromEnv(&cfg, os.Environ()); err != nil {
		return cfg, err
	}

	for _, p := range []*string{&cfg.DBFile, &cfg.HistoryDir, &cfg.LogFile, &cfg.IdentifierDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(workspaceRoot, *p)
		}
	}
	return cfg, nil
}

// Save writes the config to the workspace .attest/config.json.
func Save(cfg Config, workspaceRoot string) error {
	path := Path(workspaceRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// mergeFromFile overlays the keys present in the file at path. A missing
// file is not an error.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

// MergeEnv applies the ATTEST_* variables of the process environment.
func MergeEnv(cfg *Config) error {
	return mergeFromEnv(cfg, os.Environ())
}

// mergeFromEnv applies ATTEST_<JSON KEY> variables. Lists are separated by
// ';'.
func mergeFromEnv(cfg *Config, environ []string) error {
	env := make(map[string]string)
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}

	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		raw, ok := env[EnvPrefix+strings.ToUpper(key)]
		if !ok {
			continue
		}
		if err := setField(v.Field(i), raw); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, strings.ToUpper(key), err)
		}
	}
	return nil
}

func setField(f reflect.Value, raw string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Int:
		n, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Float64:
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		f.SetFloat(x)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Slice:
		var items []string
		for _, s := range strings.Split(raw, ";") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		f.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type %s", f.Kind())
	}
	return nil
}
