package broker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// DeviceConfigFile is the cache file name under the data directory.
const DeviceConfigFile = "device-config.json"

// DeviceConfig caches the last-known-good broker paths and listen port
// so later runs can skip a full detection scan. Passwords are never
// stored here; they are re-read from the broker XML on every parse.
type DeviceConfig struct {
	BrokerExePath    string `json:"brokerExePath"`
	BrokerConfigPath string `json:"brokerConfigPath"`
	AccessLogPath    string `json:"accessLogPath,omitempty"`
	ErrorLogPath     string `json:"errorLogPath,omitempty"`
	Port             int    `json:"port"`
	LastValidatedIso string `json:"lastValidatedIso,omitempty"`
	Source           string `json:"source,omitempty"`
}

// LoadDeviceConfig reads the cache from dataDir. A missing file is not
// an error; it returns (nil, nil) so detection proceeds from scratch.
func LoadDeviceConfig(dataDir string) (*DeviceConfig, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, DeviceConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading device config: %w", err)
	}
	var cfg DeviceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing device config: %w", err)
	}
	return &cfg, nil
}

// SaveDeviceConfig writes the cache atomically.
func SaveDeviceConfig(dataDir string, cfg DeviceConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device config: %w", err)
	}
	path := filepath.Join(dataDir, DeviceConfigFile)
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing device config: %w", err)
	}
	return nil
}
