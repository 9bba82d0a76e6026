// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the relayer node's configuration.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	NodeURL                  string   `yaml:"node_url" json:"node_url"`
	Peers                    []string `yaml:"peers" json:"peers"`
	Redundancy               int      `yaml:"redundancy" json:"redundancy"`
	ProposalIntervalSeconds  int      `yaml:"proposal_interval_seconds" json:"proposal_interval_seconds"`
	MajorityFraction         float64  `yaml:"majority_fraction" json:"majority_fraction"`
	RelayerStoragePath       string   `yaml:"relayer_storage_path" json:"relayer_storage_path"`
	MaxPayloadBytes          int64    `yaml:"max_payload_bytes" json:"max_payload_bytes"`
	PeerHeartbeatIntervalSec int      `yaml:"peer_heartbeat_interval_secs" json:"peer_heartbeat_interval_secs"`
	PeerStaleAfterSecs       int      `yaml:"peer_stale_after_secs" json:"peer_stale_after_secs"`
	RequirePeerAuth          bool     `yaml:"require_peer_auth" json:"require_peer_auth"`
	PeerAllowlist            []string `yaml:"peer_allowlist" json:"peer_allowlist"`
	AllowLocalPeers          bool     `yaml:"allow_local_peers" json:"allow_local_peers"`
	SessionWindowSecs        int      `yaml:"session_window_secs" json:"session_window_secs"`
	SlotQuotaBytes           int64    `yaml:"slot_quota_bytes" json:"slot_quota_bytes"`

	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{AllowLocalPeers: true}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, inferring format from extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills in zero-valued fields with the node's defaults.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.NodeURL == "" {
		cfg.NodeURL = "http://127.0.0.1:3000"
	}
	if cfg.Peers == nil {
		cfg.Peers = []string{}
	}
	if cfg.Redundancy == 0 {
		cfg.Redundancy = 3
	}
	if cfg.ProposalIntervalSeconds == 0 {
		cfg.ProposalIntervalSeconds = 20
	}
	if cfg.MajorityFraction == 0 {
		cfg.MajorityFraction = 0.51
	}
	if cfg.RelayerStoragePath == "" {
		cfg.RelayerStoragePath = "relayer_storage"
	}
	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = 10 * 1024 * 1024
	}
	if cfg.PeerHeartbeatIntervalSec == 0 {
		cfg.PeerHeartbeatIntervalSec = 60
	}
	if cfg.PeerStaleAfterSecs == 0 {
		cfg.PeerStaleAfterSecs = 300
	}
	if cfg.PeerAllowlist == nil {
		cfg.PeerAllowlist = []string{}
	}
	if cfg.SessionWindowSecs == 0 {
		cfg.SessionWindowSecs = 3600
	}
	if cfg.SlotQuotaBytes == 0 {
		cfg.SlotQuotaBytes = 1 << 30 // 1 GiB per slot
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"}
	}
	if cfg.Health == nil {
		cfg.Health = &HealthConfig{Enabled: true, Port: 8080, Path: "/health"}
	}
}

// DefaultConfig returns a Config populated entirely with defaults, useful
// when no config file is present at all.
func DefaultConfig() *Config {
	cfg := &Config{AllowLocalPeers: true}
	setDefaults(cfg)
	return cfg
}
