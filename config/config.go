package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/netplay"
	"github.com/opd-ai/netplay/discovery"
)

// DefaultListenPort is the game port of a default configuration.
const DefaultListenPort = 7440

// ServerConfig is the YAML configuration of a dedicated server.
type ServerConfig struct {
	ListenPort int              `yaml:"listen_port"`
	Server     ServerSection    `yaml:"server"`
	Discovery  DiscoverySection `yaml:"discovery"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerSection describes the advertised server.
type ServerSection struct {
	// ID identifies the server across restarts. Generated when empty.
	ID string `yaml:"id"`
	// Name is the advertised name. An empty name keeps the server private.
	Name       string   `yaml:"name"`
	Password   string   `yaml:"password,omitempty"`
	Whitelist  []string `yaml:"whitelist,omitempty"`
	GameMode   uint8    `yaml:"game_mode"`
	MaxPlayers int      `yaml:"max_players"`
	Level      string   `yaml:"level"`
	// MaxPeers is the transport's connection capacity.
	MaxPeers int `yaml:"max_peers"`
}

// DiscoverySection configures LAN advertising.
type DiscoverySection struct {
	Enabled   bool   `yaml:"enabled"`
	Group     string `yaml:"group"`
	Port      int    `yaml:"port"`
	Interface string `yaml:"interface,omitempty"`
}

// Default returns a configuration with a fresh server ID.
func Default() *ServerConfig {
	return &ServerConfig{
		ListenPort: DefaultListenPort,
		Server: ServerSection{
			ID:         uuid.NewString(),
			Name:       "netplay server",
			MaxPlayers: 16,
			MaxPeers:   netplay.MinServerPeers,
		},
		Discovery: DiscoverySection{
			Enabled: true,
			Group:   discovery.DefaultGroup.String(),
			Port:    discovery.DefaultPort,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration at path on top of the defaults. A missing
// file is created with the default configuration.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			if err := cfg.Save(path); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"path":     path,
			}).Info("Config file not found, created default")
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	cfg.Server.ID = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Server.ID == "" {
		cfg.Server.ID = uuid.NewString()
		if err := cfg.Save(path); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"path":     path,
				"error":    err.Error(),
			}).Warn("Failed to persist generated server id")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
	}).Debug("Configuration loaded")
	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *ServerConfig) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// HasPassword reports whether joining requires a password.
func (c *ServerConfig) HasPassword() bool {
	return c.Server.Password != ""
}

// HasWhitelist reports whether joining is restricted to a whitelist.
func (c *ServerConfig) HasWhitelist() bool {
	return len(c.Server.Whitelist) > 0
}

// ServerID parses the configured server ID.
func (c *ServerConfig) ServerID() (uuid.UUID, error) {
	return uuid.Parse(c.Server.ID)
}

// ManagerOptions returns the transport options for this server.
func (c *ServerConfig) ManagerOptions() *netplay.Options {
	opts := netplay.NewOptions()
	if c.Server.MaxPeers > 0 {
		opts.MaxPeers = c.Server.MaxPeers
	}
	return opts
}

// DiscoveryOptions returns the advertiser options for this server.
func (c *ServerConfig) DiscoveryOptions() discovery.Options {
	opts := discovery.DefaultOptions()
	if ip := net.ParseIP(c.Discovery.Group); ip != nil {
		opts.Group = ip
	}
	if c.Discovery.Port > 0 {
		opts.Port = c.Discovery.Port
	}
	opts.Interface = c.Discovery.Interface
	return opts
}

// ServerInfo returns what the advertiser publishes for the given player
// count and build version.
func (c *ServerConfig) ServerInfo(players int, version uint64) discovery.ServerInfo {
	id, _ := c.ServerID()
	return discovery.ServerInfo{
		Port:           uint16(c.ListenPort),
		ServerID:       id,
		Name:           c.Server.Name,
		HasPassword:    c.HasPassword(),
		HasWhitelist:   c.HasWhitelist(),
		GameMode:       c.Server.GameMode,
		CurrentPlayers: uint32(max(players, 0)),
		MaxPlayers:     uint32(max(c.Server.MaxPlayers, 0)),
		LevelName:      c.Server.Level,
		Version:        version,
	}
}
