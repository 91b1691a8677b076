package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/netplay"
	"github.com/opd-ai/netplay/limits"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration.
func (c *ServerConfig) Validate() *ValidationResult {
	result := &ValidationResult{}

	validatePort(c.ListenPort, "listen_port", result)
	validateServer(&c.Server, result)
	validateDiscovery(&c.Discovery, c.ListenPort, result)
	validateLogging(&c.Logging, result)

	for _, w := range result.Warnings {
		logrus.WithFields(logrus.Fields{
			"function": "Validate",
			"field":    w.Field,
		}).Warn(w.Message)
	}
	return result
}

func validateServer(s *ServerSection, result *ValidationResult) {
	if _, err := uuid.Parse(s.ID); err != nil {
		result.AddError("server.id", fmt.Sprintf("invalid server id %q", s.ID))
	}

	if strings.TrimSpace(s.Name) == "" {
		result.AddWarning("server.name", "empty name keeps the server out of LAN discovery")
	}
	if err := limits.ValidateName(s.Name); err != nil {
		result.AddError("server.name", err.Error())
	}
	if err := limits.ValidateName(s.Level); err != nil {
		result.AddError("server.level", err.Error())
	}

	if s.MaxPlayers < 1 {
		result.AddError("server.max_players", "must allow at least 1 player")
	}
	if s.MaxPeers != 0 && s.MaxPeers < netplay.MinServerPeers {
		result.AddWarning("server.max_peers",
			fmt.Sprintf("raised to the minimum of %d", netplay.MinServerPeers))
	}
	if s.MaxPeers != 0 && s.MaxPlayers > max(s.MaxPeers, netplay.MinServerPeers) {
		result.AddError("server.max_players", "exceeds the connection capacity")
	}

	for i, name := range s.Whitelist {
		if strings.TrimSpace(name) == "" {
			result.AddError(fmt.Sprintf("server.whitelist[%d]", i), "empty entry")
		}
	}
}

func validateDiscovery(d *DiscoverySection, listenPort int, result *ValidationResult) {
	if !d.Enabled {
		return
	}

	ip := net.ParseIP(d.Group)
	if ip == nil || ip.To4() != nil || !ip.IsMulticast() {
		result.AddError("discovery.group", fmt.Sprintf("not an IPv6 multicast address: %q", d.Group))
	} else if !ip.IsLinkLocalMulticast() {
		result.AddWarning("discovery.group", "group is not link-local, responses may leave the segment")
	}

	validatePort(d.Port, "discovery.port", result)
	if d.Port == listenPort {
		result.AddError("discovery.port", "port conflict detected: discovery and game ports must differ")
	}

	if d.Interface != "" {
		if _, err := net.InterfaceByName(d.Interface); err != nil {
			result.AddWarning("discovery.interface",
				fmt.Sprintf("interface %q not found, discovery will be disabled", d.Interface))
		}
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", err.Error())
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		result.AddError("logging.format", fmt.Sprintf("unknown format %q", l.Format))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
