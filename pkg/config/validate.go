// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if strings.TrimSpace(c.Redis.URL) == "" {
			missing = append(missing, "REDIS_URL")
		}
	case StorageDriverBolt:
		if strings.TrimSpace(c.Storage.BoltPath) == "" {
			missing = append(missing, "BOLT_PATH")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if r := c.Claims.PartialRefundMaxRatio; r <= 0 || r > 1 {
		return fmt.Errorf("CLAIM_PARTIAL_REFUND_MAX_RATIO must be in (0, 1], got %v", r)
	}
	if c.Claims.ReturnWindowDays < 0 || c.Claims.ReturnShippingCost < 0 {
		return fmt.Errorf("claim policy values must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when RATE_LIMIT_REQUESTS is set")
	}

	return nil
}
