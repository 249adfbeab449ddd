package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateDrain(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateEnhancers()
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueBackendSQLite:
		if c.Paths.QueueDB == "" {
			return errors.New("paths.queue_db must be set for the sqlite queue backend")
		}
	case QueueBackendPostgres:
		if c.Queue.PostgresDSN == "" {
			return errors.New("queue.postgres_dsn must be set when queue.backend is postgres (or set METAPROP_POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q (want %q or %q)", c.Queue.Backend, QueueBackendSQLite, QueueBackendPostgres)
	}
	return nil
}

func (c *Config) validateDrain() error {
	if c.Drain.MaxItemsPerSecond < 0 {
		return errors.New("drain.max_items_per_second must be zero (unlimited) or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateEnhancers() error {
	seen := make(map[string]struct{}, len(c.Enhancers))
	for i, e := range c.Enhancers {
		label := fmt.Sprintf("enhancers[%d]", i)
		if e.Name == "" {
			return fmt.Errorf("%s.name must be set", label)
		}
		label = fmt.Sprintf("enhancers[%d] (%s)", i, e.Name)
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("%s: duplicate enhancer name", label)
		}
		seen[e.Name] = struct{}{}

		switch e.Type {
		case EnhancerTypeRelated:
			if e.Relation == "" || e.SourceField == "" || e.TargetField == "" {
				return fmt.Errorf("%s: related enhancers need relation, source_field and target_field", label)
			}
		case EnhancerTypeCompose:
			if len(e.EntityTypes) == 0 || len(e.Fields) == 0 || e.TargetField == "" {
				return fmt.Errorf("%s: compose enhancers need entity_types, fields and target_field", label)
			}
		case EnhancerTypeNormalize:
			if len(e.Fields) == 0 {
				return fmt.Errorf("%s: normalize enhancers need fields", label)
			}
		default:
			return fmt.Errorf("%s: unsupported type %q", label, e.Type)
		}
	}
	return nil
}
