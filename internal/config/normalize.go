package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeDrain()
	c.normalizeMetrics()
	c.normalizeLogging()
	c.normalizeEnhancers()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockFileDir) == "" {
		c.Paths.LockFileDir = c.Paths.DataDir
	}
	if c.Paths.LockFileDir, err = expandPath(c.Paths.LockFileDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RecordsDB) == "" {
		c.Paths.RecordsDB = filepath.Join(c.Paths.DataDir, "records.db")
	}
	if c.Paths.RecordsDB, err = expandPath(c.Paths.RecordsDB); err != nil {
		return fmt.Errorf("paths.records_db: %w", err)
	}
	if strings.TrimSpace(c.Paths.QueueDB) == "" {
		c.Paths.QueueDB = filepath.Join(c.Paths.DataDir, "queue.db")
	}
	if c.Paths.QueueDB, err = expandPath(c.Paths.QueueDB); err != nil {
		return fmt.Errorf("paths.queue_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	if value, ok := os.LookupEnv("METAPROP_POSTGRES_DSN"); ok && strings.TrimSpace(value) != "" {
		c.Queue.PostgresDSN = value
	}
	c.Queue.PostgresDSN = strings.TrimSpace(c.Queue.PostgresDSN)
}

func (c *Config) normalizeDrain() {
	if c.Drain.IntervalSeconds <= 0 {
		c.Drain.IntervalSeconds = defaultDrainIntervalSeconds
	}
	if c.Drain.MaxRuntimeSeconds < 0 {
		c.Drain.MaxRuntimeSeconds = 0
	}
	if c.Drain.Burst <= 0 {
		c.Drain.Burst = defaultDrainBurst
	}
	if c.Drain.ReindexWorkers <= 0 {
		c.Drain.ReindexWorkers = defaultReindexWorkers
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeEnhancers() {
	for i := range c.Enhancers {
		e := &c.Enhancers[i]
		e.Name = strings.TrimSpace(e.Name)
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		e.Relation = strings.TrimSpace(e.Relation)
		e.SourceField = strings.TrimSpace(e.SourceField)
		e.TargetField = strings.TrimSpace(e.TargetField)
		e.EntityTypes = trimAll(e.EntityTypes)
		e.Fields = trimAll(e.Fields)
		if e.Type == EnhancerTypeCompose && e.Separator == "" {
			e.Separator = " "
		}
	}
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
