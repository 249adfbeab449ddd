package testsupport

import (
	"path/filepath"
	"testing"

	"metaprop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LockFileDir = filepath.Join(base, "locks")
	cfgVal.Paths.RecordsDB = filepath.Join(base, "data", "records.db")
	cfgVal.Paths.QueueDB = filepath.Join(base, "data", "queue.db")
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEnhancers replaces the configured enhancer definitions.
func WithEnhancers(defs ...config.Enhancer) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enhancers = append([]config.Enhancer(nil), defs...)
	}
}

// WithDrain overrides the drain tuning block.
func WithDrain(drain config.Drain) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Drain = drain
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
