package config

const (
	defaultConfigPath             = "~/.config/metaprop/config.toml"
	defaultDataDir                = "~/.local/share/metaprop"
	defaultLogDir                 = "~/.local/share/metaprop/logs"
	defaultQueueBackend           = QueueBackendSQLite
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultMetricsBind            = "127.0.0.1:9464"
	defaultDrainIntervalSeconds   = 60
	defaultDrainMaxRuntimeSeconds = 0
	defaultDrainBurst             = 1
	defaultReindexWorkers         = 4
)

// Queue backends.
const (
	QueueBackendSQLite   = "sqlite"
	QueueBackendPostgres = "postgres"
)

// Enhancer types understood by enhancer.FromConfig.
const (
	EnhancerTypeRelated   = "related"
	EnhancerTypeCompose   = "compose"
	EnhancerTypeNormalize = "normalize"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Queue: Queue{
			Backend: defaultQueueBackend,
		},
		Drain: Drain{
			IntervalSeconds:   defaultDrainIntervalSeconds,
			MaxRuntimeSeconds: defaultDrainMaxRuntimeSeconds,
			Burst:             defaultDrainBurst,
			ReindexWorkers:    defaultReindexWorkers,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
