package config

const (
	defaultDataDir            = "~/.local/share/roost/data"
	defaultLogDir             = "~/.local/share/roost/logs"
	defaultAPIBind            = "127.0.0.1:7733"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultLockDuration       = 120
	defaultHandlerBudget      = 60
	defaultConcurrency        = 8
	defaultBatchSize          = 50
	defaultFetchTimeout       = 15
	defaultDeliveryTimeout    = 30
	defaultUserAgent          = "roost/0.1"
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Scheduler: Scheduler{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			LockDuration:       defaultLockDuration,
			HandlerBudget:      defaultHandlerBudget,
			Concurrency:        defaultConcurrency,
			BatchSize:          defaultBatchSize,
		},
		Federation: Federation{
			RequestTimeout:  defaultFetchTimeout,
			DeliveryTimeout: defaultDeliveryTimeout,
			UserAgent:       defaultUserAgent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Errors:         true,
			Milestones:     false,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
