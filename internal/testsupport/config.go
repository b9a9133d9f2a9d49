package testsupport

import (
	"path/filepath"
	"testing"

	"roost/internal/config"
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
	cfgVal.Server.Domain = "roost.test"
	cfgVal.Server.DataDir = filepath.Join(base, "data")
	cfgVal.Server.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.APIBind = "127.0.0.1:0"
	cfgVal.Scheduler.PollInterval = 0
	cfgVal.Scheduler.ErrorRetryInterval = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return builder.cfg
}

// WithDomain overrides the server domain on the test config.
func WithDomain(domain string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Domain = domain
	}
}

// WithLockDuration overrides the scheduler lock duration, in seconds.
func WithLockDuration(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.LockDuration = seconds
		if b.cfg.Scheduler.HandlerBudget >= seconds {
			b.cfg.Scheduler.HandlerBudget = seconds / 2
		}
	}
}

// WithMaxAttempts sets the delivery attempt ceiling on the test config.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.MaxAttempts = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Server.DataDir)
}
