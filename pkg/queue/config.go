package queue

import "time"

// Config contains queue and worker pool configuration. These values control
// how queued alerts are polled, claimed, and processed.
type Config struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes queued alerts.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentInvestigations is the global limit of concurrent
	// investigations across ALL replicas/pods. Enforced by database
	// COUNT(*) check.
	MaxConcurrentInvestigations int `yaml:"max_concurrent_investigations"`

	// PollInterval is the base interval for checking queued alerts.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// InvestigationTimeout is the maximum wall-clock time one investigation
	// run may take before its context is cancelled.
	InvestigationTimeout time.Duration `yaml:"investigation_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active
	// investigations to complete during shutdown. Should match
	// InvestigationTimeout.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often a worker refreshes the heartbeat on
	// its claimed alert.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often to scan for orphaned claims.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a claimed alert can go without a
	// heartbeat before it is considered orphaned and requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// MaxAttempts is how many times an alert is (re)claimed before it is
	// parked as dead instead of requeued.
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultConfig returns the built-in queue defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:                 5,
		MaxConcurrentInvestigations: 5,
		PollInterval:                1 * time.Second,
		PollIntervalJitter:          500 * time.Millisecond,
		InvestigationTimeout:        15 * time.Minute,
		GracefulShutdownTimeout:     15 * time.Minute,
		HeartbeatInterval:           30 * time.Second,
		OrphanDetectionInterval:     5 * time.Minute,
		OrphanThreshold:             5 * time.Minute,
		MaxAttempts:                 3,
	}
}
