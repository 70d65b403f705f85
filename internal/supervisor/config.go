package supervisor

import "time"

// Config holds the tunables for a worker pool.
type Config struct {
	WorkerCount       int           // number of worker slots to maintain
	BinaryPath        string        // path to the worker executable
	Args              []string      // extra arguments passed to each worker
	Env               []string      // extra environment variables (appended to os.Environ())
	WorkDir           string        // working directory for spawned workers, empty for current
	MaxRestarts       int           // restarts allowed per slot before it is parked; 0 disables the slot on its first exit
	InitialBackoff    time.Duration // delay before the first restart
	MaxBackoff        time.Duration // ceiling for exponential backoff
	BackoffMultiplier float64       // multiplier applied to the backoff delay on each consecutive failure
	HeartbeatInterval time.Duration // interval workers are expected to report heartbeats on
	ResponseTimeout   time.Duration // max time to wait for a worker response before treating it as lost
	StopTimeout       time.Duration // grace period between TERM and KILL on stop
	HealthPorts       []int         // ports probed (127.0.0.1) to confirm a worker slot is bound
	HealthTimeout     time.Duration // per-port dial timeout during a health probe
}

// WithDefaults fills zero-valued fields with sane defaults, mirroring the
// teacher's ManagerConfig construction pattern.
func (c Config) WithDefaults() Config {
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = 500 * time.Millisecond
	}
	if c.WorkerCount == 0 {
		c.WorkerCount = 1
	}
	return c
}
