package breaker

import "time"

// Class names the breaker configuration tiers. Each compute path is gated
// by a breaker of the appropriate class.
type Class string

const (
	ClassDefault    Class = "default"
	ClassIndividual Class = "individual"
	ClassVectorized Class = "vectorized"
	ClassBulk       Class = "bulk"
)

// Settings returns the preset configuration for a class. Unknown classes
// get the default preset under their own name.
func Settings(class Class) Config {
	cfg := Config{
		Name:                  string(class),
		FailureRateThreshold:  0.5,
		SlowCallThreshold:     5 * time.Second,
		SlowCallRateThreshold: 0.8,
		RollingWindow:         60 * time.Second,
		HalfOpenMaxCalls:      3,
		MinWindowCalls:        5,
	}
	switch class {
	case ClassIndividual:
		cfg.FailureThreshold = 10
		cfg.TimeoutDuration = 60 * time.Second
		cfg.OpTimeout = 2 * time.Second
	case ClassVectorized:
		cfg.FailureThreshold = 3
		cfg.TimeoutDuration = 30 * time.Second
		cfg.OpTimeout = 15 * time.Second
	case ClassBulk:
		cfg.FailureThreshold = 2
		cfg.TimeoutDuration = 45 * time.Second
		cfg.OpTimeout = 45 * time.Second
	default:
		cfg.FailureThreshold = 5
		cfg.TimeoutDuration = 60 * time.Second
		cfg.OpTimeout = 1 * time.Second
	}
	return cfg
}
