package resilience

import "time"

// Tuning holds breaker knobs as they arrive from configuration.
type Tuning struct {
	IntervalSeconds int
	TimeoutSeconds  int
	Failures        int
	Successes       int
}

// BuildSettings turns configured knobs into Settings, filling unset values with defaults.
// isSuccessful may be nil.
func BuildSettings(name string, t Tuning, isSuccessful func(err error) bool) Settings {
	settings := Settings{
		Name:             name,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		IsSuccessful:     isSuccessful,
	}
	if t.IntervalSeconds > 0 {
		settings.Interval = time.Duration(t.IntervalSeconds) * time.Second
	}
	if t.TimeoutSeconds > 0 {
		settings.Timeout = time.Duration(t.TimeoutSeconds) * time.Second
	}
	if t.Failures > 0 {
		settings.FailureThreshold = uint32(t.Failures)
	}
	if t.Successes > 0 {
		settings.SuccessThreshold = uint32(t.Successes)
	}
	return settings
}
