package telemetry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type QueueBacklogRule struct {
	// Threshold is the queue depth a sample must exceed to count as a breach.
	Threshold float64 `yaml:"threshold"`
	Window    int     `yaml:"window"`
	MinBreach int     `yaml:"min_breaches"`
	// CriticalFactor scales Threshold for the CRITICAL level.
	CriticalFactor float64 `yaml:"critical_factor"`
}

type FailureSpikeRule struct {
	MinAbsolute     float64       `yaml:"min_absolute"`
	SpikeMultiplier float64       `yaml:"spike_multiplier"`
	Baseline        time.Duration `yaml:"baseline"`
	CriticalFactor  float64       `yaml:"critical_factor"`
}

type TimeoutRule struct {
	Window   time.Duration `yaml:"window"`
	MinCount float64       `yaml:"min_count"`
}

type Thresholds struct {
	QueueBacklog QueueBacklogRule `yaml:"queue_backlog"`
	FailureSpike FailureSpikeRule `yaml:"failure_spike"`
	Timeouts     TimeoutRule      `yaml:"timeouts"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		QueueBacklog: QueueBacklogRule{Threshold: 100, Window: 5, MinBreach: 3, CriticalFactor: 3},
		FailureSpike: FailureSpikeRule{MinAbsolute: 5, SpikeMultiplier: 3, Baseline: 30 * time.Minute, CriticalFactor: 2},
		Timeouts:     TimeoutRule{Window: 5 * time.Minute, MinCount: 1},
	}
}

// ParseThresholds decodes a YAML document over the defaults. Keys that are
// absent keep their default value.
func ParseThresholds(raw []byte) (Thresholds, error) {
	th := DefaultThresholds()
	if len(raw) == 0 {
		return th, nil
	}
	if err := yaml.Unmarshal(raw, &th); err != nil {
		return Thresholds{}, fmt.Errorf("parse alert thresholds: %w", err)
	}
	if err := th.validate(); err != nil {
		return Thresholds{}, err
	}
	return th, nil
}

// LoadThresholds reads path, or returns the defaults when path is empty.
func LoadThresholds(path string) (Thresholds, error) {
	if path == "" {
		return DefaultThresholds(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read alert thresholds: %w", err)
	}
	return ParseThresholds(raw)
}

func (t Thresholds) validate() error {
	switch {
	case t.QueueBacklog.Window < 1:
		return fmt.Errorf("queue_backlog.window must be >= 1")
	case t.QueueBacklog.MinBreach < 1 || t.QueueBacklog.MinBreach > t.QueueBacklog.Window:
		return fmt.Errorf("queue_backlog.min_breaches must be within 1..window")
	case t.QueueBacklog.CriticalFactor < 1:
		return fmt.Errorf("queue_backlog.critical_factor must be >= 1")
	case t.FailureSpike.SpikeMultiplier <= 0:
		return fmt.Errorf("failure_spike.spike_multiplier must be > 0")
	case t.FailureSpike.Baseline < time.Minute:
		return fmt.Errorf("failure_spike.baseline must be at least 1m")
	case t.FailureSpike.CriticalFactor < 1:
		return fmt.Errorf("failure_spike.critical_factor must be >= 1")
	case t.Timeouts.Window < time.Minute:
		return fmt.Errorf("timeouts.window must be at least 1m")
	}
	return nil
}
