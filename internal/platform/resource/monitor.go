// Package resource provides the memory pressure monitor that gates the
// enrichment pipeline's AI path on low-memory deployments.
package resource

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/karanvats/scripalert/internal/platform/observability"
	"github.com/karanvats/scripalert/internal/platform/worker"
)

// State describes current resource pressure.
type State int

const (
	StateOK State = iota
	StateDegraded
)

const bytesPerMB = 1024.0 * 1024.0

// Monitor samples process RSS on a fixed interval and exposes the current
// pressure state. It is advisory back-pressure: in-flight work is never
// aborted, only new AI invocations are skipped while degraded.
type Monitor struct {
	softLimitMB float64
	interval    time.Duration
	gateAI      bool
	logger      *zerolog.Logger
	proc        *process.Process

	degraded atomic.Bool
}

// NewMonitor creates a monitor with the given soft limit in megabytes.
// gateAI controls whether AllowAI reflects pressure or always permits.
func NewMonitor(softLimitMB float64, interval time.Duration, gateAI bool, logger *zerolog.Logger) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open own process: %w", err)
	}

	return &Monitor{
		softLimitMB: softLimitMB,
		interval:    interval,
		gateAI:      gateAI,
		logger:      logger,
		proc:        proc,
	}, nil
}

// Run samples memory until the context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().
		Float64("soft_limit_mb", m.softLimitMB).
		Dur("interval", m.interval).
		Msg("memory monitor started")

	for {
		m.sample()

		if err := worker.Wait(ctx, m.interval); err != nil {
			return err
		}
	}
}

// CurrentPressure reports the state observed by the latest sample.
func (m *Monitor) CurrentPressure() State {
	if m.degraded.Load() {
		return StateDegraded
	}

	return StateOK
}

// AllowAI reports whether the enrichment pipeline may invoke the analyzer.
func (m *Monitor) AllowAI() bool {
	if !m.gateAI {
		return true
	}

	return m.CurrentPressure() == StateOK
}

func (m *Monitor) sample() {
	rssMB, err := m.rssMB()
	if err != nil {
		m.logger.Warn().Err(err).Msg("memory sample failed")

		return
	}

	wasDegraded := m.degraded.Load()
	nowDegraded := rssMB > m.softLimitMB
	m.degraded.Store(nowDegraded)

	if nowDegraded {
		observability.MemoryPressureDegraded.Set(1)
	} else {
		observability.MemoryPressureDegraded.Set(0)
	}

	observability.ProcessRSSMB.Set(rssMB)

	switch {
	case nowDegraded && !wasDegraded:
		m.logger.Warn().Float64("rss_mb", rssMB).Msg("entering low-memory mode, AI analysis throttled")
	case !nowDegraded && wasDegraded:
		m.logger.Info().Float64("rss_mb", rssMB).Msg("exiting low-memory mode")
	}
}

func (m *Monitor) rssMB() (float64, error) {
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("read memory info: %w", err)
	}

	return float64(info.RSS) / bytesPerMB, nil
}
