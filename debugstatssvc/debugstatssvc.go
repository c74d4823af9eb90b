package debugstatssvc

import (
	"context"
	"fmt"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/service"
	"go.uber.org/zap"
	"runtime"
	"time"
)

// Config controls periodic logging of runtime stats.
type Config struct {
	// IsEnabled describes whether periodic debug stats logging is desired.
	IsEnabled bool
	// Interval in which to log debug stats.
	Interval time.Duration
}

type debugStatsService struct {
	logger *zap.Logger
	config Config
}

// NewService creates a service.Service that logs runtime stats like memory
// usage and goroutine counts in the configured interval. If not enabled, Run
// returns immediately.
func NewService(logger *zap.Logger, config Config) (service.Service, error) {
	if config.IsEnabled && config.Interval <= 0 {
		return nil, errors.NewInternalError("debug stats interval must be positive",
			errors.Details{"was": config.Interval})
	}
	return &debugStatsService{
		logger: logger,
		config: config,
	}, nil
}

func (s *debugStatsService) Run(ctx context.Context) error {
	if !s.config.IsEnabled {
		return nil
	}
	s.logger.Debug(fmt.Sprintf("logging system state every %s", s.config.Interval))
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	lastNumGoroutine := runtime.NumGoroutine()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			lastNumGoroutine = s.logStats(lastNumGoroutine)
		}
	}
}

// logStats logs the current system state and returns the goroutine count so
// that the next call can report the delta. A growing delta over many entries
// is usually a goroutine leak.
func (s *debugStatsService) logStats(lastNumGoroutine int) int {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	numGoroutine := runtime.NumGoroutine()
	stack := make([]byte, 1<<16)
	stackSize := runtime.Stack(stack, true)
	s.logger.Debug("system stats",
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("num_goroutines", numGoroutine),
		zap.Int("num_goroutines_delta", numGoroutine-lastNumGoroutine),
		zap.Uint64("memory_sys_mb", memStats.Sys/1000/1000),
		zap.Uint64("heap_alloc_mb", memStats.HeapAlloc/1000/1000),
		zap.String("stack", string(stack[:stackSize])))
	return numGoroutine
}
