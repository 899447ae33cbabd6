package sessions

import (
	"context"
	"time"

	"github.com/semidark/aichat/internal/logger"
)

// creates a new cleanup service
func NewCleanupService(registry *Registry, checkInterval, inactivityThreshold time.Duration) *CleanupService {
	return &CleanupService{
		registry:            registry,
		checkInterval:       checkInterval,
		inactivityThreshold: inactivityThreshold,
	}
}

// begins the cleanup service background loop
func (s *CleanupService) Start(ctx context.Context) {
	logger.Info("starting session cleanup service",
		"check_interval", s.checkInterval,
		"inactivity_threshold", s.inactivityThreshold,
	)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("session cleanup service stopped")
			return
		case <-ticker.C:
			s.cleanupIdleSessions()
		}
	}
}

// evicts registry entries that have been idle past the threshold.
// their history stays on disk, so the ids remain resumable.
func (s *CleanupService) cleanupIdleSessions() int {
	removed := s.registry.EvictIdle(time.Now().Add(-s.inactivityThreshold))

	if removed > 0 {
		logger.Debug("evicted idle sessions",
			"count", removed,
			"remaining", s.registry.Len(),
		)
	}

	return removed
}
