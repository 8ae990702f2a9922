package scheduler

import (
	"maps"

	"go.trai.ch/knit/internal/core/domain"
)

// GetBundleStatusMap returns a copy of the internal bundle status map.
// This is exported for testing purposes only.
func (s *Scheduler) GetBundleStatusMap() map[domain.BundleIndex]BundleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.bundleStatus)
}
