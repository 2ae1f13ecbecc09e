package placement

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

// RoundRobinAllocator implements round-robin placement over a directory
type RoundRobinAllocator struct {
	mu       sync.Mutex
	dir      Directory
	policies *storagemethod.Policies
	cursor   int
}

// NewRoundRobinAllocator creates a new round-robin allocator
func NewRoundRobinAllocator(dir Directory, policies *storagemethod.Policies) *RoundRobinAllocator {
	return &RoundRobinAllocator{
		dir:      dir,
		policies: policies,
	}
}

// Spare picks up to req.Count nodes, walking the directory from a rotating
// cursor. Hosts are always distinct; racks are kept distinct while possible.
func (a *RoundRobinAllocator) Spare(ctx context.Context, req SpareRequest) ([]domain.Location, error) {
	sm, err := a.policies.Lookup(req.Policy)
	if err != nil {
		return nil, err
	}
	if len(req.Known)+req.Count > sm.ExpectedChunkCount() {
		return nil, fmt.Errorf("%w: %d known, %d requested, policy %s allows %d",
			apperrors.ErrTooManyLocations, len(req.Known), req.Count, req.Policy, sm.ExpectedChunkCount())
	}

	services, err := a.dir.List(ctx, RoleRawx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s services: %w", RoleRawx, err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("no %s service registered", RoleRawx)
	}

	banned := make(map[string]bool)
	usedRacks := make(map[string]bool)
	for _, l := range req.Known {
		banned[l.Host()] = true
		if l.Rack != "" {
			usedRacks[l.Rack] = true
		}
	}
	for _, l := range req.Excluded {
		banned[l.Host()] = true
	}
	if req.AvoidSameNodeAs != "" {
		banned[req.AvoidSameNodeAs] = true
	}

	a.mu.Lock()
	start := a.cursor % len(services)
	a.cursor++
	a.mu.Unlock()

	picked := make([]domain.Location, 0, req.Count)
	// first pass keeps racks distinct, second pass only hosts
	for pass := 0; pass < 2 && len(picked) < req.Count; pass++ {
		for i := 0; i < len(services) && len(picked) < req.Count; i++ {
			loc := services[(start+i)%len(services)].Location()
			if banned[loc.Host()] {
				continue
			}
			if pass == 0 && loc.Rack != "" && usedRacks[loc.Rack] {
				continue
			}
			banned[loc.Host()] = true
			if loc.Rack != "" {
				usedRacks[loc.Rack] = true
			}
			picked = append(picked, loc)
		}
	}

	if len(picked) < req.Count {
		log.WithFields(log.Fields{
			"policy":    req.Policy,
			"requested": req.Count,
			"found":     len(picked),
		}).Debug("Not enough free services for spare request")
	}
	return picked, nil
}
