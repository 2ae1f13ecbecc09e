package placement

import (
	"context"
	"errors"
	"fmt"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// Selector validates what an Allocator proposes.
type Selector struct {
	alloc Allocator
}

// NewSelector wraps an allocator
func NewSelector(alloc Allocator) *Selector {
	return &Selector{alloc: alloc}
}

// Spare returns exactly req.Count locations, none of them known, excluded or
// on the avoided node. Anything less fails with ErrPlacementExhausted.
func (s *Selector) Spare(ctx context.Context, req SpareRequest) ([]domain.Location, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("spare request for %d locations", req.Count)
	}

	candidates, err := s.alloc.Spare(ctx, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrTooManyLocations) {
			return nil, apperrors.NewKindError("spare request rejected", err, apperrors.ErrPlacementExhausted)
		}
		return nil, fmt.Errorf("spare request failed: %w", err)
	}

	banned := make(map[string]bool)
	for _, l := range req.Known {
		banned[l.Host()] = true
	}
	for _, l := range req.Excluded {
		banned[l.Host()] = true
	}
	if req.AvoidSameNodeAs != "" {
		banned[req.AvoidSameNodeAs] = true
	}

	valid := make([]domain.Location, 0, req.Count)
	for _, c := range candidates {
		if c.Host() == "" || banned[c.Host()] {
			continue
		}
		banned[c.Host()] = true
		valid = append(valid, c)
		if len(valid) == req.Count {
			return valid, nil
		}
	}

	return nil, fmt.Errorf("%w: found %d of %d locations for policy %s",
		apperrors.ErrPlacementExhausted, len(valid), req.Count, req.Policy)
}
