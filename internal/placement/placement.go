// Package placement selects storage nodes for new or replacement chunks.
//
// Placement is split in two layers:
//
//   - An Allocator is the placement collaborator. It knows which nodes exist
//     (through a Directory) and proposes candidates for a metachunk.
//   - The Selector sits between content code and the allocator. It never
//     trusts the allocator's answer: every candidate is filtered against the
//     known and excluded locations, and a short answer is an error.
//
// Usage Flow:
// 1. Configuration builds a Directory from static nodes, an SSM parameter or resource tags
// 2. A RoundRobinAllocator spreads chunks over the directory, preferring distinct racks
// 3. Content code calls Selector.Spare for every metachunk it writes or rebuilds
//
// Example:
//
//	dir := NewStaticDirectory()
//	dir.Register(RoleRawx, ServiceInfo{Addr: "s3://bucket-a", Tags: map[string]string{TagServiceID: "rawx-1"}})
//	sel := NewSelector(NewRoundRobinAllocator(dir, policies))
//	locs, err := sel.Spare(ctx, SpareRequest{Count: 3, Policy: "THREECOPIES"})
package placement

import (
	"context"

	"github.com/zzenonn/zblob/internal/domain"
)

// RoleRawx is the directory role of chunk storage nodes.
const RoleRawx = "rawx"

// Tag keys describing a service.
const (
	TagServiceID = "tag.service_id"
	TagVolume    = "tag.vol"
	TagRack      = "tag.rack"
)

// ServiceInfo is one entry of the service directory.
type ServiceInfo struct {
	Addr string
	Tags map[string]string
}

// ServiceID returns the service id tag, or the address when untagged.
func (s ServiceInfo) ServiceID() string {
	if id := s.Tags[TagServiceID]; id != "" {
		return id
	}
	return s.Addr
}

// Location converts the entry into a chunk location.
func (s ServiceInfo) Location() domain.Location {
	return domain.Location{ServiceID: s.ServiceID(), Addr: s.Addr, Rack: s.Tags[TagRack]}
}

// Directory lists the services of a role.
type Directory interface {
	List(ctx context.Context, role string) ([]ServiceInfo, error)
}

// SpareRequest asks for Count new locations for one metachunk.
type SpareRequest struct {
	// Known locations already hold a chunk of the metachunk.
	Known []domain.Location
	// Excluded locations must not be used (broken or failed destinations).
	Excluded []domain.Location
	Count    int
	Policy   string
	// AvoidSameNodeAs is a host no candidate may share, enforced client-side.
	AvoidSameNodeAs string
}

// Allocator proposes candidate locations.
//
// Implementations return ErrTooManyLocations when the known locations leave
// no room for Count more chunks under the policy. They may return fewer
// candidates than asked when the directory runs out of nodes.
type Allocator interface {
	Spare(ctx context.Context, req SpareRequest) ([]domain.Location, error)
}
