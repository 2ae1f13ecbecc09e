package placement

import (
	"context"
	"fmt"
	"sync"
)

// StaticDirectory is a Directory built from configuration.
type StaticDirectory struct {
	mu       sync.RWMutex
	services map[string][]ServiceInfo
}

// NewStaticDirectory creates an empty directory
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		services: make(map[string][]ServiceInfo),
	}
}

// Register adds a service under a role
func (d *StaticDirectory) Register(role string, svc ServiceInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.services[role] {
		if existing.ServiceID() == svc.ServiceID() {
			return fmt.Errorf("service %s already registered", svc.ServiceID())
		}
	}

	d.services[role] = append(d.services[role], svc)
	return nil
}

// List returns a copy of the services of a role
func (d *StaticDirectory) List(_ context.Context, role string) ([]ServiceInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	services := make([]ServiceInfo, len(d.services[role]))
	copy(services, d.services[role])
	return services, nil
}
