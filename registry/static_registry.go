package registry

import (
	"fmt"
	"sync"
)

// StaticRegistry is an in-memory Registry. Instances passed to
// NewStaticRegistry serve every descriptor; Register adds instances for one
// descriptor only. Leases are not enforced.
type StaticRegistry struct {
	mu       sync.RWMutex
	fallback []ServiceInstance
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

// NewStaticRegistry creates a registry that resolves every descriptor to addrs.
func NewStaticRegistry(addrs ...string) *StaticRegistry {
	r := &StaticRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
	for _, addr := range addrs {
		r.fallback = append(r.fallback, ServiceInstance{Addr: addr, Weight: 1})
	}
	return r
}

func (r *StaticRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	if instance.Addr == "" {
		return fmt.Errorf("registry: empty address for %q", serviceName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.services[serviceName]
	for i := range list {
		if list[i].Addr == instance.Addr {
			list[i] = instance
			r.notify(serviceName)
			return nil
		}
	}
	r.services[serviceName] = append(list, instance)
	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.services[serviceName]
	for i := range list {
		if list[i].Addr == addr {
			r.services[serviceName] = append(list[:i:i], list[i+1:]...)
			r.notify(serviceName)
			return nil
		}
	}
	return nil
}

func (r *StaticRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(serviceName), nil
}

// Watch emits the current list immediately and again after each change.
func (r *StaticRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	ch <- r.lookup(serviceName)
	return ch
}

// lookup requires r.mu.
func (r *StaticRegistry) lookup(serviceName string) []ServiceInstance {
	out := make([]ServiceInstance, 0, len(r.services[serviceName])+len(r.fallback))
	out = append(out, r.services[serviceName]...)
	out = append(out, r.fallback...)
	return out
}

// notify requires r.mu held for writing.
func (r *StaticRegistry) notify(serviceName string) {
	list := r.lookup(serviceName)
	for _, ch := range r.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
