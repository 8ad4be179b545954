// Package loadbalance provides strategies for choosing one server among the
// instances registered for a descriptor.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  pins a client to one instance while the set is stable
package loadbalance

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"syscontrol/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each transaction to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every transaction, so it must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer called name: "roundrobin" (also ""),
// "weightedrandom" or "consistenthash". The consistent hash is keyed by the
// host name.
func New(name string) (Balancer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "")) {
	case "", "roundrobin", "rr":
		return &RoundRobinBalancer{}, nil
	case "weightedrandom", "weighted", "random":
		return &WeightedRandomBalancer{}, nil
	case "consistenthash", "hash":
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "localhost"
		}
		return NewConsistentHashBalancer(host), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown balancer %q", name)
	}
}
