package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"syscontrol/registry"
)

// ConsistentHashBalancer maps keys to instances using a hash ring.
// The same key always maps to the same instance until the ring changes.
//
// Virtual nodes: each real instance is mapped to N virtual nodes on the ring,
// so that a handful of instances still spreads evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
//
// As a Balancer it hashes a fixed key, typically the client's host name, and
// rebuilds the ring whenever the instance list it is given changes.
type ConsistentHashBalancer struct {
	mu       sync.RWMutex
	key      string
	replicas int                                  // virtual nodes per real instance
	ring     []uint32                             // sorted hash values
	nodes    map[uint32]*registry.ServiceInstance // hash value → instance
	members  string                               // fingerprint of the instances on the ring
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per
// instance. key is the identity used by Pick.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: 100,
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add places an instance onto the hash ring with N virtual nodes.
// Each virtual node is hashed from "{addr}#{i}".
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(instance)
	b.members = ""
}

func (b *ConsistentHashBalancer) add(instance *registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickKey finds the instance responsible for key: the first virtual node
// clockwise from the key's hash, wrapping around past the largest.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pickKey(key)
}

func (b *ConsistentHashBalancer) pickKey(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := *b.nodes[b.ring[idx]]
	return &inst, nil
}

// Pick implements Balancer using the balancer's own key.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	members := fingerprint(instances)

	b.mu.RLock()
	if b.members == members {
		defer b.mu.RUnlock()
		return b.pickKey(b.key)
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.members != members {
		b.ring = b.ring[:0]
		b.nodes = make(map[uint32]*registry.ServiceInstance, len(instances)*b.replicas)
		for i := range instances {
			inst := instances[i]
			b.add(&inst)
		}
		b.members = members
	}
	return b.pickKey(b.key)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func fingerprint(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}
