package loadbalance

import (
	"math/rand/v2"

	"syscontrol/registry"
)

// WeightedRandomBalancer picks instances with probability proportional to
// their weight. Negative weights count as zero; when every weight is zero the
// pick is uniform.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += max(v.Weight, 0)
	}
	if totalWeight == 0 {
		return &instances[rand.IntN(len(instances))], nil
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= max(instances[i].Weight, 0)
		if r < 0 {
			return &instances[i], nil
		}
	}

	// unreachable: r < totalWeight
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
