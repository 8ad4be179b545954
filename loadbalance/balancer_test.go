package loadbalance

import (
	"errors"
	"fmt"
	"testing"

	"syscontrol/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances in order
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != testInstances[i].Addr {
			t.Fatalf("pick %d: expect %s, got %s", i, testInstances[i].Addr, inst.Addr)
		}
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances)
	if inst.Addr != testInstances[0].Addr {
		t.Fatalf("expect wrap around to %s, got %s", testInstances[0].Addr, inst.Addr)
	}
}

func TestEmptyInstances(t *testing.T) {
	balancers := []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer("host")}
	for _, b := range balancers {
		if _, err := b.Pick(nil); !errors.Is(err, ErrNoInstances) {
			t.Errorf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	zero := []registry.ServiceInstance{{Addr: "a"}, {Addr: "b", Weight: -3}}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(zero)
		if err != nil {
			t.Fatal(err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) != 2 {
		t.Fatalf("zero total weight should pick uniformly, saw %v", seen)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer("")
	for i := range testInstances {
		b.Add(&testInstances[i])
	}

	// Same key should always map to the same instance
	inst1, _ := b.PickKey("user-123")
	inst2, _ := b.PickKey("user-123")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.PickKey(fmt.Sprintf("key-%d", i))
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestConsistentHashBalancerIsStable(t *testing.T) {
	b := NewConsistentHashBalancer("host-a")

	first, err := b.Pick(testInstances)
	if err != nil {
		t.Fatal(err)
	}

	// order of the discovered list does not matter
	reversed := []registry.ServiceInstance{testInstances[2], testInstances[1], testInstances[0]}
	for i := 0; i < 10; i++ {
		inst, _ := b.Pick(reversed)
		if inst.Addr != first.Addr {
			t.Fatalf("expect %s, got %s", first.Addr, inst.Addr)
		}
	}

	// after the chosen instance leaves, another one is picked
	var rest []registry.ServiceInstance
	for _, inst := range testInstances {
		if inst.Addr != first.Addr {
			rest = append(rest, inst)
		}
	}
	inst, _ := b.Pick(rest)
	if inst.Addr == first.Addr {
		t.Fatalf("picked removed instance %s", inst.Addr)
	}
}

func TestNew(t *testing.T) {
	tests := map[string]string{
		"":               "RoundRobin",
		"round_robin":    "RoundRobin",
		"WeightedRandom": "WeightedRandom",
		"consistenthash": "ConsistentHash",
	}
	for name, want := range tests {
		b, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if b.Name() != want {
			t.Errorf("New(%q) = %s, want %s", name, b.Name(), want)
		}
	}
	if _, err := New("fastest"); err == nil {
		t.Fatal("expect error for unknown balancer")
	}
}
