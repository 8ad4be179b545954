package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix is the root of every registry key.
const KeyPrefix = "/syscontrol/"

// DefaultDialTimeout bounds the initial connection to etcd.
const DefaultDialTimeout = 3 * time.Second

// EtcdRegistry implements the Registry interface using etcd v3.
//
// etcd serves as a "distributed phonebook" for services:
//
//	Key:   /syscontrol/{Descriptor}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if the server crashes, the lease expires
// and the entry is removed automatically.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	owned  bool             // client was created by NewEtcdRegistry
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: DefaultDialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, owned: true}, nil
}

// NewEtcdRegistryFromClient wraps an existing client. Close leaves it open.
func NewEtcdRegistryFromClient(c *clientv3.Client) *EtcdRegistry {
	return &EtcdRegistry{client: c}
}

func servicePrefix(serviceName string) string {
	return KeyPrefix + serviceName + "/"
}

// Register adds a service instance to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to renew the lease in the background
//
// leaseID stays local so several servers may share one EtcdRegistry.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, servicePrefix(serviceName)+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// drain responses so the channel never fills
	go func() {
		for range ch {
		}
		log.Debug().Str("service", serviceName).Str("addr", instance.Addr).Msg("registry: keepalive stopped")
	}()
	log.Info().Str("service", serviceName).Str("addr", instance.Addr).Int64("ttl", ttl).Msg("registry: registered")
	return nil
}

// Deregister removes a service instance from etcd.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	_, err := r.client.Delete(context.TODO(), servicePrefix(serviceName)+addr)
	return err
}

// Watch emits the full instance list whenever the set under the service
// prefix changes. Only the latest list is kept if the reader falls behind.
// The channel is closed when the etcd client is closed.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(context.TODO(), servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// re-fetch rather than apply individual events
			instances, err := r.Discover(serviceName)
			if err != nil {
				log.Warn().Err(err).Str("service", serviceName).Msg("registry: refresh after watch event")
				continue
			}
			select {
			case <-ch:
			default:
			}
			ch <- instances
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a service.
func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(context.TODO(), servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			log.Warn().Str("key", string(kv.Key)).Err(err).Msg("registry: skipping malformed entry")
			continue
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// Close releases the etcd client if the registry created it.
func (r *EtcdRegistry) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
