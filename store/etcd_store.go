package store

import (
	"context"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdTimeout bounds each etcd request made by EtcdStore.
const DefaultEtcdTimeout = 2 * time.Second

// EtcdStore is a PropertyStore kept in etcd under a key prefix, so several
// daemons can share one property namespace.
type EtcdStore struct {
	client  *clientv3.Client
	prefix  string
	timeout time.Duration
}

// NewEtcdStore stores key k at prefix+k. A timeout <= 0 uses DefaultEtcdTimeout.
func NewEtcdStore(client *clientv3.Client, prefix string, timeout time.Duration) *EtcdStore {
	if timeout <= 0 {
		timeout = DefaultEtcdTimeout
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &EtcdStore{client: client, prefix: prefix, timeout: timeout}
}

func (s *EtcdStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		return "", false, err
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (s *EtcdStore) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.client.Put(ctx, s.prefix+key, value)
	return err
}

// Keys returns the keys under the prefix, without it, in sorted order.
func (s *EtcdStore) Keys() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, strings.TrimPrefix(string(kv.Key), s.prefix))
	}
	return keys, nil
}
