// Package consul provides an object store backed by the HashiCorp Consul
// KV store. Consul values are capped at 512 KiB, so this store suits small
// chunk sizes: configuration trees, metadata snapshots, and tests against
// a shared service.
package consul

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/consul/api"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/store"
)

// MaxPayload stays under the Consul KV value limit of 512 KiB, leaving
// headroom for transaction encoding overhead.
const MaxPayload int64 = 480 << 10

type ConsulStore struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV

	config *ConsulStoreConfig
}

// ConsulStoreConfig contains connection options for the Consul store.
type ConsulStoreConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Prefix for all keys in Consul KV (default: "chunkfs")
	Prefix string
}

func NewConsulStore(config *ConsulStoreConfig) (*ConsulStore, error) {
	if config == nil {
		config = &ConsulStoreConfig{}
	}

	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}

	if config.Prefix == "" {
		config.Prefix = "chunkfs"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulStore{
		client: client,
		kv:     client.KV(),
		config: config,
	}, nil
}

// Returns the identifier name defined for this store
func (*ConsulStore) Name() string {
	return "consul"
}

// Open verifies the Consul agent is reachable.
func (cs *ConsulStore) Open(ctx context.Context) error {
	_, err := cs.client.Agent().Self()
	if err != nil {
		return store.Transient("open", err)
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called on unmount.
func (cs *ConsulStore) Close(ctx context.Context) error {
	return nil
}

func (cs *ConsulStore) Put(ctx context.Context, payload []byte) (string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if int64(len(payload)) > MaxPayload {
		return "", store.Permanent("put", store.ErrPayloadTooLarge)
	}

	handle := uuid.NewString()
	pair := &api.KVPair{
		Key:   cs.objectKey(handle),
		Value: payload,
	}

	if _, err := cs.kv.Put(pair, writeOptions(ctx)); err != nil {
		return "", classify("put", err)
	}

	return handle, nil
}

func (cs *ConsulStore) Get(ctx context.Context, handle string) ([]byte, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	pair, _, err := cs.kv.Get(cs.objectKey(handle), queryOptions(ctx))
	if err != nil {
		return nil, classify("get", err)
	}

	if pair == nil {
		return nil, data.ErrNotExist
	}

	return pair.Value, nil
}

func (cs *ConsulStore) Delete(ctx context.Context, handle string) error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	key := cs.objectKey(handle)

	pair, _, err := cs.kv.Get(key, queryOptions(ctx))
	if err != nil {
		return classify("delete", err)
	}

	if pair == nil {
		return data.ErrNotExist
	}

	if _, err := cs.kv.Delete(key, writeOptions(ctx)); err != nil {
		return classify("delete", err)
	}

	return nil
}

func (cs *ConsulStore) SetPointer(ctx context.Context, name, handle string) error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	pair := &api.KVPair{
		Key:   cs.pointerKey(name),
		Value: []byte(handle),
	}

	if _, err := cs.kv.Put(pair, writeOptions(ctx)); err != nil {
		return classify("set-pointer", err)
	}

	return nil
}

func (cs *ConsulStore) GetPointer(ctx context.Context, name string) (string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	pair, _, err := cs.kv.Get(cs.pointerKey(name), queryOptions(ctx))
	if err != nil {
		return "", classify("get-pointer", err)
	}

	if pair == nil {
		return "", data.ErrNotExist
	}

	return string(pair.Value), nil
}

func (cs *ConsulStore) MaxPayloadSize() int64 {
	return MaxPayload
}

func (cs *ConsulStore) objectKey(handle string) string {
	return fmt.Sprintf("%s/objects/%s", cs.config.Prefix, handle)
}

func (cs *ConsulStore) pointerKey(name string) string {
	return fmt.Sprintf("%s/pointers/%s", cs.config.Prefix, name)
}

func writeOptions(ctx context.Context) *api.WriteOptions {
	return new(api.WriteOptions).WithContext(ctx)
}

func queryOptions(ctx context.Context) *api.QueryOptions {
	return new(api.QueryOptions).WithContext(ctx)
}

// classify maps Consul client failures onto the store error taxonomy.
// The client surfaces HTTP status in error strings; rate limiting and
// server unavailability retry, the rest is permanent.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout") {
		return store.Transient(op, err)
	}

	return store.Permanent(op, err)
}
