// Package s3 provides an object store backed by any S3-compatible service
// through the MinIO client. Each chunk payload becomes one object under a
// generated key; pointers are small objects under a separate prefix.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/store"
)

// DefaultMaxPayload is a conservative single-Put ceiling well below the
// 5 GiB S3 single-upload limit.
const DefaultMaxPayload int64 = 64 << 20

const (
	objectPrefix  = "objects/"
	pointerPrefix = "pointers/"
)

type S3Store struct {
	mu     sync.RWMutex
	client *minio.Client

	config *S3StoreConfig
}

// S3StoreConfig contains connection options for the S3 store.
type S3StoreConfig struct {
	// Endpoint of the S3 service, for example "127.0.0.1:9000"
	Endpoint string

	// AccessKey and SecretKey for authentication
	AccessKey string
	SecretKey string

	// UseSSL enables TLS towards the endpoint
	UseSSL bool

	// Bucket holding all chunk payloads (created on Open if absent)
	Bucket string

	// Region passed through to bucket creation (optional)
	Region string

	// MaxPayload overrides DefaultMaxPayload when > 0
	MaxPayload int64
}

func NewS3Store(config *S3StoreConfig) (*S3Store, error) {
	if config == nil || config.Endpoint == "" || config.Bucket == "" {
		return nil, fmt.Errorf("s3: endpoint and bucket are required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	if config.MaxPayload <= 0 {
		config.MaxPayload = DefaultMaxPayload
	}

	return &S3Store{
		client: client,
		config: config,
	}, nil
}

// Returns the identifier name defined for this store
func (*S3Store) Name() string {
	return "s3"
}

// Open verifies the bucket exists and creates it if needed.
func (ss *S3Store) Open(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	exists, err := ss.client.BucketExists(ctx, ss.config.Bucket)
	if err != nil {
		return classify("open", err)
	}

	if !exists {
		err := ss.client.MakeBucket(ctx, ss.config.Bucket, minio.MakeBucketOptions{
			Region: ss.config.Region,
		})
		if err != nil {
			return classify("open", err)
		}
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called on unmount.
func (ss *S3Store) Close(ctx context.Context) error {
	return nil
}

func (ss *S3Store) Put(ctx context.Context, payload []byte) (string, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if int64(len(payload)) > ss.config.MaxPayload {
		return "", store.Permanent("put", store.ErrPayloadTooLarge)
	}

	handle := uuid.NewString()

	_, err := ss.client.PutObject(ctx, ss.config.Bucket, objectPrefix+handle,
		bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
	if err != nil {
		return "", classify("put", err)
	}

	return handle, nil
}

func (ss *S3Store) Get(ctx context.Context, handle string) ([]byte, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	object, err := ss.client.GetObject(ctx, ss.config.Bucket, objectPrefix+handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("get", err)
	}
	defer object.Close()

	payload, err := io.ReadAll(object)
	if err != nil {
		return nil, classify("get", err)
	}

	return payload, nil
}

func (ss *S3Store) Delete(ctx context.Context, handle string) error {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	// Stat first so deleting an unknown handle reports ErrNotExist;
	// RemoveObject succeeds silently on missing keys.
	_, err := ss.client.StatObject(ctx, ss.config.Bucket, objectPrefix+handle, minio.StatObjectOptions{})
	if err != nil {
		return classify("delete", err)
	}

	err = ss.client.RemoveObject(ctx, ss.config.Bucket, objectPrefix+handle, minio.RemoveObjectOptions{})
	if err != nil {
		return classify("delete", err)
	}

	return nil
}

func (ss *S3Store) SetPointer(ctx context.Context, name, handle string) error {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	payload := []byte(handle)
	_, err := ss.client.PutObject(ctx, ss.config.Bucket, pointerPrefix+name,
		bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
			ContentType: "text/plain",
		})
	if err != nil {
		return classify("set-pointer", err)
	}

	return nil
}

func (ss *S3Store) GetPointer(ctx context.Context, name string) (string, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	object, err := ss.client.GetObject(ctx, ss.config.Bucket, pointerPrefix+name, minio.GetObjectOptions{})
	if err != nil {
		return "", classify("get-pointer", err)
	}
	defer object.Close()

	payload, err := io.ReadAll(object)
	if err != nil {
		return "", classify("get-pointer", err)
	}

	return string(payload), nil
}

func (ss *S3Store) MaxPayloadSize() int64 {
	return ss.config.MaxPayload
}

// classify maps MinIO error responses onto the store error taxonomy.
// Missing keys surface as data.ErrNotExist; throttling and server-side
// errors are transient; everything else is permanent.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return data.ErrNotExist
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
		return store.Transient(op, err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return store.Transient(op, err)
	}

	if resp.Code == "" && resp.StatusCode == 0 {
		// No parsed response means the request never completed, which is
		// the network-failure case worth retrying.
		return store.Transient(op, err)
	}

	return store.Permanent(op, err)
}
