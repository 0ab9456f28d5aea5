package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// User metadata keys written on every object.
const (
	metaPatientID   = "Patient-Id"
	metaEncounterID = "Encounter-Id"
	metaChecksum    = "Sha256"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps payloads in one bucket, keyed "<patient>/<encounter>".
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and creates the bucket on first use.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, obj Object, body io.Reader) (*Object, error) {
	obj, data, err := buffer(obj, body)
	if err != nil {
		return nil, err
	}

	opts := minio.PutObjectOptions{
		ContentType: obj.ContentType,
		UserMetadata: map[string]string{
			metaPatientID:   obj.PatientID,
			metaEncounterID: obj.EncounterID,
			metaChecksum:    obj.Checksum,
		},
	}
	if _, err := s.client.PutObject(ctx, s.bucket, obj.Key, bytes.NewReader(data), obj.Size, opts); err != nil {
		return nil, s.wrap(err, obj.Key)
	}
	return &obj, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	r, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, s.wrap(err, key)
	}
	// GetObject is lazy; Stat is the first call that can report a missing key.
	info, err := r.Stat()
	if err != nil {
		r.Close()
		return nil, nil, s.wrap(err, key)
	}
	return r, objectFromInfo(key, info), nil
}

func objectFromInfo(key string, info minio.ObjectInfo) *Object {
	return &Object{
		Key:         key,
		ContentType: info.ContentType,
		Size:        info.Size,
		PatientID:   info.UserMetadata[metaPatientID],
		EncounterID: info.UserMetadata[metaEncounterID],
		Checksum:    info.UserMetadata[metaChecksum],
		StoredAt:    info.LastModified.UTC(),
	}
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return s.wrap(err, key)
	}
	return s.wrap(s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}), key)
}

func (s *MinioStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ok, err := s.client.BucketExists(ctx, s.bucket)
	switch {
	case err != nil:
		return fmt.Errorf("minio: %w", err)
	case !ok:
		return fmt.Errorf("minio: bucket %s is missing", s.bucket)
	}
	return nil
}

func (s *MinioStore) wrap(err error, key string) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("minio %s/%s: %w", s.bucket, key, err)
}
