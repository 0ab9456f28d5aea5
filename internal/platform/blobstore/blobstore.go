// Package blobstore keeps document payloads outside the relational store,
// one object per encounter. MemoryStore serves tests and single-process
// deployments; MinioStore targets MinIO or any S3-compatible endpoint.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("blobstore: object not found")
	ErrTooLarge = errors.New("blobstore: object exceeds maximum size")

	ErrChecksumMismatch = errors.New("blobstore: checksum mismatch")
)

// MaxObjectSize caps a single payload at 100 MB.
const MaxObjectSize = 100 << 20

// Object describes a stored payload. Checksum is the hex SHA-256 of the
// bytes as written.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	PatientID   string    `json:"patient_id,omitempty"`
	EncounterID string    `json:"encounter_id,omitempty"`
	Checksum    string    `json:"checksum"`
	StoredAt    time.Time `json:"stored_at"`
}

type Store interface {
	Put(ctx context.Context, obj Object, body io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ReadVerified fetches key and fails when its bytes no longer match want.
// An empty want skips the check.
func ReadVerified(ctx context.Context, s Store, key, want string) ([]byte, *Object, error) {
	rc, obj, err := s.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("read object %s: %w", key, err)
	}
	if want != "" {
		if got := checksum(data); got != want {
			return nil, nil, fmt.Errorf("object %s: %w (recorded %s, read %s)", key, ErrChecksumMismatch, want, got)
		}
	}
	return data, obj, nil
}

// buffer drains body and stamps obj with the server-side fields.
func buffer(obj Object, body io.Reader) (Object, []byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxObjectSize+1))
	if err != nil {
		return obj, nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > MaxObjectSize {
		return obj, nil, ErrTooLarge
	}
	if obj.Key == "" {
		obj.Key = uuid.NewString()
	}
	obj.Size = int64(len(data))
	obj.Checksum = checksum(data)
	obj.StoredAt = time.Now().UTC()
	return obj, data, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type memoryObject struct {
	Object
	data []byte
}

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(_ context.Context, obj Object, body io.Reader) (*Object, error) {
	obj, data, err := buffer(obj, body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.objects[obj.Key] = memoryObject{Object: obj, data: data}
	s.mu.Unlock()
	return &obj, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	m, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	obj := m.Object
	return io.NopCloser(bytes.NewReader(m.data)), &obj, nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
