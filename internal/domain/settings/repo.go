package settings

import "context"

// Store persists named global properties.
type Store interface {
	// Get returns the value of key and whether it is set.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetIfAbsent stores value only when key is unset and returns the value
	// that is stored afterwards. Concurrent callers all observe the first write.
	SetIfAbsent(ctx context.Context, key, value string) (string, error)
	// Set overwrites key unconditionally.
	Set(ctx context.Context, key, value string) error
}
