// Package objstore keeps the bytes of science objects. Keys are opaque paths
// derived from the PID; the database row records the key of every version.
package objstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/membernode/internal/platform/logger"
)

// ErrNotExist is returned by Open and Delete for a key with no object.
var ErrNotExist = errors.New("object does not exist")

type Store interface {
	// Put writes r under key and returns the number of bytes written. An
	// existing object under key is replaced.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type Mode string

const (
	ModeFS          Mode = "fs"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

type Config struct {
	Mode         Mode
	Root         string
	Bucket       string
	EmulatorHost string
}

// New builds the store selected by cfg.Mode.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	switch cfg.Mode {
	case ModeFS, "":
		return NewFSStore(log, cfg.Root)
	case ModeGCS, ModeGCSEmulator:
		return NewGCSStore(ctx, log, cfg)
	default:
		return nil, fmt.Errorf("invalid OBJECT_STORE_MODE=%q (allowed: %q, %q, %q)", cfg.Mode, ModeFS, ModeGCS, ModeGCSEmulator)
	}
}

// KeyFor returns a fresh storage key for pid. Keys fan out on the PID hash and
// end in a random suffix, so a reused PID never collides with the bytes of
// its deleted predecessor.
func KeyFor(pid string) string {
	sum := sha256.Sum256([]byte(pid))
	h := hex.EncodeToString(sum[:])
	return strings.Join([]string{h[0:2], h[2:4], h + "-" + uuid.NewString()}, "/")
}

func validKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
