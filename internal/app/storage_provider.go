package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/platform/objstore"
)

var newObjectStore = objstore.New

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingRoot         StorageProviderBootstrapErrorCode = "missing_root"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code  StorageProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// checkStorageConfig rejects configurations that cannot work before any
// client is dialed.
func checkStorageConfig(cfg objstore.Config) error {
	mode := string(cfg.Mode)
	fail := func(code StorageProviderBootstrapErrorCode, format string, args ...any) error {
		return &StorageProviderBootstrapError{Code: code, Mode: mode, Cause: fmt.Errorf(format, args...)}
	}
	switch cfg.Mode {
	case objstore.ModeFS, "":
		if strings.TrimSpace(cfg.Root) == "" {
			return fail(StorageProviderBootstrapErrorMissingRoot, "OBJECT_STORE_ROOT is empty")
		}
	case objstore.ModeGCS:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return fail(StorageProviderBootstrapErrorMissingBucket, "GCS_BUCKET_NAME is empty")
		}
	case objstore.ModeGCSEmulator:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return fail(StorageProviderBootstrapErrorMissingBucket, "GCS_BUCKET_NAME is empty")
		}
		if strings.TrimSpace(cfg.EmulatorHost) == "" {
			return fail(StorageProviderBootstrapErrorMissingEmulatorHost, "STORAGE_EMULATOR_HOST is empty")
		}
	default:
		return fail(StorageProviderBootstrapErrorInvalidMode, "unsupported object storage mode %q", mode)
	}
	return nil
}

func resolveObjectStore(ctx context.Context, log *logger.Logger, cfg objstore.Config) (objstore.Store, error) {
	if err := checkStorageConfig(cfg); err != nil {
		log.Error("Object storage provider selection failed", "mode", cfg.Mode, "error_code", storageProviderBootstrapErrorCode(err), "error", err)
		return nil, err
	}
	log.Info("Selecting object storage provider", "mode", cfg.Mode, "root", cfg.Root, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)

	store, err := newObjectStore(ctx, log, cfg)
	if err != nil {
		wrapped := &StorageProviderBootstrapError{Code: StorageProviderBootstrapErrorConnectFailed, Mode: string(cfg.Mode), Cause: err}
		log.Error("Object storage provider bootstrap failed", "mode", cfg.Mode, "error_code", wrapped.Code, "error", err)
		return nil, wrapped
	}
	return store, nil
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
