package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
)

// Sentinels that write bodies join onto their messages. MapError turns them
// into codes.
var (
	ErrValidation = errors.New("invalid request")
	ErrInvariant  = errors.New("revision chain rule violated")
	ErrConflict   = errors.New("concurrent write won")
	ErrRetryable  = errors.New("transient failure")
)

func ValidationError(msg string) error { return tagged(ErrValidation, msg) }
func InvariantError(msg string) error  { return tagged(ErrInvariant, msg) }
func ConflictError(msg string) error   { return tagged(ErrConflict, msg) }
func RetryableError(msg string) error  { return tagged(ErrRetryable, msg) }

func tagged(sentinel error, msg string) error {
	return errors.Join(sentinel, errors.New(strings.TrimSpace(msg)))
}

var sentinelCodes = []struct {
	err  error
	code domainagg.ErrorCode
}{
	{ErrValidation, domainagg.CodeInvalidRequest},
	{sysmeta.ErrInvalid, domainagg.CodeInvalidSystemMetadata},
	{ErrInvariant, domainagg.CodeChainIntegrity},
	{ErrConflict, domainagg.CodeConflict},
	{ErrRetryable, domainagg.CodeRetryable},
	{gorm.ErrRecordNotFound, domainagg.CodeNotFound},
	{gorm.ErrDuplicatedKey, domainagg.CodeConflict},
	{context.Canceled, domainagg.CodeRetryable},
	{context.DeadlineExceeded, domainagg.CodeRetryable},
}

// unique_violation, then serialization_failure, deadlock_detected and lock_not_available.
var pgCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,
	"40001": domainagg.CodeRetryable,
	"40P01": domainagg.CodeRetryable,
	"55P03": domainagg.CodeRetryable,
}

// SQLite reports constraint and locking failures only as text.
var messageCodes = []struct {
	fragments []string
	code      domainagg.ErrorCode
}{
	{[]string{"duplicate key", "unique constraint failed", "already exists"}, domainagg.CodeConflict},
	{[]string{"deadlock", "serialization", "database is locked", "sqlite_busy", "timeout", "temporar"}, domainagg.CodeRetryable},
}

// MapError gives err an aggregate code for op. Errors that already carry a
// code pass through unchanged; anything unrecognized is internal.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded *domainagg.Error
	if errors.As(err, &coded) {
		return err
	}
	return domainagg.Wrap(classify(err), op, err)
}

func classify(err error) domainagg.ErrorCode {
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return code
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range messageCodes {
		for _, f := range m.fragments {
			if strings.Contains(msg, f) {
				return m.code
			}
		}
	}
	return domainagg.CodeInternal
}
