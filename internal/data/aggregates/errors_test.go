package aggregates

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
)

func TestMapErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want domainagg.ErrorCode
	}{
		{"validation", ValidationError("bad input"), domainagg.CodeInvalidRequest},
		{"invariant", InvariantError("broken"), domainagg.CodeChainIntegrity},
		{"conflict", ConflictError("stale"), domainagg.CodeConflict},
		{"retryable", RetryableError("later"), domainagg.CodeRetryable},
		{"sysmeta", fmt.Errorf("%w: size mismatch", sysmeta.ErrInvalid), domainagg.CodeInvalidSystemMetadata},
		{"not found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"pg unique", &pgconn.PgError{Code: "23505"}, domainagg.CodeConflict},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, domainagg.CodeRetryable},
		{"sqlite unique", errors.New("UNIQUE constraint failed: chain.head_id"), domainagg.CodeConflict},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), domainagg.CodeRetryable},
		{"other", errors.New("disk on fire"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := MapError("op", tc.in)
			if !domainagg.IsCode(err, tc.want) {
				t.Fatalf("want %s got %q (%v)", tc.want, domainagg.CodeOf(err), err)
			}
			if !errors.Is(err, tc.in) {
				t.Fatalf("mapped error should wrap the cause")
			}
		})
	}
}

func TestMapErrorPassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeIdentifierConflict, "op", "taken", nil)
	if out := MapError("other", in); out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
	wrapped := fmt.Errorf("store: %w", in)
	if out := MapError("other", wrapped); !domainagg.IsCode(out, domainagg.CodeIdentifierConflict) {
		t.Fatalf("wrapped aggregate error lost its code: %v", out)
	}
	if MapError("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
