package apierr

import (
	"errors"
	"net/http"
	"testing"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
)

func TestFromErrorMapsAggregateCodes(t *testing.T) {
	cases := []struct {
		code   domainagg.ErrorCode
		status int
		name   string
	}{
		{domainagg.CodeIdentifierConflict, http.StatusConflict, IdentifierNotUnique},
		{domainagg.CodeNotFound, http.StatusNotFound, NotFound},
		{domainagg.CodeChainIntegrity, http.StatusBadRequest, InvalidRequest},
		{domainagg.CodeInvalidRequest, http.StatusBadRequest, InvalidRequest},
		{domainagg.CodeInvalidSystemMetadata, http.StatusBadRequest, InvalidSystemMetadata},
		{domainagg.CodeNotAuthorized, http.StatusUnauthorized, NotAuthorized},
		{domainagg.CodeConflict, http.StatusInternalServerError, ServiceFailure},
		{domainagg.CodeRetryable, http.StatusInternalServerError, ServiceFailure},
		{domainagg.CodeInternal, http.StatusInternalServerError, ServiceFailure},
	}
	for _, tc := range cases {
		got := FromError(domainagg.NewError(tc.code, "op", "msg", nil))
		if got.Status != tc.status || got.Code != tc.name {
			t.Fatalf("%s: want=%d/%s got=%d/%s", tc.code, tc.status, tc.name, got.Status, got.Code)
		}
	}
}

func TestFromErrorUntypedIsServiceFailure(t *testing.T) {
	got := FromError(errors.New("disk on fire"))
	if got.Code != ServiceFailure || got.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if FromError(nil) != nil {
		t.Fatalf("nil should map to nil")
	}
}
