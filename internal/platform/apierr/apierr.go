package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
)

// Error is a failure shaped for a DataONE client: Code is the DataONE
// exception name and Status its HTTP status.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

const (
	IdentifierNotUnique   = "IdentifierNotUnique"
	NotFound              = "NotFound"
	InvalidRequest        = "InvalidRequest"
	InvalidSystemMetadata = "InvalidSystemMetadata"
	NotAuthorized         = "NotAuthorized"
	ServiceFailure        = "ServiceFailure"
)

var byCode = map[domainagg.ErrorCode]struct {
	status int
	name   string
}{
	domainagg.CodeIdentifierConflict:    {http.StatusConflict, IdentifierNotUnique},
	domainagg.CodeNotFound:              {http.StatusNotFound, NotFound},
	domainagg.CodeChainIntegrity:        {http.StatusBadRequest, InvalidRequest},
	domainagg.CodeInvalidRequest:        {http.StatusBadRequest, InvalidRequest},
	domainagg.CodeInvalidSystemMetadata: {http.StatusBadRequest, InvalidSystemMetadata},
	domainagg.CodeNotAuthorized:         {http.StatusUnauthorized, NotAuthorized},
}

// FromError maps an aggregate error onto its DataONE exception. Anything
// without a known code is a ServiceFailure.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	if m, ok := byCode[domainagg.CodeOf(err)]; ok {
		return New(m.status, m.name, err)
	}
	return New(http.StatusInternalServerError, ServiceFailure, err)
}
