package aggregates

import (
	"context"
	"io"
	"time"

	"github.com/yungbote/membernode/internal/platform/sysmeta"
)

var ScienceObjectAggregateContract = Contract{
	Name:             "GMN.ScienceObjectAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns atomic object row, revision link, chain membership, SID binding and event log writes for create/update/delete/archive.",
}

// ScienceObjectAggregate is the mutation coordinator for stored objects.
//
// Write method failures return *aggregates.Error with codes:
// CodeInvalidRequest, CodeInvalidSystemMetadata, CodeNotAuthorized, CodeNotFound,
// CodeIdentifierConflict, CodeChainIntegrity, CodeConflict, CodeRetryable, CodeInternal.
type ScienceObjectAggregate interface {
	Aggregate

	// Create stores a new standalone object, or in import mode appends it to the chain
	// its System Metadata obsoletes.
	Create(ctx context.Context, in CreateObjectInput) (ObjectResult, error)

	// Update stores a new version that obsoletes the current head OldPID.
	Update(ctx context.Context, in UpdateObjectInput) (ObjectResult, error)

	// Delete removes a version (PID or SID of its chain) and repairs the chain around it.
	Delete(ctx context.Context, in DeleteObjectInput) (ObjectResult, error)

	// Archive flags a version as archived. Archiving an archived object is a no-op.
	Archive(ctx context.Context, in ArchiveObjectInput) (ObjectResult, error)

	// Describe resolves did (PID or SID) and returns the stored row with chain context.
	Describe(ctx context.Context, did string) (ObjectDescription, error)

	// Open resolves did and streams the stored bytes.
	Open(ctx context.Context, did string) (io.ReadCloser, ObjectDescription, error)
}

// Action names an authorization-checked operation.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionArchive Action = "archive"
)

// Authorizer decides whether subject may perform action on did. A non-nil
// error rejects the call before any state changes.
type Authorizer interface {
	Authorize(ctx context.Context, subject string, action Action, did string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, subject string, action Action, did string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, subject string, action Action, did string) error {
	return f(ctx, subject, action, did)
}

type CreateObjectInput struct {
	PID     string
	Subject string
	Content []byte
	SysMeta *sysmeta.SystemMetadata
	// Import accepts sysmeta.Obsoletes and appends the object to that head.
	Import bool
}

type UpdateObjectInput struct {
	OldPID  string
	NewPID  string
	Subject string
	Content []byte
	SysMeta *sysmeta.SystemMetadata
}

type DeleteObjectInput struct {
	DID     string
	Subject string
}

type ArchiveObjectInput struct {
	DID     string
	Subject string
}

type ObjectResult struct {
	PID string
	SID string
	// HeadPID is the chain head after the call, empty when the chain was removed.
	HeadPID       string
	SerialVersion int64
	Archived      bool
	Changed       bool
	At            time.Time
}

type ObjectDescription struct {
	PID           string
	SID           string
	HeadPID       string
	Obsoletes     string
	ObsoletedBy   string
	FormatID      string
	Size          int64
	Checksum      string
	ChecksumAlgo  string
	SerialVersion int64
	Archived      bool
	ModifiedAt    time.Time
	SysMeta       *sysmeta.SystemMetadata
}
