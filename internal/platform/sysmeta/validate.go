package sysmeta

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
)

// MaxIdentifierLength is the storage limit for PIDs and SIDs.
const MaxIdentifierLength = 800

// CheckIdentifier rejects identifiers this node cannot store. Identifiers are
// otherwise opaque: no normalization is applied.
func CheckIdentifier(did string) error {
	if did == "" {
		return fmt.Errorf("%w: identifier is empty", ErrInvalid)
	}
	if len(did) > MaxIdentifierLength {
		return fmt.Errorf("%w: identifier exceeds %d bytes", ErrInvalid, MaxIdentifierLength)
	}
	if strings.IndexFunc(did, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: identifier contains whitespace: %q", ErrInvalid, did)
	}
	return nil
}

// CheckRequired verifies the fields every stored document must carry.
func CheckRequired(sm *SystemMetadata) error {
	if sm == nil {
		return fmt.Errorf("%w: missing document", ErrInvalid)
	}
	if err := CheckIdentifier(sm.Identifier); err != nil {
		return err
	}
	if strings.TrimSpace(sm.FormatID) == "" {
		return fmt.Errorf("%w: formatId is required", ErrInvalid)
	}
	if sm.Size < 0 {
		return fmt.Errorf("%w: size must not be negative", ErrInvalid)
	}
	if sm.Checksum.Value == "" {
		return fmt.Errorf("%w: checksum is required", ErrInvalid)
	}
	if !IsSupportedAlgorithm(sm.Checksum.Algorithm) {
		return fmt.Errorf("%w: unsupported checksum algorithm %q", ErrInvalid, sm.Checksum.Algorithm)
	}
	if strings.TrimSpace(sm.RightsHolder) == "" {
		return fmt.Errorf("%w: rightsHolder is required", ErrInvalid)
	}
	if sm.SeriesID != "" {
		if err := CheckIdentifier(sm.SeriesID); err != nil {
			return err
		}
		if sm.SeriesID == sm.Identifier {
			return fmt.Errorf("%w: seriesId must differ from identifier", ErrInvalid)
		}
	}
	return nil
}

// CheckNewObject applies the rules for documents arriving with create or update:
// no replicas, not archived, no obsoletedBy.
func CheckNewObject(sm *SystemMetadata) error {
	if err := CheckRequired(sm); err != nil {
		return err
	}
	if len(sm.Replica) > 0 {
		return fmt.Errorf("%w: a new object cannot already have replicas. pid=%q", ErrInvalid, sm.Identifier)
	}
	if sm.IsArchived() {
		return fmt.Errorf("%w: a new object cannot already be archived. pid=%q", ErrInvalid, sm.Identifier)
	}
	if sm.ObsoletedBy != "" {
		return fmt.Errorf("%w: obsoletedBy cannot be specified for this method. obsoletedBy=%q", ErrInvalid, sm.ObsoletedBy)
	}
	return nil
}

// CheckContent verifies size and checksum against the object bytes.
func CheckContent(sm *SystemMetadata, content []byte) error {
	if sm == nil {
		return fmt.Errorf("%w: missing document", ErrInvalid)
	}
	if int64(len(content)) != sm.Size {
		return fmt.Errorf("%w: size does not match uploaded object. sysmeta=%d uploaded=%d", ErrInvalid, sm.Size, len(content))
	}
	sum, _, err := Compute(sm.Checksum.Algorithm, bytes.NewReader(content))
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, sm.Checksum.Value) {
		return fmt.Errorf("%w: checksum does not match uploaded object. sysmeta=%q uploaded=%q",
			ErrInvalid, strings.ToLower(sm.Checksum.Value), sum)
	}
	return nil
}
