// Package sysmeta reads and writes DataONE v2 System Metadata documents and
// checks them against the bytes they describe.
package sysmeta

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"
)

const Namespace = "http://ns.dataone.org/service/types/v2.0"

// ErrInvalid is wrapped by every decode and validation failure in this package.
var ErrInvalid = errors.New("invalid system metadata")

// SystemMetadata mirrors the v2 schema. Field order follows the schema sequence.
type SystemMetadata struct {
	XMLName                 xml.Name           `xml:"http://ns.dataone.org/service/types/v2.0 systemMetadata"`
	SerialVersion           int64              `xml:"serialVersion,omitempty"`
	Identifier              string             `xml:"identifier"`
	FormatID                string             `xml:"formatId"`
	Size                    int64              `xml:"size"`
	Checksum                Checksum           `xml:"checksum"`
	Submitter               string             `xml:"submitter,omitempty"`
	RightsHolder            string             `xml:"rightsHolder"`
	AccessPolicy            *AccessPolicy      `xml:"accessPolicy,omitempty"`
	ReplicationPolicy       *ReplicationPolicy `xml:"replicationPolicy,omitempty"`
	Obsoletes               string             `xml:"obsoletes,omitempty"`
	ObsoletedBy             string             `xml:"obsoletedBy,omitempty"`
	Archived                *bool              `xml:"archived,omitempty"`
	DateUploaded            *time.Time         `xml:"dateUploaded,omitempty"`
	DateSysMetadataModified *time.Time         `xml:"dateSysMetadataModified,omitempty"`
	OriginMemberNode        string             `xml:"originMemberNode,omitempty"`
	AuthoritativeMemberNode string             `xml:"authoritativeMemberNode,omitempty"`
	Replica                 []Replica          `xml:"replica,omitempty"`
	SeriesID                string             `xml:"seriesId,omitempty"`
	MediaType               *MediaType         `xml:"mediaType,omitempty"`
	FileName                string             `xml:"fileName,omitempty"`
}

type Checksum struct {
	Algorithm string `xml:"algorithm,attr"`
	Value     string `xml:",chardata"`
}

type AccessPolicy struct {
	Allow []AccessRule `xml:"allow"`
}

type AccessRule struct {
	Subject    []string `xml:"subject"`
	Permission []string `xml:"permission"`
}

type ReplicationPolicy struct {
	ReplicationAllowed bool     `xml:"replicationAllowed,attr"`
	NumberReplicas     int      `xml:"numberReplicas,attr,omitempty"`
	PreferredNodes     []string `xml:"preferredMemberNode,omitempty"`
	BlockedNodes       []string `xml:"blockedMemberNode,omitempty"`
}

type Replica struct {
	ReplicaMemberNode string     `xml:"replicaMemberNode"`
	ReplicationStatus string     `xml:"replicationStatus"`
	ReplicaVerified   *time.Time `xml:"replicaVerified,omitempty"`
}

type MediaType struct {
	Name     string              `xml:"name,attr"`
	Property []MediaTypeProperty `xml:"property,omitempty"`
}

type MediaTypeProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// IsArchived reports the archived flag, treating an absent element as false.
func (s *SystemMetadata) IsArchived() bool {
	return s != nil && s.Archived != nil && *s.Archived
}

// Clone returns a deep enough copy for callers that set node-controlled fields.
func (s *SystemMetadata) Clone() *SystemMetadata {
	if s == nil {
		return nil
	}
	out := *s
	if s.Archived != nil {
		v := *s.Archived
		out.Archived = &v
	}
	if s.DateUploaded != nil {
		v := *s.DateUploaded
		out.DateUploaded = &v
	}
	if s.DateSysMetadataModified != nil {
		v := *s.DateSysMetadataModified
		out.DateSysMetadataModified = &v
	}
	out.Replica = append([]Replica(nil), s.Replica...)
	return &out
}

// Unmarshal decodes a System Metadata document. Identifier-valued fields are
// kept verbatim apart from surrounding whitespace, which XML does not preserve.
func Unmarshal(data []byte) (*SystemMetadata, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}
	var sm SystemMetadata
	if err := xml.Unmarshal(data, &sm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sm.Identifier = strings.TrimSpace(sm.Identifier)
	sm.FormatID = strings.TrimSpace(sm.FormatID)
	sm.Obsoletes = strings.TrimSpace(sm.Obsoletes)
	sm.ObsoletedBy = strings.TrimSpace(sm.ObsoletedBy)
	sm.SeriesID = strings.TrimSpace(sm.SeriesID)
	sm.Checksum.Value = strings.TrimSpace(sm.Checksum.Value)
	return &sm, nil
}

// Marshal encodes sm with an XML header.
func Marshal(sm *SystemMetadata) ([]byte, error) {
	if sm == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalid)
	}
	body, err := xml.MarshalIndent(sm, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(body))
	out = append(out, xml.Header...)
	return append(out, body...), nil
}
