package sysmeta

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"
)

const prefixedDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ns2:systemMetadata xmlns:ns2="http://ns.dataone.org/service/types/v2.0">
  <serialVersion>3</serialVersion>
  <identifier> doi:10.5063/F1ABC </identifier>
  <formatId>text/csv</formatId>
  <size>5</size>
  <checksum algorithm="MD5">5d41402abc4b2a76b9719d911017c592</checksum>
  <submitter>CN=submitter</submitter>
  <rightsHolder>CN=owner</rightsHolder>
  <obsoletes>doi:10.5063/F1OLD</obsoletes>
  <archived>false</archived>
  <dateUploaded>2021-03-04T05:06:07Z</dateUploaded>
  <seriesId>series-1</seriesId>
</ns2:systemMetadata>`

func TestUnmarshalPrefixedDocument(t *testing.T) {
	sm, err := Unmarshal([]byte(prefixedDoc))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if sm.Identifier != "doi:10.5063/F1ABC" {
		t.Fatalf("identifier: got=%q", sm.Identifier)
	}
	if sm.SerialVersion != 3 || sm.Size != 5 {
		t.Fatalf("numbers: serial=%d size=%d", sm.SerialVersion, sm.Size)
	}
	if sm.Checksum.Algorithm != "MD5" || sm.Obsoletes != "doi:10.5063/F1OLD" || sm.SeriesID != "series-1" {
		t.Fatalf("unexpected fields: %+v", sm)
	}
	if sm.IsArchived() {
		t.Fatalf("archived should be false")
	}
	want := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	if sm.DateUploaded == nil || !sm.DateUploaded.Equal(want) {
		t.Fatalf("dateUploaded: got=%v", sm.DateUploaded)
	}
}

func TestMarshalThenDecodeKeepsChainFields(t *testing.T) {
	sm, err := Unmarshal([]byte(prefixedDoc))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	sm.ObsoletedBy = "doi:10.5063/F1NEW"
	raw, err := Marshal(sm)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.HasPrefix(string(raw), "<?xml") {
		t.Fatalf("missing header")
	}
	back, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal(Marshal): %v", err)
	}
	if back.Obsoletes != sm.Obsoletes || back.ObsoletedBy != sm.ObsoletedBy || back.SeriesID != sm.SeriesID {
		t.Fatalf("chain fields changed: %+v", back)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "<notsysmeta/>", "<systemMetadata"} {
		if _, err := Unmarshal([]byte(in)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("input %q: want ErrInvalid, got %v", in, err)
		}
	}
}

func TestCheckContent(t *testing.T) {
	content := []byte("hello")
	sum := md5.Sum(content)
	sm := &SystemMetadata{
		Identifier:   "pid",
		FormatID:     "text/plain",
		Size:         int64(len(content)),
		Checksum:     Checksum{Algorithm: "md5", Value: strings.ToUpper(hex.EncodeToString(sum[:]))},
		RightsHolder: "CN=owner",
	}
	if err := CheckContent(sm, content); err != nil {
		t.Fatalf("CheckContent: %v", err)
	}
	if err := CheckContent(sm, []byte("hellO")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("checksum mismatch: want ErrInvalid, got %v", err)
	}
	if err := CheckContent(sm, []byte("hello!")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("size mismatch: want ErrInvalid, got %v", err)
	}
}

func TestCheckNewObject(t *testing.T) {
	archived := true
	base := func() *SystemMetadata {
		return &SystemMetadata{
			Identifier:   "pid",
			FormatID:     "text/plain",
			Checksum:     Checksum{Algorithm: "SHA-256", Value: "00"},
			RightsHolder: "CN=owner",
		}
	}
	if err := CheckNewObject(base()); err != nil {
		t.Fatalf("valid doc rejected: %v", err)
	}
	cases := map[string]func(*SystemMetadata){
		"archived":         func(s *SystemMetadata) { s.Archived = &archived },
		"obsoletedBy":      func(s *SystemMetadata) { s.ObsoletedBy = "other" },
		"replica":          func(s *SystemMetadata) { s.Replica = []Replica{{ReplicaMemberNode: "urn:node:X"}} },
		"whitespace pid":   func(s *SystemMetadata) { s.Identifier = "a b" },
		"sid equals pid":   func(s *SystemMetadata) { s.SeriesID = "pid" },
		"unknown checksum": func(s *SystemMetadata) { s.Checksum.Algorithm = "CRC32" },
		"no rightsHolder":  func(s *SystemMetadata) { s.RightsHolder = " " },
	}
	for name, mutate := range cases {
		sm := base()
		mutate(sm)
		if err := CheckNewObject(sm); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: want ErrInvalid, got %v", name, err)
		}
	}
}

func TestCanonicalAlgorithm(t *testing.T) {
	for in, want := range map[string]string{"sha1": "SHA-1", "SHA256": "SHA-256", " md5 ": "MD5", "SHA-512": "SHA-512"} {
		got, ok := CanonicalAlgorithm(in)
		if !ok || got != want {
			t.Fatalf("%q: want=%q got=%q ok=%v", in, want, got, ok)
		}
	}
	if _, ok := CanonicalAlgorithm("crc32"); ok {
		t.Fatalf("crc32 should be unsupported")
	}
}
