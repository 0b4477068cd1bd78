package sysmeta

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// DataONE checksum algorithm designators accepted by this node.
var algorithms = map[string]func() hash.Hash{
	"MD5":     md5.New,
	"SHA-1":   sha1.New,
	"SHA-256": sha256.New,
	"SHA-384": sha512.New384,
	"SHA-512": sha512.New,
}

// CanonicalAlgorithm maps user spellings ("sha1", "SHA256") onto the DataONE designator.
func CanonicalAlgorithm(name string) (string, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if _, ok := algorithms[n]; ok {
		return n, true
	}
	if strings.HasPrefix(n, "SHA") && !strings.HasPrefix(n, "SHA-") {
		n = "SHA-" + strings.TrimPrefix(n, "SHA")
		if _, ok := algorithms[n]; ok {
			return n, true
		}
	}
	return "", false
}

func IsSupportedAlgorithm(name string) bool {
	_, ok := CanonicalAlgorithm(name)
	return ok
}

// NewHash returns a hash for a supported designator.
func NewHash(algorithm string) (hash.Hash, error) {
	n, ok := CanonicalAlgorithm(algorithm)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported checksum algorithm %q", ErrInvalid, algorithm)
	}
	return algorithms[n](), nil
}

// Compute streams r through the algorithm and returns the lowercase hex digest
// and the number of bytes read.
func Compute(algorithm string, r io.Reader) (string, int64, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
