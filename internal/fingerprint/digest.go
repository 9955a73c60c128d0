package fingerprint

import (
	"crypto"
	_ "crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf16"
)

const fallbackAlgorithm = "rolling32"

// Digester turns a canonical serialization into a fixed-length identifier.
// Hash is used when it is linked into the binary; otherwise the 32-bit
// rolling hash is used.
type Digester struct {
	Hash crypto.Hash
}

// DefaultDigester hashes with SHA-256.
var DefaultDigester = Digester{Hash: crypto.SHA256}

// Available reports whether the primary hash can be used.
func (d Digester) Available() bool {
	return d.Hash != 0 && d.Hash.Available()
}

// Algorithm names the function Sum will use.
func (d Digester) Algorithm() string {
	if d.Available() {
		return d.Hash.String()
	}
	return fallbackAlgorithm
}

// Sum returns lowercase hex: the full primary digest, or 8 characters from
// the fallback.
func (d Digester) Sum(serialized []byte) string {
	if !d.Available() {
		return FallbackDigest(string(serialized))
	}
	h := d.Hash.New()
	h.Write(serialized)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest hashes with the default digester.
func Digest(serialized []byte) string {
	return DefaultDigester.Sum(serialized)
}

// FallbackDigest computes h = h*31 + c over UTF-16 code units with 32-bit
// signed wrap-around and renders the unsigned result as 8 hex digits.
func FallbackDigest(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return fmt.Sprintf("%08x", uint32(h))
}
