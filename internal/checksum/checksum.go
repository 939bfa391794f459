// Package checksum computes the content fingerprints that key the render cache.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strconv"
)

// Absent is the fingerprint recorded for a file that did not exist when it was read.
const Absent = "absent"

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File fingerprints the file at path. A missing file yields Absent and no error.
func File(path string) (string, error) {
	// #nosec G304 -- callers pass paths resolved inside the project root
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Absent, nil
	}
	if err != nil {
		return "", err
	}
	return Sum(data), nil
}

// Combine hashes an ordered list of parts. Each part is length-prefixed so
// ("ab", "c") and ("a", "bc") never collide.
func Combine(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(strconv.Itoa(len(p))))
		_, _ = h.Write([]byte{':'})
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Map hashes a key->fingerprint map independently of iteration order.
func Map(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		parts = append(parts, k, m[k])
	}
	return Combine(parts...)
}
