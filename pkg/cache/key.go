package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// maxSegmentLength is the longest key segment kept verbatim.
const maxSegmentLength = 64

// Key joins segments into a cache key such as "order:A-1234:status".
// Segments are NFC-normalized and trimmed so visually identical input maps to
// the same key. A segment that is too long or contains ':' is replaced by its
// fingerprint, which keeps every key prefix aligned to whole segments for
// InvalidatePrefix.
func Key(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(norm.NFC.String(s))
		if len(s) > maxSegmentLength || strings.Contains(s, ":") {
			s = hash([]byte(s))
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ":")
}

// Fingerprint returns a stable identifier for a logical query such as
// "order lookup by serial X". The query is encoded as JSON, which sorts map
// keys, so equal queries always produce the same fingerprint.
func Fingerprint(query any) (string, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return "", errors.Join(ErrSerialization, err)
	}
	return hash(norm.NFC.Bytes(data)), nil
}

func hash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
