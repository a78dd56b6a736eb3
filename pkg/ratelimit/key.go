package ratelimit

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

const keyPrefix = "ratelimit:"

// maxKeyLength is the maximum user identifier length kept verbatim in a
// counter key. Longer identifiers are hashed.
const maxKeyLength = 64

// Bucket returns the epoch-aligned window index containing t.
// Hour buckets start at the top of each UTC hour, day buckets at UTC midnight.
func Bucket(scope Scope, t time.Time) int64 {
	return t.UnixMilli() / scope.Length().Milliseconds()
}

// BucketEnd returns the instant the bucket closes.
func BucketEnd(scope Scope, bucket int64) time.Time {
	return time.UnixMilli((bucket + 1) * scope.Length().Milliseconds()).UTC()
}

// Key builds the counter key "ratelimit:{user}:{scope}:{bucket}".
func Key(userID string, scope Scope, bucket int64) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString(userKey(userID))
	b.WriteByte(':')
	b.WriteString(string(scope))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(bucket, 10))
	return b.String()
}

func userKey(userID string) string {
	if len(userID) <= maxKeyLength && !strings.Contains(userID, ":") {
		return userID
	}
	hash := blake2b.Sum256([]byte(userID))
	return hex.EncodeToString(hash[:16])
}
