// Package cache implements the content-addressed, two-stage cache (§4.1):
// a disk-backed store sharded by hex prefix, fronted by an in-memory LRU,
// with per-key locks that serialize writes to the same key. Coalescing
// concurrent misses into one build is done by internal/apiclient.
package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// Stage1Key computes the SHA-256 cache key for a Stage-1 lookup: the term
// and its part of speech (§3).
func Stage1Key(item model.VocabularyItem) string {
	return hashHex(string(item.Term) + ":" + string(item.Type))
}

// Stage2Key computes the SHA-256 cache key for a Stage-2 lookup: the term
// and the full canonical-JSON Stage-1 payload, so a regenerated Stage-1
// result produces a distinct Stage-2 entry (§3).
func Stage2Key(item model.VocabularyItem, stage1 model.Stage1Result) (string, error) {
	canon, err := stage1.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return hashHex(item.Term + ":" + string(canon)), nil
}

func hashHex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// shardPrefix returns the first two hex characters of a key, used as the
// on-disk shard directory name.
func shardPrefix(key string) string {
	if len(key) < 2 {
		return "00"
	}
	return key[:2]
}
