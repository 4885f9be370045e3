package model

import "time"

// CacheStage identifies which subtree a cache entry belongs to.
type CacheStage string

const (
	CacheStage1 CacheStage = "stage1"
	CacheStage2 CacheStage = "stage2"
)

// CacheEntry is the self-describing record persisted under a cache shard
// directory: the original input, the parsed payload, token accounting, and
// a creation timestamp (§3).
type CacheEntry struct {
	Key        string     `json:"key"`
	Stage      CacheStage `json:"stage"`
	Input      string     `json:"input"` // original request text, for debugging/archival
	Payload    []byte     `json:"payload"` // canonical JSON of the Stage1Result or Stage2Result
	TokensUsed int        `json:"tokens_used"`
	CreatedAt  time.Time  `json:"created_at"`
	SizeBytes  int        `json:"size_bytes"`
}
