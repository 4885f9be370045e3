package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// cacheRecord is the self-describing on-disk record for one cache entry:
// the original input, the parsed payload, token accounting, and a
// timestamp (§3).
type cacheRecord struct {
	Input      string          `json:"input"`
	Payload    json.RawMessage `json:"payload"`
	TokensUsed int             `json:"tokens_used"`
	CreatedAt  time.Time       `json:"created_at"`
}

// diskStore persists cache records under <baseDir>/<stage>/<shard>/<key>.json.
// Concurrency is handled one layer up by the per-key locks in Cache;
// diskStore itself assumes at most one writer per key at a time.
type diskStore struct {
	baseDir string
}

func newDiskStore(baseDir string) *diskStore {
	return &diskStore{baseDir: baseDir}
}

func (d *diskStore) path(stage model.CacheStage, key string) string {
	return filepath.Join(d.baseDir, string(stage), shardPrefix(key), key+".json")
}

// read loads a record, returning ok=false on a miss and touching the file's
// mtime on a hit so invalidateBySize can use mtime as an LRU proxy across
// the whole disk store.
func (d *diskStore) read(stage model.CacheStage, key string) (cacheRecord, bool, error) {
	p := d.path(stage, key)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cacheRecord{}, false, nil
		}
		return cacheRecord{}, false, err
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return cacheRecord{}, false, err
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return rec, true, nil
}

func (d *diskStore) write(stage model.CacheStage, key string, rec cacheRecord) error {
	p := d.path(stage, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// exists reports whether a key is present, without reading or touching it —
// used by WarmFromBatch, which must probe membership without influencing
// LRU order.
func (d *diskStore) exists(stage model.CacheStage, key string) bool {
	_, err := os.Stat(d.path(stage, key))
	return err == nil
}

type diskFile struct {
	path    string
	size    int64
	modTime time.Time
}

// walk lists every cache file under the given stages (a nil slice walks
// nothing), used by clear and invalidateBySize.
func (d *diskStore) walk(stages []model.CacheStage) ([]diskFile, error) {
	var files []diskFile
	for _, stage := range stages {
		root := filepath.Join(d.baseDir, string(stage))
		err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil
				}
				return err
			}
			if entry.IsDir() {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			files = append(files, diskFile{path: path, size: info.Size(), modTime: info.ModTime()})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// invalidateBySize evicts least-recently-accessed files (by mtime) until
// total size across the given stages is at or below targetBytes.
func (d *diskStore) invalidateBySize(stages []model.CacheStage, targetBytes int64) (int, error) {
	files, err := d.walk(stages)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	if total <= targetBytes {
		return 0, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	evicted := 0
	for _, f := range files {
		if total <= targetBytes {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return evicted, err
		}
		total -= f.size
		evicted++
	}
	return evicted, nil
}

// clear removes every file under the given stages.
func (d *diskStore) clear(stages []model.CacheStage) (int, error) {
	files, err := d.walk(stages)
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	return len(files), nil
}
