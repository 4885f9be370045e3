package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return New(Config{BaseDir: t.TempDir(), TTL: time.Minute, FrontSize: 10})
}

func sampleItem() model.VocabularyItem {
	return model.VocabularyItem{Position: 1, Term: "안녕", Type: model.POSNoun}
}

func sampleStage1() model.Stage1Result {
	return model.Stage1Result{
		IPA:            "anɲʌŋ",
		POS:            model.POSNoun,
		PrimaryMeaning: "hello",
		Comparison:     model.Comparison{Vs: "안녕하세요", Nuance: "informal"},
		KoreanKeywords: []string{"인사"},
	}
}

func TestCache_Stage1_MissThenHit(t *testing.T) {
	c := newTestCache(t)
	item := sampleItem()

	_, _, ok := c.GetStage1(item)
	assert.False(t, ok)

	require.NoError(t, c.SaveStage1(item, sampleStage1(), 42))

	result, tokensSaved, ok := c.GetStage1(item)
	assert.True(t, ok)
	assert.Equal(t, 42, tokensSaved)
	assert.Equal(t, "hello", result.PrimaryMeaning)
}

func TestCache_Stage2_KeyedOnStage1Payload(t *testing.T) {
	c := newTestCache(t)
	item := sampleItem()
	stage1A := sampleStage1()
	stage1B := sampleStage1()
	stage1B.PrimaryMeaning = "different"

	stage2 := model.Stage2Result{Rows: []model.FlashcardRow{{Position: 1, Front: "f", Back: "b", TabName: model.TabScene}}}
	require.NoError(t, c.SaveStage2(item, stage1A, stage2, 100))

	_, _, ok, err := c.GetStage2(item, stage1A)
	require.NoError(t, err)
	assert.True(t, ok, "same stage1 payload should hit")

	_, _, ok, err = c.GetStage2(item, stage1B)
	require.NoError(t, err)
	assert.False(t, ok, "a different stage1 payload must produce a distinct key")
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(Config{BaseDir: t.TempDir(), TTL: 30 * time.Millisecond, FrontSize: 10})
	item := sampleItem()
	require.NoError(t, c.SaveStage1(item, sampleStage1(), 10))

	_, _, ok := c.GetStage1(item)
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, _, ok = c.GetStage1(item)
	assert.False(t, ok)
}

func TestCache_DeterministicKeys(t *testing.T) {
	item := sampleItem()
	assert.Equal(t, Stage1Key(item), Stage1Key(item))

	key1, err := Stage2Key(item, sampleStage1())
	require.NoError(t, err)
	key2, err := Stage2Key(item, sampleStage1())
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "identical inputs must hash identically across runs")
}

func TestCache_ClearScopedToStage(t *testing.T) {
	c := newTestCache(t)
	item := sampleItem()
	require.NoError(t, c.SaveStage1(item, sampleStage1(), 10))
	require.NoError(t, c.SaveStage2(item, sampleStage1(), model.Stage2Result{}, 20))

	n, err := c.Clear(model.CacheStage1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, ok := c.GetStage1(item)
	assert.False(t, ok)

	_, _, ok, err = c.GetStage2(item, sampleStage1())
	require.NoError(t, err)
	assert.True(t, ok, "clearing stage1 must not touch stage2 entries")
}

func TestCache_WarmFromBatch(t *testing.T) {
	c := newTestCache(t)
	items := []model.VocabularyItem{
		{Position: 1, Term: "안녕", Type: model.POSNoun},
		{Position: 2, Term: "가다", Type: model.POSVerb},
	}
	require.NoError(t, c.SaveStage1(items[0], sampleStage1(), 10))

	cached := c.WarmFromBatch(items)
	assert.Equal(t, 1, cached)
}

func TestCache_InvalidateBySize(t *testing.T) {
	c := newTestCache(t)
	for i := 1; i <= 5; i++ {
		item := model.VocabularyItem{Position: i, Term: "term", Type: model.POSNoun}
		item.Term = item.Term + string(rune('a'+i))
		require.NoError(t, c.SaveStage1(item, sampleStage1(), 10))
	}

	evicted, err := c.InvalidateBySize(0)
	require.NoError(t, err)
	assert.Equal(t, 5, evicted)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(t)
	item := sampleItem()
	require.NoError(t, c.SaveStage1(item, sampleStage1(), 10))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.GetStage1(item)
		}()
	}
	wg.Wait()

	snap := c.Stats()
	assert.GreaterOrEqual(t, snap.Hits, int64(50))
}
