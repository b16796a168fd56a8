package tool

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/domain"
	"warden/internal/store"
)

func newMemoryStore(t *testing.T) *store.JSONL[domain.MemoryRecord] {
	t.Helper()
	s, err := store.New[domain.MemoryRecord](filepath.Join(t.TempDir(), "memory.jsonl"), discard())
	require.NoError(t, err)
	return s
}

func TestMemoryKeeperScanFallback(t *testing.T) {
	keeper, err := NewMemoryKeeper(newMemoryStore(t), nil, discard())
	require.NoError(t, err)

	_, err = keeper.Remember("the wifi password is on the router")
	require.NoError(t, err)
	_, err = keeper.Remember("dentist appointment friday")
	require.NoError(t, err)

	matches, err := keeper.Recall("WIFI", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1, "scan fallback is case-insensitive")
	assert.Contains(t, matches[0].Text, "wifi")
}

func TestMemoryKeeperWithIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New[domain.MemoryRecord](filepath.Join(dir, "memory.jsonl"), discard())
	require.NoError(t, err)
	index, err := OpenMemoryIndex(filepath.Join(dir, "memory.db"))
	require.NoError(t, err)
	defer index.Close()

	keeper, err := NewMemoryKeeper(s, index, discard())
	require.NoError(t, err)

	for _, text := range []string{"likes green tea", "green light means go", "red light means stop"} {
		_, err := keeper.Remember(text)
		require.NoError(t, err)
	}

	matches, err := keeper.Recall("green", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = keeper.Recall("green", 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestMemoryIndexRebuiltFromStoreOnOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New[domain.MemoryRecord](filepath.Join(dir, "memory.jsonl"), discard())
	require.NoError(t, err)

	// Records exist in the store before any index does.
	keeperNoIndex, err := NewMemoryKeeper(s, nil, discard())
	require.NoError(t, err)
	_, err = keeperNoIndex.Remember("preexisting fact")
	require.NoError(t, err)

	index, err := OpenMemoryIndex(filepath.Join(dir, "memory.db"))
	require.NoError(t, err)
	defer index.Close()
	keeper, err := NewMemoryKeeper(s, index, discard())
	require.NoError(t, err)

	matches, err := keeper.Recall("preexisting", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1, "index must be rebuilt from the store on startup")
}

func TestMemoryIndexEscapesLikeWildcards(t *testing.T) {
	dir := t.TempDir()
	index, err := OpenMemoryIndex(filepath.Join(dir, "memory.db"))
	require.NoError(t, err)
	defer index.Close()

	s := newMemoryStore(t)
	keeper, err := NewMemoryKeeper(s, index, discard())
	require.NoError(t, err)

	_, err = keeper.Remember("discount is 50% off")
	require.NoError(t, err)
	_, err = keeper.Remember("plain note")
	require.NoError(t, err)

	matches, err := keeper.Recall("50%", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// A bare "%" must not match everything.
	matches, err = keeper.Recall("%", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestMemoryIndexOrdersByIDAcrossTimestampPrecision(t *testing.T) {
	dir := t.TempDir()
	index, err := OpenMemoryIndex(filepath.Join(dir, "memory.db"))
	require.NoError(t, err)
	defer index.Close()

	// "…:01Z" sorts after "…:01.5Z" as a string, though it is the earlier
	// instant. The ULID ids sort chronologically regardless.
	older := domain.MemoryRecord{
		ID:        "01AAAAAAAAAAAAAAAAAAAAAAAA",
		Text:      "note one",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}
	newer := domain.MemoryRecord{
		ID:        "01BBBBBBBBBBBBBBBBBBBBBBBB",
		Text:      "note two",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 1, 500_000_000, time.UTC),
	}
	require.NoError(t, index.Insert(older))
	require.NoError(t, index.Insert(newer))

	ids, err := index.Search("note", 1)
	require.NoError(t, err)
	require.Equal(t, []string{newer.ID}, ids, "newest record wins under limit")
}

func TestRememberRecallTools(t *testing.T) {
	keeper, err := NewMemoryKeeper(newMemoryStore(t), nil, discard())
	require.NoError(t, err)

	remember := NewRememberTool(keeper, discard())
	recall := NewRecallTool(keeper, discard())

	stored, err := execTool(t, remember, `{"text":"buy milk"}`)
	require.NoError(t, err)
	assert.NotEmpty(t, stored["id"])

	found, err := execTool(t, recall, `{"query":"milk"}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), found["count"])
}
