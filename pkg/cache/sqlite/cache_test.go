package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/evalview/pkg/models"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func samplePayload() *models.BulkPayload {
	return &models.BulkPayload{
		Questions:   map[string]models.Question{"q1": {ID: "q1", Prompt: "reverse a list"}},
		Responses:   map[string]models.Response{"q1": {QuestionID: "q1", Content: "xs[::-1]"}},
		Evaluations: map[string]models.Evaluation{"q1": {Score: 1, MaxScore: 1, Passed: true}},
	}
}

func TestSaveAndLoad(t *testing.T) {
	c := newTestCache(t)
	key := models.CacheKey{RunID: "r1", ModelName: "openai/gpt-4"}

	require.NoError(t, c.Save(key, samplePayload()))

	got, ok, err := c.Load(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, samplePayload(), got)

	_, ok, err = c.Load(models.CacheKey{RunID: "r2", ModelName: "openai/gpt-4"})
	require.NoError(t, err)
	assert.False(t, ok, "expected miss for different run")
}

func TestSaveReplaces(t *testing.T) {
	c := newTestCache(t)
	key := models.CacheKey{RunID: "r1", ModelName: "m1"}

	require.NoError(t, c.Save(key, samplePayload()))
	replacement := &models.BulkPayload{Questions: map[string]models.Question{"q9": {ID: "q9"}}}
	require.NoError(t, c.Save(key, replacement))

	got, ok, err := c.Load(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, replacement.Questions, got.Questions)
	assert.Empty(t, got.Responses)

	n, err := c.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeleteIsIdempotent(t *testing.T) {
	c := newTestCache(t)
	key := models.CacheKey{RunID: "r1", ModelName: "m1"}

	require.NoError(t, c.Save(key, samplePayload()))
	require.NoError(t, c.Delete(key))
	require.NoError(t, c.Delete(key))

	_, ok, err := c.Load(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearByRun(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Save(models.CacheKey{RunID: "r1", ModelName: "a"}, samplePayload()))
	require.NoError(t, c.Save(models.CacheKey{RunID: "r1", ModelName: "b"}, samplePayload()))
	require.NoError(t, c.Save(models.CacheKey{RunID: "r2", ModelName: "a"}, samplePayload()))

	require.NoError(t, c.Clear("r1"))
	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, []models.CacheKey{{RunID: "r2", ModelName: "a"}}, keys)

	require.NoError(t, c.Clear(""))
	n, err := c.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}
