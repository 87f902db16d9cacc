package buildcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "qcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutAndLastResult(t *testing.T) {
	c := openTemp(t)

	hash := HashSource("int main() { return 0; }\n")
	require.NoError(t, c.Put("main.c", hash, 0, 1, 1500*time.Microsecond))

	rec, ok, err := c.LastResult("main.c", hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Session(), rec.Session)
	assert.Equal(t, 0, rec.Errors)
	assert.Equal(t, 1, rec.Warnings)
	assert.Equal(t, 1500*time.Microsecond, rec.Duration)
}

func TestLastResultMissing(t *testing.T) {
	c := openTemp(t)
	_, ok, err := c.LastResult("other.c", HashSource("x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestRecordWins(t *testing.T) {
	c := openTemp(t)
	hash := HashSource("int x;")
	require.NoError(t, c.Put("a.c", hash, 2, 0, time.Millisecond))
	require.NoError(t, c.Put("a.c", hash, 0, 0, time.Millisecond))

	rec, ok, err := c.LastResult("a.c", hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rec.Errors)
}

func TestSessionIsStable(t *testing.T) {
	c := openTemp(t)
	assert.NotEmpty(t, c.Session())
	assert.Equal(t, c.Session(), c.Session())
}

func TestHashSourceDistinguishesInputs(t *testing.T) {
	assert.NotEqual(t, HashSource("int x;"), HashSource("int y;"))
	assert.Equal(t, HashSource("int x;"), HashSource("int x;"))
}
