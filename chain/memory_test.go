package chain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b(s string) []byte { return []byte(s) }

func TestMemoryLog_AppendAndRecords(t *testing.T) {
	m := NewMemoryLog()
	defer m.Close()

	require.NoError(t, m.Append(b("k1"), b("r1")))
	require.NoError(t, m.Append(b("k1"), b("r2")))
	require.NoError(t, m.Append(b("k2"), b("x")))

	recs, err := m.Records(b("k1"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("r1"), b("r2")}, recs)

	recs, err = m.Records(b("missing"))
	require.NoError(t, err)
	assert.Empty(t, recs)

	assert.Equal(t, 2, m.Len(b("k1")))
	assert.Equal(t, int64(5), m.Size())
}

func TestMemoryLog_CopiesOnAppendAndRead(t *testing.T) {
	m := NewMemoryLog()
	key, rec := b("key"), b("record")
	require.NoError(t, m.Append(key, rec))
	key[0], rec[0] = 'X', 'X'

	recs, err := m.Records(b("key"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, b("record"), recs[0])

	recs[0][0] = 'Y'
	again, err := m.Records(b("key"))
	require.NoError(t, err)
	assert.Equal(t, b("record"), again[0])
}

func TestMemoryLog_Replace(t *testing.T) {
	m := NewMemoryLog()
	require.NoError(t, m.Append(b("k"), b("a")))
	require.NoError(t, m.Append(b("k"), b("bb")))

	require.NoError(t, m.Replace(b("k"), b("c")))
	recs, err := m.Records(b("k"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("c")}, recs)
	assert.Equal(t, int64(1), m.Size())

	t.Run("EmptyDropsChain", func(t *testing.T) {
		require.NoError(t, m.Replace(b("k"), nil))
		recs, err := m.Records(b("k"))
		require.NoError(t, err)
		assert.Empty(t, recs)
		keys, err := m.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.Equal(t, int64(0), m.Size())
	})

	t.Run("DropMissingIsNoop", func(t *testing.T) {
		require.NoError(t, m.Replace(b("never"), nil))
		assert.Equal(t, 0, m.Len(b("never")))
	})

	t.Run("ReplaceCreatesChain", func(t *testing.T) {
		require.NoError(t, m.Replace(b("fresh"), b("z")))
		assert.Equal(t, 1, m.Len(b("fresh")))
	})
}

func TestMemoryLog_KeysOrdered(t *testing.T) {
	m := NewMemoryLog()
	for _, k := range []string{"c", "a", "b", "ab"} {
		require.NoError(t, m.Append(b(k), b("r")))
	}
	require.NoError(t, m.Append(b("a"), b("r2")))

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("a"), b("ab"), b("b"), b("c")}, keys)
	assert.ElementsMatch(t, []int{2, 1, 1, 1}, m.ChainLengths())
}

func TestMemoryLog_Closed(t *testing.T) {
	m := NewMemoryLog()
	require.NoError(t, m.Append(b("k"), b("r")))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Append(b("k"), b("r")), ErrClosed)
	assert.ErrorIs(t, m.Replace(b("k"), b("r")), ErrClosed)
	_, err := m.Records(b("k"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Keys()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryLog_ConcurrentAppend(t *testing.T) {
	m := NewMemoryLog()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.NoError(t, m.Append(b("shared"), b("r")))
				_, _ = m.Records(b("shared"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, m.Len(b("shared")))
}
