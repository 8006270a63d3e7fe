package chain

import (
	"testing"

	"github.com/INLOpen/nexuschain/compressors"
	"github.com/INLOpen/nexuschain/core"
	"github.com/INLOpen/nexuschain/internal/testutil"
	"github.com/INLOpen/nexuschain/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDurableOptions(t *testing.T, dir string) DurableOptions {
	t.Helper()
	return DurableOptions{
		Dir:      dir,
		SyncMode: core.WALSyncDisabled,
		Logger:   testutil.DiscardLogger(),
	}
}

func TestDurableLog_ReplayAfterReopen(t *testing.T) {
	dir := t.TempDir()
	opts := testDurableOptions(t, dir)
	opts.Compressor = compressors.NewSnappyCompressor()

	d, err := OpenDurable(opts)
	require.NoError(t, err)
	require.NoError(t, d.Append(b("k1"), b("r1")))
	require.NoError(t, d.Append(b("k1"), b("r2")))
	require.NoError(t, d.Append(b("k2"), b("x1")))
	require.NoError(t, d.Replace(b("k2"), b("x2")))
	require.NoError(t, d.Append(b("k3"), b("gone")))
	require.NoError(t, d.Replace(b("k3"), nil))
	require.NoError(t, d.Close())
	testutil.RequireWALPresent(t, dir)

	d, err = OpenDurable(opts)
	require.NoError(t, err)
	defer d.Close()

	recs, err := d.Records(b("k1"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("r1"), b("r2")}, recs)

	recs, err = d.Records(b("k2"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("x2")}, recs)

	keys, err := d.Keys()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("k1"), b("k2")}, keys)

	// Sequence numbers continue after the replayed entries.
	assert.Equal(t, uint64(7), d.nextSeq)
}

func TestDurableLog_LocksDataDir(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDurable(testDurableOptions(t, dir))
	require.NoError(t, err)

	_, err = OpenDurable(testDurableOptions(t, dir))
	require.Error(t, err)
	assert.ErrorIs(t, err, sys.ErrLocked)

	require.NoError(t, d.Close())
	d2, err := OpenDurable(testDurableOptions(t, dir))
	require.NoError(t, err)
	require.NoError(t, d2.Close())
}

func TestDurableLog_Checkpoint(t *testing.T) {
	dir := t.TempDir()
	opts := testDurableOptions(t, dir)

	d, err := OpenDurable(opts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Append(b("k"), []byte{byte(i)}))
	}
	require.NoError(t, d.Append(b("other"), b("o")))
	require.NoError(t, d.Replace(b("other"), nil))
	require.NoError(t, d.Append(b("z"), b("z1")))

	before, err := testutil.ListWALFiles(dir)
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, d.Checkpoint())
	after, err := testutil.ListWALFiles(dir)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0], after[0], "old segment is purged")

	require.NoError(t, d.Append(b("z"), b("z2")))
	require.NoError(t, d.Close())

	d, err = OpenDurable(opts)
	require.NoError(t, err)
	defer d.Close()

	recs, err := d.Records(b("k"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0}, {1}, {2}, {3}, {4}}, recs)
	recs, err = d.Records(b("z"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("z1"), b("z2")}, recs)
	keys, err := d.Keys()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("k"), b("z")}, keys)
	assert.ElementsMatch(t, []int{5, 2}, d.ChainLengths())
}

func TestDurableLog_Closed(t *testing.T) {
	d, err := OpenDurable(testDurableOptions(t, t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.Append(b("k"), b("r")), ErrClosed)
	assert.ErrorIs(t, d.Replace(b("k"), nil), ErrClosed)
	assert.ErrorIs(t, d.Checkpoint(), ErrClosed)
	assert.ErrorIs(t, d.Sync(), ErrClosed)
}
