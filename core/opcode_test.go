package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationCode_WireValuesAreStable(t *testing.T) {
	expected := map[OperationCode]byte{
		OpPut:                           1,
		OpRemove:                        2,
		OpPutIfAbsent:                   3,
		OpReplace:                       4,
		OpConditionalReplace:            5,
		OpConditionalRemove:             6,
		OpTimestampedPut:                0x11,
		OpTimestampedRemove:             0x12,
		OpTimestampedPutIfAbsent:        0x13,
		OpTimestampedReplace:            0x14,
		OpTimestampedConditionalReplace: 0x15,
		OpTimestampedConditionalRemove:  0x16,
	}
	require.Len(t, Codes(), len(expected))
	for code, b := range expected {
		assert.Equal(t, b, CodeFor(code), "code %s", code)
	}
}

func TestKindFor_RoundTripsEveryCode(t *testing.T) {
	seen := make(map[byte]bool)
	for _, code := range Codes() {
		b := CodeFor(code)
		require.False(t, seen[b], "byte 0x%02x assigned twice", b)
		seen[b] = true

		got, err := KindFor(b)
		require.NoError(t, err)
		assert.Equal(t, code, got)
		assert.True(t, code.Valid())
		assert.NotEqual(t, "Unknown", code.String())
	}
}

func TestKindFor_UnknownByte(t *testing.T) {
	for _, b := range []byte{0x00, 0x07, 0x0A, 0x10, 0x17, 0xFF} {
		_, err := KindFor(b)
		require.Error(t, err, "byte 0x%02x", b)
		assert.True(t, IsUnknownOperationCode(err))
		assert.False(t, OperationCode(b).Valid())
	}
}

func TestOperationCode_Shape(t *testing.T) {
	testCases := []struct {
		code        OperationCode
		value       bool
		expected    bool
		timestamped bool
	}{
		{OpPut, true, false, false},
		{OpRemove, false, false, false},
		{OpPutIfAbsent, true, false, false},
		{OpReplace, true, false, false},
		{OpConditionalReplace, true, true, false},
		{OpConditionalRemove, false, true, false},
		{OpTimestampedPut, true, false, true},
		{OpTimestampedRemove, false, false, true},
		{OpTimestampedConditionalReplace, true, true, true},
		{OpTimestampedConditionalRemove, false, true, true},
	}
	for _, tc := range testCases {
		t.Run(tc.code.String(), func(t *testing.T) {
			assert.Equal(t, tc.value, tc.code.CarriesValue())
			assert.Equal(t, tc.expected, tc.code.CarriesExpected())
			assert.Equal(t, tc.timestamped, tc.code.Timestamped())
		})
	}
	assert.Equal(t, OpTimestampedReplace, OpReplace.WithTimestamp())
	assert.Equal(t, OpReplace, OpTimestampedReplace.Untimestamped())
}
