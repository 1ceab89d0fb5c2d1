package bucket

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendRangeCoalescesAdjacent(t *testing.T) {
	var l List
	l.AppendRange(0, 10)
	l.AppendRange(10, 5)
	require.Len(t, l, 1)
	require.Equal(t, int64(15), l[0].Size)

	l.AppendRange(100, 5)
	require.Len(t, l, 2, "non-adjacent range starts a new bucket")
}

func TestAppendRangeIgnoresZeroSize(t *testing.T) {
	var l List
	l.AppendRange(0, 0)
	require.Empty(t, l)
}

func TestAppendMemoryIgnoresEmpty(t *testing.T) {
	var l List
	l.AppendMemory(nil)
	l.AppendMemory([]byte{})
	require.Empty(t, l)
}

func TestTotalSizeAndWriteTo(t *testing.T) {
	src := strings.NewReader("0123456789abcdef")

	var l List
	l.AppendMemory([]byte("head-"))
	l.AppendRange(2, 4) // "2345"
	l.AppendMemory([]byte("-tail"))

	require.Equal(t, int64(5+4+5), l.TotalSize())

	var buf bytes.Buffer
	n, err := l.WriteTo(&buf, src)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, "head-2345-tail", buf.String())
}
