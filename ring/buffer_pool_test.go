package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPoolRejectsNonPowerOfTwo(t *testing.T) {
	var b BufferPool
	err := b.init(nil, 3, 1024)
	require.Error(t, err)
}

func TestBufferPoolBorrowReleaseRoundTrip(t *testing.T) {
	e, err := New(Config{QueueDepth: 16, BufferCount: 8, BufferLen: 64})
	require.NoError(t, err)
	defer e.Close()

	e.buffers.data[0] = 'a'
	const cqefBuffer = 1 << 0 // buffer id 0, CQEFBuffer bit set
	buf, id := e.buffers.borrow(1, cqefBuffer)
	require.Equal(t, []byte{'a'}, buf)
	require.Equal(t, uint16(0), id)

	require.Panics(t, func() { e.buffers.borrow(1, cqefBuffer) })

	e.buffers.release(id)
	buf2, id2 := e.buffers.borrow(1, cqefBuffer)
	require.Equal(t, id, id2)
	require.Equal(t, []byte{'a'}, buf2)
	e.buffers.release(id2)
}
