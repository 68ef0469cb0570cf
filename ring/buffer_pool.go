package ring

import (
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"

	"github.com/ianic/xnet/internal/xerr"
)

const bufferGroupID = 0

// BufferPool is a registered provided-buffer ring: a single mmap'd
// region of capacity*size bytes shared with the kernel, which selects
// a buffer id at completion time instead of the caller pre-posting one
// per recv. Capacity must be a power of two.
type BufferPool struct {
	br       *giouring.BufAndRing
	data     []byte
	capacity uint32
	size     uint32
	borrowed []bool
}

func (b *BufferPool) init(r *giouring.Ring, capacity, size uint32) error {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return xerr.New("ring.BufferPool.init", xerr.CodeBufferRingInit, "capacity must be a power of two")
	}
	b.capacity = capacity
	b.size = size
	b.borrowed = make([]bool, capacity)

	n := int(capacity * size)
	data, err := syscall.Mmap(-1, 0, n, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_ANON|syscall.MAP_PRIVATE)
	if err != nil {
		return xerr.Wrap("ring.BufferPool.init", err)
	}
	b.data = data

	br, err := r.SetupBufRing(capacity, bufferGroupID, 0)
	if err != nil {
		_ = syscall.Munmap(b.data)
		return xerr.Wrap("ring.BufferPool.init", err)
	}
	b.br = br
	for i := uint32(0); i < capacity; i++ {
		b.br.BufRingAdd(
			uintptr(unsafe.Pointer(&b.data[b.size*i])),
			b.size,
			uint16(i),
			giouring.BufRingMask(b.capacity),
			int(i),
		)
	}
	b.br.BufRingAdvance(int(capacity))
	return nil
}

// borrow returns the slice of res bytes the kernel placed into buffer
// id, decoded from a recv completion's flags. Panics if the completion
// did not carry a buffer-select flag or the id was already borrowed:
// both are programmer/engine errors, never a caller mistake.
func (b *BufferPool) borrow(res int32, flags uint32) ([]byte, uint16) {
	if flags&giouring.CQEFBuffer == 0 {
		panic("ring: recv completion missing buffer-select flag")
	}
	id := uint16(flags >> giouring.CQEBufferShift)
	if b.borrowed[id] {
		panic("ring: buffer already borrowed")
	}
	b.borrowed[id] = true
	start := uint32(id) * b.size
	n := uint32(res)
	return b.data[start : start+n], id
}

// release republishes a borrowed buffer to the kernel so a future recv
// may select it again.
func (b *BufferPool) release(id uint16) {
	if !b.borrowed[id] {
		panic("ring: releasing a buffer that was not borrowed")
	}
	b.borrowed[id] = false
	start := uint32(id) * b.size
	b.br.BufRingAdd(
		uintptr(unsafe.Pointer(&b.data[start])),
		b.size,
		id,
		giouring.BufRingMask(b.capacity),
		0,
	)
	b.br.BufRingAdvance(1)
}

func (b *BufferPool) deinit() {
	_ = syscall.Munmap(b.data)
}
