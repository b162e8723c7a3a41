package device

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

// Buffer is a named device memory allocation. Host data is exchanged with
// blocking reads and writes on the device command queue.
type Buffer struct {
	device    *Device
	bufHandle cl.Mem
	name      string
	size      int
}

func (b *Buffer) Size() int {
	return b.size
}

func (b *Buffer) Name() string {
	return b.name
}

// Handle returns the underlying opencl memory object.
func (b *Buffer) Handle() cl.Mem {
	return b.bufHandle
}

// Allocate (re)allocates the buffer with size bytes. Allocating the current
// size is a no-op.
func (b *Buffer) Allocate(size int, flags cl.MemFlags) error {
	if b.bufHandle != nil && b.size == size {
		return nil
	}
	b.Release()

	var errCode cl.ErrorCode
	handle := cl.CreateBuffer(*b.device.ctx, flags, cl.MemFlags(size), nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return b.device.fail(errCode, "could not allocate buffer %s of size %d", b.name, size)
	}

	b.bufHandle, b.size = handle, size
	return nil
}

// AllocateToFitData allocates enough space for the contents of a slice.
func (b *Buffer) AllocateToFitData(data interface{}, flags cl.MemFlags) error {
	_, dataLen := sliceBytes(data)
	return b.Allocate(dataLen, flags)
}

// WriteData copies the contents of a slice into the buffer starting at the
// given byte offset.
func (b *Buffer) WriteData(data interface{}, offset int) error {
	dataPtr, dataLen := sliceBytes(data)
	if offset+dataLen > b.size {
		return fmt.Errorf("opencl device (%s): %w: %s holds %d bytes; cannot write %d bytes at offset %d", b.device.Name, ErrBufferTooSmall, b.name, b.size, dataLen, offset)
	}

	errCode := cl.EnqueueWriteBuffer(b.device.cmdQueue, b.bufHandle, cl.TRUE, uint64(offset), uint64(dataLen), dataPtr, 0, nil, nil)
	if errCode != cl.SUCCESS {
		return b.device.fail(errCode, "could not copy host data to buffer %s", b.name)
	}
	return nil
}

// ReadData copies size bytes starting at srcOffset into a host slice at byte
// offset dstOffset. A size <= 0 copies the whole buffer.
func (b *Buffer) ReadData(srcOffset, dstOffset, size int, hostBuffer interface{}) error {
	if size <= 0 {
		size = b.size
	}

	dataPtr, dataLen := sliceBytes(hostBuffer)
	if dstOffset+size > dataLen {
		return fmt.Errorf("opencl device (%s): %w: host buffer holds %d bytes; cannot read %d bytes from %s at offset %d", b.device.Name, ErrBufferTooSmall, dataLen, size, b.name, dstOffset)
	}

	dst := unsafe.Add(dataPtr, dstOffset)
	errCode := cl.EnqueueReadBuffer(b.device.cmdQueue, b.bufHandle, cl.TRUE, uint64(srcOffset), uint64(size), dst, 0, nil, nil)
	if errCode != cl.SUCCESS {
		return b.device.fail(errCode, "could not copy buffer %s to host memory", b.name)
	}
	return nil
}

func (b *Buffer) Release() {
	if b.bufHandle != nil {
		cl.ReleaseMemObject(b.bufHandle)
		b.bufHandle = nil
		b.size = 0
	}
}

// sliceBytes returns a pointer to the backing array of a non-empty slice and
// its length in bytes. It panics for anything else.
func sliceBytes(data interface{}) (unsafe.Pointer, int) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		panic(fmt.Sprintf("device: expected a slice; got %T", data))
	}
	if v.Len() == 0 {
		panic("device: empty slice")
	}
	return v.UnsafePointer(), v.Len() * int(v.Type().Elem().Size())
}
