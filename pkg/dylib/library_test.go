package dylib

import (
	"path/filepath"
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cstr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// heap keeps buffers handed to foreign code on the heap, where they do not move
var heap [][]byte

func pinned(b []byte) []byte {
	heap = append(heap, b)
	return b
}

func TestReadCString(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		buf := []byte("demo\x00trailing")
		s, err := readCString(cstr(buf))
		runtime.KeepAlive(buf)

		require.NoError(t, err)
		assert.Equal(t, "demo", s)
	})

	t.Run("empty", func(t *testing.T) {
		buf := []byte{0}
		s, err := readCString(cstr(buf))
		runtime.KeepAlive(buf)

		require.NoError(t, err)
		assert.Equal(t, "", s)
	})

	t.Run("null pointer", func(t *testing.T) {
		_, err := readCString(0)
		assert.ErrorIs(t, err, ErrNullPointer)
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		buf := []byte{'a', 0xff, 0xfe, 0}
		_, err := readCString(cstr(buf))
		runtime.KeepAlive(buf)

		assert.ErrorIs(t, err, ErrInvalidUTF8)
	})
}

func TestMemoryHelpers(t *testing.T) {
	buf := pinned(make([]byte, 8))
	StoreInt64(cstr(buf), -2)
	assert.Equal(t, int64(-2), *(*int64)(unsafe.Pointer(&buf[0])))

	StoreFloat64(cstr(buf), 0.5)
	assert.Equal(t, 0.5, *(*float64)(unsafe.Pointer(&buf[0])))

	StoreInt32(cstr(buf), 1)
	assert.Equal(t, int32(1), *(*int32)(unsafe.Pointer(&buf[0])))

	// a NULL out-parameter is ignored
	StoreInt64(0, 1)

	t.Run("copy string", func(t *testing.T) {
		dst := pinned(make([]byte, 5))
		assert.Equal(t, int64(len("counter")), CopyCString(cstr(dst), uintptr(len(dst)), "counter"))
		assert.Equal(t, []byte("coun\x00"), dst, "truncated and terminated")

		s, err := GoString(cstr(dst))
		require.NoError(t, err)
		assert.Equal(t, "coun", s)

		// sizing call
		assert.Equal(t, int64(3), CopyCString(0, 0, "abc"))
	})

	var table HostTable
	assert.Equal(t, uintptr(unsafe.Pointer(&table)), table.Addr())
	assert.Equal(t, 7*unsafe.Sizeof(uintptr(0)), unsafe.Sizeof(table))
}

func TestOpen_MissingFile(t *testing.T) {
	lib, err := Open(filepath.Join(t.TempDir(), "libmissing.so"))
	assert.Error(t, err)
	assert.Nil(t, lib)
}
