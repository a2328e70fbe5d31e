package dylib

import (
	"unicode/utf8"
	"unsafe"
)

// pointer converts an address of foreign memory, which the Go GC does not manage.
func pointer(p uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&p))
}

// GoString decodes the NUL-terminated UTF-8 string at p
func GoString(p uintptr) (string, error) {
	return readCString(p)
}

func readCString(p uintptr) (string, error) {
	if p == 0 {
		return "", ErrNullPointer
	}
	base := pointer(p)
	for n := 0; n < maxCStringLen; n++ {
		if *(*byte)(unsafe.Add(base, n)) != 0 {
			continue
		}
		s := string(unsafe.Slice((*byte)(base), n))
		if !utf8.ValidString(s) {
			return "", ErrInvalidUTF8
		}
		return s, nil
	}
	return "", ErrUnterminated
}

// StoreInt64 writes v to the int64_t at p. A zero p is ignored.
func StoreInt64(p uintptr, v int64) {
	if p != 0 {
		*(*int64)(pointer(p)) = v
	}
}

// StoreInt32 writes v to the int32_t at p. A zero p is ignored.
func StoreInt32(p uintptr, v int32) {
	if p != 0 {
		*(*int32)(pointer(p)) = v
	}
}

// StoreFloat64 writes v to the double at p. A zero p is ignored.
func StoreFloat64(p uintptr, v float64) {
	if p != 0 {
		*(*float64)(pointer(p)) = v
	}
}

// CopyCString copies s into the size-byte buffer at buf, truncated if needed
// and always NUL-terminated when size > 0. It returns len(s), so that the
// caller can detect truncation like with snprintf.
func CopyCString(buf, size uintptr, s string) int64 {
	if buf != 0 && size > 0 {
		n := min(uintptr(len(s)), size-1)
		dst := unsafe.Slice((*byte)(pointer(buf)), n+1)
		copy(dst, s[:n])
		dst[n] = 0
	}
	return int64(len(s))
}

// HostTable is the C layout of `struct probekit_host`, the functions the host
// hands to plugin_init. Fields are C function pointers, in header order.
type HostTable struct {
	ConfigInt    uintptr
	ConfigFloat  uintptr
	ConfigBool   uintptr
	ConfigString uintptr
	CreateMetric uintptr
	AddSource    uintptr
	Push         uintptr
}

// Addr returns the address given to foreign code.
// The table must stay reachable from Go for as long as plugins may use it.
func (t *HostTable) Addr() uintptr {
	return uintptr(unsafe.Pointer(t))
}
