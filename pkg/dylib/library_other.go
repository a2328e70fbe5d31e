//go:build !(darwin || freebsd || linux)

package dylib

// Open always fails on this platform
func Open(path string) (Library, error) {
	return nil, ErrUnsupported
}

// BindFunc always fails on this platform
func BindFunc(fptr any, addr uintptr) error {
	return ErrUnsupported
}

// NewCallback always fails on this platform
func NewCallback(fn any) (uintptr, error) {
	return 0, ErrUnsupported
}
