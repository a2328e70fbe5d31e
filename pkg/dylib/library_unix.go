//go:build darwin || freebsd || linux

package dylib

import (
	"fmt"

	"github.com/ebitengine/purego"
)

type library struct {
	path   string
	handle uintptr
}

// Open loads the shared library at path, resolving every symbol immediately
// (RTLD_NOW) so that unresolved link dependencies fail here rather than at the
// first call. Symbols are kept local to the library.
func Open(path string) (Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &library{path: path, handle: handle}, nil
}

func (l *library) Path() string {
	return l.path
}

func (l *library) Symbol(name string) (uintptr, error) {
	if l.handle == 0 {
		return 0, ErrClosed
	}
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSymbolNotFound, err)
	}
	if addr == 0 {
		return 0, ErrSymbolNotFound
	}
	return addr, nil
}

func (l *library) CString(name string) (string, error) {
	addr, err := l.Symbol(name)
	if err != nil {
		return "", err
	}
	// The export is a `const char *` variable: addr is the address of the pointer.
	return readCString(*(*uintptr)(pointer(addr)))
}

func (l *library) Func(fptr any, name string) error {
	addr, err := l.Symbol(name)
	if err != nil {
		return err
	}
	return BindFunc(fptr, addr)
}

// BindFunc binds the C function at addr to fptr, a pointer to a Go func
// variable with a C-compatible signature.
func BindFunc(fptr any, addr uintptr) (err error) {
	if addr == 0 {
		return ErrNullPointer
	}
	// RegisterFunc panics on func types it cannot marshal.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBadSignature, r)
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}

// NewCallback returns a C function pointer calling fn.
// Callbacks are never released, so they must be created once per process.
func NewCallback(fn any) (addr uintptr, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBadSignature, r)
		}
	}()
	return purego.NewCallback(fn), nil
}

func (l *library) Close() error {
	if l.handle == 0 {
		return nil
	}
	handle := l.handle
	l.handle = 0
	if err := purego.Dlclose(handle); err != nil {
		return fmt.Errorf("failed to unload %s: %w", l.path, err)
	}
	return nil
}
