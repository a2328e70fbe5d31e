package dylib

import (
	"errors"
	"fmt"
	"runtime"
)

// Errors returned by Library implementations
var (
	// ErrSymbolNotFound is returned when a library does not export a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrBadSignature is returned when a function export cannot be bound to the requested Go func type.
	ErrBadSignature = errors.New("symbol has an unsupported signature")

	// ErrNullPointer is returned when a text constant points to NULL.
	ErrNullPointer = errors.New("null pointer")

	// ErrUnterminated is returned when a text constant has no NUL terminator within maxCStringLen bytes.
	ErrUnterminated = errors.New("string is not NUL-terminated")

	// ErrInvalidUTF8 is returned when a text constant is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

	// ErrClosed is returned when using a library after Close.
	ErrClosed = errors.New("library is closed")

	// ErrUnsupported is returned by Open on platforms without dynamic loading.
	ErrUnsupported = fmt.Errorf("dynamic libraries are not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
)

// maxCStringLen bounds the scan for the NUL terminator of a text constant
const maxCStringLen = 64 * 1024

// Library is an open shared library.
//
// Addresses and functions obtained from a Library are only valid until Close
// returns; callers that keep them must also keep the Library.
type Library interface {
	// Path returns the file the library was opened from.
	Path() string

	// Symbol returns the address of an exported symbol.
	Symbol(name string) (uintptr, error)

	// CString reads the text constant exported as `const char *name`.
	CString(name string) (string, error)

	// Func binds the function exported as name to fptr, which must be a
	// pointer to a Go func variable with a C-compatible signature.
	Func(fptr any, name string) error

	// Close unloads the library. It is safe to call more than once.
	Close() error
}

// Opener opens a shared library
type Opener func(path string) (Library, error)

// SharedLibraryExtensions lists the file extensions of loadable libraries
var SharedLibraryExtensions = []string{".so", ".dylib", ".dll"}
