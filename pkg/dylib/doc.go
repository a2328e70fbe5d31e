// Package dylib gives the plugin runtime access to shared libraries built by
// any toolchain that can export C symbols.
//
// Libraries are opened with purego (dlopen/dlsym without cgo). A Library hands
// out raw addresses, decoded text constants and Go funcs bound to exported C
// functions; all of them are only valid while the Library is open.
//
// Host values never cross the boundary as Go pointers. They are published in
// a Handles table and referenced by integer Handle; configuration tables are
// first converted to the ABI-stable ConfigTable form. Foreign code calls back
// into the host through C function pointers made with NewCallback, laid out as
// a HostTable; the memory helpers decode and fill their C arguments.
//
// Open is only functional on darwin, freebsd and linux; elsewhere it returns
// ErrUnsupported.
package dylib
