// Package vfs defines the storage layer underneath the kernel's file table.
//
// A FileSystem resolves canonical file names to open Files. Backends are
// MemFS (in-memory, the default for the simulated machine) and DiskFS
// (a directory on the host).
//
// Files opened before their name is removed remain usable until closed,
// which is what the kernel's deferred deletion relies on:
//
//	fs := memfs.New()
//	f, _ := fs.OpenFile("a.txt", vfs.O_RDWR|vfs.O_CREATE, 0666)
//	fs.Remove("a.txt")
//	f.Write([]byte("still writable"))
//	f.Close()
package vfs
