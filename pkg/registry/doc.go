/*
Package registry implements the kernel's global open-file table.

Every open of a canonical file name, from any process, resolves to one shared
Handle. A Handle counts its references; Acquire and Release are the only
ways to change the count, and the last Release closes the underlying file.

# Deferred deletion

Unlinking a name that is still open only marks its Handle as pending
deletion. Existing holders keep working and no new opens are accepted; the
storage is removed when the last holder releases the Handle:

	h, _ := reg.Open("a.txt", true)
	reg.Unlink("a.txt")      // still readable and writable through h
	reg.Open("a.txt", false) // ErrPendingDeletion
	h.Release()              // a.txt is removed now

# Locking

Reference counts, pending-deletion marks and table membership change under a
single registry lock, so two racing opens of an unopened name always share
one Handle. Reads and writes go through a per-handle lock instead and never
hold the registry lock.
*/
package registry
