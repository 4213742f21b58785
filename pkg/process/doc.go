/*
Package process manages user processes and implements their system calls.

A Manager is the kernel-level owner of everything processes share: the
processor, the frame allocator, the file registry, the program loader and
the console. Each Process owns an address space and a descriptor table.

# Process States

  - Ready: created, descriptors 0 and 1 bound to the console
  - Running: registers initialized from the loaded program
  - Terminated: descriptors closed and memory returned

# Usage

	p, err := manager.CreateProcess()
	if err != nil {
		// Handle error
	}

	if err := p.Execute("/bin/sh", []string{"sh"}); err != nil {
		// Handle error
	}
	if err := p.InitRegisters(); err != nil {
		// Handle error
	}

Process implements syscall.Handlers. Every handler reports failure by
returning -1 and leaves the process running.
*/
package process
