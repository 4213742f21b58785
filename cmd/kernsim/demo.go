package main

import (
	"fmt"
	"io"

	"kernsim/pkg/kernel"
	"kernsim/pkg/loader"
	"kernsim/pkg/process"
	"kernsim/pkg/syscall"
	vfs "kernsim/pkg/vfs"
)

const programName = "/bin/demo"

// step is one system call of the scripted program.
type step struct {
	call syscall.Number
	args []int32
	note string
}

// programs returns the loader table holding the demo program.
func programs() *loader.Table {
	table := loader.NewTable()
	table.Register(programName, &loader.Static{
		Entry: 0,
		Segments: []*loader.StaticSection{
			{SectionName: ".text", VPN: 0, Pages: 1, RO: true},
			{SectionName: ".data", VPN: 1, Pages: 1},
		},
	})
	return table
}

// install creates an empty executable file for a registered program,
// along with its parent directories.
func install(fs vfs.FileSystem, name string) error {
	if err := fs.MkdirAll(vfs.Dir(name), 0755); err != nil {
		return err
	}

	f, err := fs.OpenFile(name, vfs.O_CREATE|vfs.O_RDWR, 0755)
	if err != nil {
		return err
	}
	return f.Close()
}

// runDemo installs and starts the demo program, then drives its script.
func runDemo(k *kernel.Kernel, out io.Writer, message string) error {
	if err := install(k.FileSystem(), programName); err != nil {
		return fmt.Errorf("install %s: %w", programName, err)
	}

	p, err := k.Run(programName, []string{"demo"})
	if err != nil {
		return fmt.Errorf("run %s: %w", programName, err)
	}
	fmt.Fprintf(out, "Started PID %d with %d pages\n", p.PID, p.Layout().NumPages)

	return runScript(k, p, message, out)
}

func runScript(k *kernel.Kernel, p *process.Process, message string, out io.Writer) error {
	// data page layout
	page := int32(k.Processor().PageSize())
	nameAddr := page
	dataAddr := page + 64
	bufAddr := page + 128

	mem := p.AddressSpace()
	mem.WriteBytes(int(nameAddr), []byte("a.txt\x00"))
	mem.WriteBytes(int(dataAddr), []byte(message+"\n"))
	size := int32(len(message) + 1)

	script := []step{
		{syscall.Create, []int32{nameAddr}, "create a.txt"},
		{syscall.Write, []int32{2, dataAddr, size}, "write message"},
		{syscall.Close, []int32{2}, "close"},
		{syscall.Open, []int32{nameAddr}, "reopen a.txt"},
		{syscall.Read, []int32{2, bufAddr, size}, "read message back"},
		{syscall.Write, []int32{1, bufAddr, size}, "echo to console"},
		{syscall.Unlink, []int32{nameAddr}, "unlink while open"},
		{syscall.Open, []int32{nameAddr}, "open pending file"},
		{syscall.Close, []int32{2}, "last close removes a.txt"},
		{syscall.Read, []int32{16, bufAddr, 1}, "read bad descriptor"},
		{syscall.Halt, nil, "halt"},
	}

	for _, s := range script {
		result, err := k.Invoke(p, s.call, s.args...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-7s %-26s -> %d\n", s.call, s.note, result)
	}

	if _, err := k.FileSystem().Stat("/a.txt"); err != nil {
		fmt.Fprintln(out, "a.txt removed after last close")
	}
	if k.Processor().Halted() {
		fmt.Fprintln(out, "Machine halted")
	}
	return nil
}
