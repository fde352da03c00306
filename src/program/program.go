// Package program stands in for the NOFF executables this simulator
// cannot disassemble and execute: decoding real MIPS instructions is
// out of scope (see machine.DecodeNoffHeader's doc comment), so a
// "user program" here is a registered Go closure invoked the same way
// a real syscall trap would invoke user code, making its syscalls by
// calling the kernel services in Env.Sys directly (the same services
// the trap package's dispatch table calls). This is the Go-native
// replacement for the
// original test/*.c sample programs (makethreads.c, userpages0.c,
// userpages2.c): each becomes a Func here instead of compiled MIPS
// object code baked into a disk image.
package program

import "simkernel/src/addrspace"

// Func is a registered user program: given the running process's
// address space and kernel services (Env), it plays the role of the program's
// entry point until it returns, at which point the process's initial
// thread exits as if it had made an Exit syscall.
type Func func(env Env)

// Env is everything a Func needs to act like code running on the
// simulated machine: its own process's address space and the kernel
// services a syscall would reach.
type Env struct {
	Space *addrspace.AddrSpace
	Sys   Syscalls
}

// Syscalls is the subset of kernel.System a program body can call
// directly, named here (rather than importing package kernel, which
// would create an import cycle) the same way the trap package's
// dispatch table calls them from a real syscall.
type Syscalls interface {
	PutChar(ch byte)
	GetChar() int
	PutString(s string)
	GetString(n int) []byte
	PutInt(n int)
	GetInt() (int, bool)
	UserThreadCreate(body Func) int
	UserThreadExit()
	UserThreadJoin(slot int) int
	Exit()
	Halt()
	ForkExec(name string) int
}

// Table is the in-memory registry of named programs, looked up by
// ForkExec when a name is not found in the disk filesystem.
type Table struct {
	progs map[string]Func
}

// NewTable returns an empty program registry.
func NewTable() *Table {
	return &Table{progs: make(map[string]Func)}
}

// Register adds name to the table, to be run in place of a disk
// executable whenever ForkExec is asked for it.
func (t *Table) Register(name string, f Func) {
	t.progs[name] = f
}

// Lookup returns the Func registered under name, if any.
func (t *Table) Lookup(name string) (Func, bool) {
	f, ok := t.progs[name]
	return f, ok
}
