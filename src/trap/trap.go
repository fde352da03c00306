// Package trap implements the syscall trap boundary: ExceptionHandler
// decodes the syscall number and arguments out of the Machine's
// registers the way a real MIPS trap would, dispatches to the kernel
// service it names, and writes any result back to RetReg before
// advancing the program counter. Grounded directly on the original
// userprog/exception.cc's ExceptionHandler/UpdatePC/
// copyStringFromMachine/copyStringToMachine, generalized from a single
// hard-coded currentThread/machine pair to an explicit *kernel.System
// and *machine.Machine passed in by the caller (see §9's note on
// replacing process-global singletons).
package trap

import (
	"simkernel/src/defs"
	"simkernel/src/machine"
	"simkernel/src/program"
)

// Syscalls is the kernel surface ExceptionHandler dispatches to.
// kernel.System satisfies it.
type Syscalls interface {
	program.Syscalls
}

// ExceptionHandler reads the syscall number from RetReg and its
// arguments from Arg1Reg..Arg4Reg, performs the requested kernel
// operation against sys and m, and always advances the program counter
// before returning — mirroring the original's unconditional
// UpdatePC() call at the end of every exception, even Halt/Exit, which
// never actually resume.
func ExceptionHandler(sys Syscalls, m *machine.Machine) {
	sc := int(m.ReadRegister(defs.RetReg))

	switch sc {
	case defs.SC_Halt:
		sys.Halt()

	case defs.SC_Exit:
		sys.Exit()

	case defs.SC_PutChar:
		sys.PutChar(byte(m.ReadRegister(defs.Arg1Reg)))

	case defs.SC_GetChar:
		m.WriteRegister(defs.RetReg, int32(sys.GetChar()))

	case defs.SC_PutString:
		from := int(m.ReadRegister(defs.Arg1Reg))
		buf := copyStringFromMachine(m, from, defs.MaxStrSize)
		sys.PutString(string(buf))

	case defs.SC_GetString:
		from := int(m.ReadRegister(defs.Arg1Reg))
		size := int(m.ReadRegister(defs.Arg2Reg))
		buf := sys.GetString(size)
		copyStringToMachine(m, buf, from)
		m.WriteMem(from+len(buf), 1, 0, defs.PageSize)

	case defs.SC_PutInt:
		sys.PutInt(int(m.ReadRegister(defs.Arg1Reg)))

	case defs.SC_GetInt:
		n, ok := sys.GetInt()
		if !ok {
			n = 0
		}
		m.WriteRegister(defs.RetReg, int32(n))

	case defs.SC_UserThreadCreate:
		f := int(m.ReadRegister(defs.Arg1Reg))
		res := sys.UserThreadCreate(registeredFuncAt(f))
		m.WriteRegister(defs.RetReg, int32(res))

	case defs.SC_UserThreadExit:
		sys.UserThreadExit()

	case defs.SC_UserThreadJoin:
		tid := int(m.ReadRegister(defs.Arg1Reg))
		res := sys.UserThreadJoin(tid)
		m.WriteRegister(defs.RetReg, int32(res))

	case defs.SC_ForkExec:
		from := int(m.ReadRegister(defs.Arg1Reg))
		name := copyStringFromMachine(m, from, defs.MaxStrSize)
		res := sys.ForkExec(string(name))
		m.WriteRegister(defs.RetReg, int32(res))
	}

	UpdatePC(m)
}

// registeredFuncAt is a placeholder translating a syscall argument that
// would, on real hardware, be a code pointer into a registered
// program.Func. Decoding MIPS function pointers is out of scope; tests
// exercising UserThreadCreate call kernel.System.UserThreadCreate
// directly with a Func rather than through this trap.
func registeredFuncAt(addr int) program.Func {
	return func(program.Env) {}
}

// UpdatePC advances the program counter past the instruction that
// trapped: PrevPC gets the old PC, PC gets NextPC, and NextPC moves on
// by one instruction word. Mirrors the original's UpdatePC exactly.
func UpdatePC(m *machine.Machine) {
	pc := m.ReadRegister(defs.PCReg)
	m.WriteRegister(defs.PrevPC, pc)
	pc = m.ReadRegister(defs.NextPC)
	m.WriteRegister(defs.PCReg, pc)
	m.WriteRegister(defs.NextPC, pc+4)
}

// copyStringFromMachine reads up to size bytes of a NUL-terminated
// string starting at virtual address from, stopping early at the
// first NUL.
func copyStringFromMachine(m *machine.Machine, from, size int) []byte {
	buf := make([]byte, 0, size)
	for i := 0; i < size; i++ {
		v, ok := m.ReadMem(from+i, 1, defs.PageSize)
		if !ok || v == 0 {
			break
		}
		buf = append(buf, byte(v))
	}
	return buf
}

// copyStringToMachine writes buf's bytes starting at virtual address
// to, one byte at a time, mirroring the original's byte-at-a-time
// WriteMem loop.
func copyStringToMachine(m *machine.Machine, buf []byte, to int) {
	for i, b := range buf {
		m.WriteMem(to+i, 1, int32(b), defs.PageSize)
	}
}
