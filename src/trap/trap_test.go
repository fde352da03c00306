package trap

import (
	"testing"

	"simkernel/src/defs"
	"simkernel/src/machine"
	"simkernel/src/program"
)

type fakeSys struct {
	putChars    []byte
	getCharRet  int
	putStrings  []string
	getStringRet []byte
	putInts     []int
	getIntRet   int
	getIntOk    bool

	createdBody   program.Func
	createRet     int
	exitedCount   int
	exitCalls     int
	haltCalls     int
	joinedSlots   []int
	joinRet       int
	forkExecNames []string
	forkExecRet   int
}

func (f *fakeSys) PutChar(ch byte)        { f.putChars = append(f.putChars, ch) }
func (f *fakeSys) GetChar() int           { return f.getCharRet }
func (f *fakeSys) PutString(s string)     { f.putStrings = append(f.putStrings, s) }
func (f *fakeSys) GetString(n int) []byte { return f.getStringRet }
func (f *fakeSys) PutInt(n int)           { f.putInts = append(f.putInts, n) }
func (f *fakeSys) GetInt() (int, bool)    { return f.getIntRet, f.getIntOk }
func (f *fakeSys) UserThreadCreate(body program.Func) int {
	f.createdBody = body
	return f.createRet
}
func (f *fakeSys) UserThreadExit() { f.exitedCount++ }
func (f *fakeSys) UserThreadJoin(slot int) int {
	f.joinedSlots = append(f.joinedSlots, slot)
	return f.joinRet
}
func (f *fakeSys) Exit() { f.exitCalls++ }
func (f *fakeSys) Halt() { f.haltCalls++ }
func (f *fakeSys) ForkExec(name string) int {
	f.forkExecNames = append(f.forkExecNames, name)
	return f.forkExecRet
}

func newTestMachine() *machine.Machine {
	m := machine.New(4, defs.PageSize)
	m.PageTable = []machine.PageTableEntry{
		{VirtualPage: 0, PhysicalPage: 0, Valid: true},
	}
	m.WriteRegister(defs.PCReg, 0)
	m.WriteRegister(defs.NextPC, 4)
	return m
}

func writeCString(m *machine.Machine, vaddr int, s string) {
	for i, b := range []byte(s) {
		m.WriteMem(vaddr+i, 1, int32(b), defs.PageSize)
	}
	m.WriteMem(vaddr+len(s), 1, 0, defs.PageSize)
}

func TestExceptionHandlerAdvancesPC(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_Exit)
	sys := &fakeSys{}

	ExceptionHandler(sys, m)

	if m.ReadRegister(defs.PrevPC) != 0 {
		t.Fatalf("PrevPC = %d, want 0", m.ReadRegister(defs.PrevPC))
	}
	if m.ReadRegister(defs.PCReg) != 4 {
		t.Fatalf("PCReg = %d, want 4", m.ReadRegister(defs.PCReg))
	}
	if m.ReadRegister(defs.NextPC) != 8 {
		t.Fatalf("NextPC = %d, want 8", m.ReadRegister(defs.NextPC))
	}
}

func TestExceptionHandlerExitCallsExit(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_Exit)
	sys := &fakeSys{}

	ExceptionHandler(sys, m)

	if sys.exitCalls != 1 {
		t.Fatalf("Exit called %d times, want 1", sys.exitCalls)
	}
	if sys.haltCalls != 0 {
		t.Fatalf("SC_Exit called Halt %d times, want 0", sys.haltCalls)
	}
}

func TestExceptionHandlerHaltCallsHalt(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_Halt)
	sys := &fakeSys{}

	ExceptionHandler(sys, m)

	if sys.haltCalls != 1 {
		t.Fatalf("Halt called %d times, want 1", sys.haltCalls)
	}
	if sys.exitCalls != 0 {
		t.Fatalf("SC_Halt called Exit %d times, want 0", sys.exitCalls)
	}
}

func TestExceptionHandlerUserThreadExit(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_UserThreadExit)
	sys := &fakeSys{}

	ExceptionHandler(sys, m)

	if sys.exitedCount != 1 {
		t.Fatalf("UserThreadExit called %d times, want 1", sys.exitedCount)
	}
}

func TestExceptionHandlerPutChar(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_PutChar)
	m.WriteRegister(defs.Arg1Reg, 'Q')
	sys := &fakeSys{}

	ExceptionHandler(sys, m)

	if len(sys.putChars) != 1 || sys.putChars[0] != 'Q' {
		t.Fatalf("putChars = %v, want ['Q']", sys.putChars)
	}
}

func TestExceptionHandlerGetChar(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_GetChar)
	sys := &fakeSys{getCharRet: 'z'}

	ExceptionHandler(sys, m)

	if got := m.ReadRegister(defs.RetReg); got != 'z' {
		t.Fatalf("RetReg after SC_GetChar = %d, want 'z'", got)
	}
}

func TestExceptionHandlerPutString(t *testing.T) {
	m := newTestMachine()
	writeCString(m, 16, "hello")
	m.WriteRegister(defs.RetReg, defs.SC_PutString)
	m.WriteRegister(defs.Arg1Reg, 16)
	sys := &fakeSys{}

	ExceptionHandler(sys, m)

	if len(sys.putStrings) != 1 || sys.putStrings[0] != "hello" {
		t.Fatalf("putStrings = %v, want [hello]", sys.putStrings)
	}
}

func TestExceptionHandlerGetString(t *testing.T) {
	m := newTestMachine()
	sys := &fakeSys{getStringRet: []byte("reply")}
	m.WriteRegister(defs.RetReg, defs.SC_GetString)
	m.WriteRegister(defs.Arg1Reg, 32)
	m.WriteRegister(defs.Arg2Reg, 16)

	ExceptionHandler(sys, m)

	got := copyStringFromMachine(m, 32, 16)
	if string(got) != "reply" {
		t.Fatalf("memory after SC_GetString = %q, want %q", got, "reply")
	}
}

func TestExceptionHandlerPutInt(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_PutInt)
	m.WriteRegister(defs.Arg1Reg, -7)
	sys := &fakeSys{}

	ExceptionHandler(sys, m)

	if len(sys.putInts) != 1 || sys.putInts[0] != -7 {
		t.Fatalf("putInts = %v, want [-7]", sys.putInts)
	}
}

func TestExceptionHandlerGetInt(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_GetInt)
	sys := &fakeSys{getIntRet: 99, getIntOk: true}

	ExceptionHandler(sys, m)

	if got := m.ReadRegister(defs.RetReg); got != 99 {
		t.Fatalf("RetReg after SC_GetInt = %d, want 99", got)
	}
}

func TestExceptionHandlerGetIntFailureSubstitutesZero(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_GetInt)
	sys := &fakeSys{getIntRet: 123, getIntOk: false}

	ExceptionHandler(sys, m)

	if got := m.ReadRegister(defs.RetReg); got != 0 {
		t.Fatalf("RetReg after a failed SC_GetInt = %d, want 0", got)
	}
}

func TestExceptionHandlerUserThreadCreate(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_UserThreadCreate)
	m.WriteRegister(defs.Arg1Reg, 0)
	sys := &fakeSys{createRet: 2}

	ExceptionHandler(sys, m)

	if sys.createdBody == nil {
		t.Fatal("UserThreadCreate was not called")
	}
	if got := m.ReadRegister(defs.RetReg); got != 2 {
		t.Fatalf("RetReg after SC_UserThreadCreate = %d, want 2", got)
	}
}

func TestExceptionHandlerUserThreadJoin(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_UserThreadJoin)
	m.WriteRegister(defs.Arg1Reg, 3)
	sys := &fakeSys{joinRet: 0}

	ExceptionHandler(sys, m)

	if len(sys.joinedSlots) != 1 || sys.joinedSlots[0] != 3 {
		t.Fatalf("joinedSlots = %v, want [3]", sys.joinedSlots)
	}
	if got := m.ReadRegister(defs.RetReg); got != 0 {
		t.Fatalf("RetReg after SC_UserThreadJoin = %d, want 0", got)
	}
}

func TestExceptionHandlerUserThreadJoinWritesFailure(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.RetReg, defs.SC_UserThreadJoin)
	m.WriteRegister(defs.Arg1Reg, 3)
	sys := &fakeSys{joinRet: int(defs.EINVAL)}

	ExceptionHandler(sys, m)

	if got := m.ReadRegister(defs.RetReg); got != int32(defs.EINVAL) {
		t.Fatalf("RetReg after a failed SC_UserThreadJoin = %d, want %d", got, defs.EINVAL)
	}
}

func TestExceptionHandlerForkExec(t *testing.T) {
	m := newTestMachine()
	writeCString(m, 8, "prog")
	m.WriteRegister(defs.RetReg, defs.SC_ForkExec)
	m.WriteRegister(defs.Arg1Reg, 8)
	sys := &fakeSys{forkExecRet: 5}

	ExceptionHandler(sys, m)

	if len(sys.forkExecNames) != 1 || sys.forkExecNames[0] != "prog" {
		t.Fatalf("forkExecNames = %v, want [prog]", sys.forkExecNames)
	}
	if got := m.ReadRegister(defs.RetReg); got != 5 {
		t.Fatalf("RetReg after SC_ForkExec = %d, want 5", got)
	}
}

func TestUpdatePCIndependently(t *testing.T) {
	m := newTestMachine()
	m.WriteRegister(defs.PCReg, 100)
	m.WriteRegister(defs.NextPC, 104)

	UpdatePC(m)

	if m.ReadRegister(defs.PrevPC) != 100 {
		t.Fatalf("PrevPC = %d, want 100", m.ReadRegister(defs.PrevPC))
	}
	if m.ReadRegister(defs.PCReg) != 104 {
		t.Fatalf("PCReg = %d, want 104", m.ReadRegister(defs.PCReg))
	}
	if m.ReadRegister(defs.NextPC) != 108 {
		t.Fatalf("NextPC = %d, want 108", m.ReadRegister(defs.NextPC))
	}
}
