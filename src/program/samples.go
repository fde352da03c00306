package program

import "fmt"

// MakeThreads ports the original test/makethreads.c: it creates twelve
// threads, each printing its own parameter, and never joins them. On
// this kernel UserThreadCreate runs each thread to completion and frees
// its stack slot before returning, so the single user-thread slot is
// reused and all twelve creations succeed; the error message for a
// failed creation is not reached.
func MakeThreads(env Env) {
	for i := 1; i <= 12; i++ {
		i := i
		tid := env.Sys.UserThreadCreate(func(env Env) {
			env.Sys.PutString("Thread with param: ")
			env.Sys.PutInt(i)
			env.Sys.PutChar('\n')
		})
		if tid < 0 {
			env.Sys.PutString(fmt.Sprintf("Error creating new thread for param %d!\n", i))
		}
	}
}

// UserPages0 ports test/userpages0.c: three threads each print a
// distinct name, and the parent joins each one before moving on to the
// next — exercising UserThreadJoin's rendezvous with a thread that has
// already exited by the time Join is called, which, on this kernel's
// single-baton scheduler, is every thread UserThreadCreate hands back
// (it runs the new thread to completion before returning). This
// kernel's tiny per-process stack budget (one thread beyond the
// process's own) means the three threads necessarily reuse the same
// stack slot one after another rather than existing side by side, so
// each is joined before the next is created rather than batched at the
// end the way the original's three always-concurrent threads were.
func UserPages0(env Env) {
	for _, name := range []string{"SHIVA", "KAJAL", "VARSHA"} {
		name := name
		tid := env.Sys.UserThreadCreate(func(env Env) {
			env.Sys.PutString(name)
		})
		if tid < 0 {
			env.Sys.PutString("Error creating new thread !\n")
			continue
		}
		env.Sys.UserThreadJoin(tid)
	}
}

// UserPages2 ports test/userpages2.c: a single child thread prints a
// line, and the parent reads a line of input and
// echoes it back after joining — exercising the console's GetString
// path alongside thread join.
func UserPages2(env Env) {
	tid := env.Sys.UserThreadCreate(func(env Env) {
		env.Sys.PutString("child running\n")
	})
	if tid >= 0 {
		env.Sys.UserThreadJoin(tid)
	}
	line := env.Sys.GetString(256)
	env.Sys.PutString("echo: ")
	env.Sys.PutString(string(line))
}
