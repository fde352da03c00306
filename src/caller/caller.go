// Package caller implements the kernel's fatal-assertion helper: the Go
// analogue of Nachos's ASSERT(), which prints a diagnostic and aborts
// rather than unwinding (spec.md §7 classifies invariant violations —
// releasing an unmarked frame, a bad NOFF magic — as fatal assertions,
// not recoverable errors).
//
// Adapted from the teacher's Callerdump (biscuit/src/caller), trimmed
// to the single "print the call chain, then die" use this kernel has;
// biscuit's Distinct_caller_t (deduplicating repeated warnings from hot
// paths) has no caller in this kernel's small, cooperative-threaded
// world and is dropped — see DESIGN.md.
package caller

import (
	"fmt"
	"runtime"
)

// stack renders the call chain starting start frames up from its own
// caller, one line per frame, innermost first.
func stack(start int) string {
	s := ""
	for i := start; ; i++ {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	return s
}

// Assert panics with msg and the caller's stack if cond is false. Use it
// for invariants that indicate a bug in the kernel itself, never for
// conditions a caller can legitimately trigger (those return defs.Err_t
// instead).
func Assert(cond bool, msg string) {
	if cond {
		return
	}
	fmt.Printf("ASSERTION FAILED: %s\n%s", msg, stack(2))
	panic(msg)
}
