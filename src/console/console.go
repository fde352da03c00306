// Package console implements the simulated character console user
// programs read and write through PutChar/GetChar and friends.
// Grounded directly on the original SynchConsole (synchconsole.cc):
// a raw, asynchronously-completing console wrapped in a mutex plus two
// semaphores (readAvail, writeDone) that the raw device signals on
// completion. The raw device's asynchronous completion is implemented
// with the same goroutine-plus-channel idiom as the disk package
// (itself grounded on fs.Bdev_req_t's AckCh), rather than the
// original's interrupt callback, since this kernel has no interrupt
// layer to callback into.
package console

import (
	"bufio"
	"io"

	"simkernel/src/circbuf"
	"simkernel/src/defs"
	"simkernel/src/sched"
)

// RawConsole is the asynchronously-completing device: putChar/getChar
// return immediately and V the semaphore the caller passes in once the
// byte has actually been written or read.
type RawConsole struct {
	in  *bufio.Reader
	out io.Writer
	eof bool

	pending *circbuf.Circbuf_t
}

// NewRawConsole wraps r and w as the console's input and output.
func NewRawConsole(r io.Reader, w io.Writer) *RawConsole {
	return &RawConsole{in: bufio.NewReader(r), out: w, pending: circbuf.MkCircbuf(1)}
}

// putChar writes one byte asynchronously, signalling writeDone when
// the byte is out — the role the original's WriteDone interrupt
// callback plays.
func (c *RawConsole) putChar(ch byte, writeDone *sched.Semaphore) {
	go func() {
		c.out.Write([]byte{ch})
		writeDone.V()
	}()
}

// getChar reads one byte (or notes EOF) asynchronously, signalling
// readAvail once it is ready — the original's ReadAvail callback.
func (c *RawConsole) getChar(readAvail *sched.Semaphore) {
	go func() {
		b, err := c.in.ReadByte()
		if err != nil {
			c.eof = true
		} else {
			c.pending.WriteByte(b)
		}
		readAvail.V()
	}()
}

// SynchConsole serializes console access the way SynchConsole does:
// one mutex-protected byte at a time, with readAvail/writeDone
// semaphores pairing each request to its completion.
type SynchConsole struct {
	raw       *RawConsole
	mutex     *sched.Semaphore
	readAvail *sched.Semaphore
	writeDone *sched.Semaphore
}

// NewSynchConsole wraps raw for synchronous use by kernel threads.
func NewSynchConsole(raw *RawConsole) *SynchConsole {
	return &SynchConsole{
		raw:       raw,
		mutex:     sched.MkSemaphore(1),
		readAvail: sched.MkSemaphore(0),
		writeDone: sched.MkSemaphore(0),
	}
}

// PutChar writes a single character, blocking until it is out.
func (c *SynchConsole) PutChar(ch byte) {
	c.mutex.P()
	c.raw.putChar(ch, c.writeDone)
	c.writeDone.P()
	c.mutex.V()
}

// GetChar reads a single character, blocking until one is available,
// or returns defs.EOF once the input is exhausted.
func (c *SynchConsole) GetChar() int {
	c.raw.getChar(c.readAvail)
	c.readAvail.P()
	if c.raw.eof {
		return defs.EOF
	}
	return int(c.raw.pending.ReadByte())
}

// PutString writes s one character at a time.
func (c *SynchConsole) PutString(s string) {
	for i := 0; i < len(s); i++ {
		c.PutChar(s[i])
	}
}

// GetString reads up to n-1 characters, stopping at a newline or EOF,
// and returns the bytes read (without a trailing NUL — callers copy it
// into simulated user memory and terminate it there).
func (c *SynchConsole) GetString(n int) []byte {
	c.mutex.P()
	defer c.mutex.V()
	buf := make([]byte, 0, n-1)
	for len(buf) < n-1 {
		ch := c.GetChar()
		if ch == defs.EOF {
			break
		}
		buf = append(buf, byte(ch))
		if ch == '\n' {
			break
		}
	}
	return buf
}

// PutInt formats n in base 10 and writes it via PutString.
func (c *SynchConsole) PutInt(n int) {
	c.PutString(itoa(n))
}

// GetInt reads a line and parses it as a decimal integer, returning
// ok=false if the line does not parse (the original's ASSERT on a
// failed sscanf becomes a reported failure here instead: callers decide
// whether a malformed line is a fatal assertion or a recoverable input
// error).
func (c *SynchConsole) GetInt() (int, bool) {
	line := c.GetString(defs.MaxStrSize)
	return atoi(line)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func atoi(buf []byte) (int, bool) {
	i := 0
	neg := false
	if i < len(buf) && (buf[i] == '-' || buf[i] == '+') {
		neg = buf[i] == '-'
		i++
	}
	if i >= len(buf) {
		return 0, false
	}
	n := 0
	for ; i < len(buf); i++ {
		if buf[i] == '\n' {
			break
		}
		if buf[i] < '0' || buf[i] > '9' {
			return 0, false
		}
		n = n*10 + int(buf[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
