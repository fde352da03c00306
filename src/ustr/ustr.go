// Package ustr implements the byte-slice path/name type shared by the
// directory and filesystem-path-traversal code. Adapted from the
// teacher's ustr package: kept verbatim where the operation is generic
// (Eq, IsAbsolute), extended with Truncate and Components, which this
// spec's fixed-length directory entries and single-pass path walk
// (see fs.FileSystem.ChangeDirectory) need and the teacher's callers
// never did.
package ustr

// Ustr is an immutable path or file name, stored as raw bytes so it can
// be compared and truncated without encoding assumptions.
type Ustr []uint8

// Isdot reports whether the string is ".".
func (us Ustr) Isdot() bool {
	return len(us) == 1 && us[0] == '.'
}

// Isdotdot reports whether the string is "..".
func (us Ustr) Isdotdot() bool {
	return len(us) == 2 && us[0] == '.' && us[1] == '.'
}

// Eq compares two Ustr values byte for byte.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// MkUstrRoot returns a Ustr for the root directory, "/".
func MkUstrRoot() Ustr {
	return Ustr("/")
}

// DotDot is a reusable Ustr containing "..".
var DotDot = Ustr{'.', '.'}

// Dot is a reusable Ustr containing ".".
var Dot = Ustr{'.'}

// MkUstrSlice converts a NUL-terminated byte slice (as copied in from
// simulated user memory) to a Ustr truncated at the first NUL.
func MkUstrSlice(buf []uint8) Ustr {
	for i := 0; i < len(buf); i++ {
		if buf[i] == 0 {
			return buf[:i]
		}
	}
	return buf
}

// Truncate clips the name to at most n bytes, the directory's on-disk
// name-field width.
func (us Ustr) Truncate(n int) Ustr {
	if len(us) <= n {
		return us
	}
	return us[:n]
}

// IsAbsolute reports whether the path begins with '/'.
func (us Ustr) IsAbsolute() bool {
	return len(us) > 0 && us[0] == '/'
}

// String converts the Ustr to a Go string, for printing and map keys.
func (us Ustr) String() string {
	return string(us)
}

// Components splits a path into its '/'-separated parts, dropping empty
// components (so "/a//b/" and "a/b" both yield ["a","b"]). This backs
// the single-pass traversal spec.md §9 calls for in place of the
// original source's double-tokenizing ChangeDirectory/Directory_path.
func (us Ustr) Components() []Ustr {
	var parts []Ustr
	start := -1
	for i, b := range us {
		if b == '/' {
			if start >= 0 {
				parts = append(parts, us[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		parts = append(parts, us[start:])
	}
	return parts
}
