package file

// OpenFlags control how `Open` resolves a name and which directions the
// returned file allows.
type OpenFlags uint32

const (
	O_RDONLY OpenFlags = 0
	O_WRONLY OpenFlags = 1 << 0
	O_RDWR   OpenFlags = 1 << 1
	O_CREATE OpenFlags = 1 << 9
	O_TRUNC  OpenFlags = 1 << 10
)

// ReadWrite reports whether a file opened with `flags` may be read and
// written. No access bits means read-only; `O_WRONLY` wins over `O_RDWR`.
func (flags OpenFlags) ReadWrite() (readable, writable bool) {
	switch {
	case flags&(O_WRONLY|O_RDWR) == 0:
		return true, false
	case flags&O_WRONLY != 0:
		return false, true
	default:
		return true, true
	}
}

func (flags OpenFlags) Has(flag OpenFlags) bool { return flags&flag == flag }
