package ports

// ReadStatus is the outcome of a Disk.ReadFile call.
type ReadStatus int

const (
	ReadOkay ReadStatus = iota
	ReadNotFound
	ReadOtherError
)

// RemoveStatus is the outcome of a Disk.RemoveFile call.
type RemoveStatus int

const (
	RemoveOkay RemoveStatus = iota
	RemoveMissing
	RemoveError
)

// Disk abstracts every filesystem operation the dirty scanner, builder and
// build log touch, so both can be driven against a real OS filesystem and
// against an in-memory fake in tests.
type Disk interface {
	// Stat returns a file's modification time as a Unix timestamp: 0 if the
	// path does not exist, -1 on any other stat error.
	Stat(path string) (mtime int64, err error)
	ReadFile(path string) ([]byte, ReadStatus, error)
	WriteFile(path string, data []byte) error
	MakeDir(path string) error
	// MakeDirs creates every missing parent directory of path.
	MakeDirs(path string) error
	RemoveFile(path string) RemoveStatus
}
