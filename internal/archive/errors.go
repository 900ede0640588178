package archive

import "fmt"

// ErrorKind classifies a mod-level archive failure.
type ErrorKind int

const (
	PathTooLong ErrorKind = iota + 1
	ExtractFailed
	PackFailed
	ArchiveExists
	TooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case PathTooLong:
		return "path too long"
	case ExtractFailed:
		return "extraction failed"
	case PackFailed:
		return "packing failed"
	case ArchiveExists:
		return "archive already exists"
	case TooLarge:
		return "archive too large"
	default:
		return "unknown"
	}
}

// ModError is returned by archive operations that abort the archive step of
// one mod. The mod loop logs it and moves on to the next mod.
type ModError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ModError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ModError) Unwrap() error {
	return e.Err
}
