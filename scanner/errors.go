package scanner

import (
	"errors"
	"fmt"

	"bcscan.dev/scanner/store"
)

// Kind classifies a Scanner failure. Callers should switch on Kind rather
// than match error strings.
type Kind string

const (
	StoreLocked        Kind = "STORE_LOCKED"
	StoreUnavailable   Kind = "STORE_UNAVAILABLE"
	MissingKey         Kind = "MISSING_KEY"
	UnsupportedVersion Kind = "UNSUPPORTED_VERSION"
	Corrupt            Kind = "CORRUPT"
	MissingData        Kind = "MISSING_DATA"
	Io                 Kind = "IO"
)

// Error carries a Kind plus the context the failing call had at hand:
// Path names the store directory or flat file (whose name carries the
// file index), and Key the store key involved. No offset is recorded,
// and the File field is not set by this package.
type Error struct {
	Kind  Kind
	Msg   string
	Path  string
	Key   []byte
	File  uint32
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("scanner: %s: %s", e.Kind, e.Msg)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Key != nil {
		msg += fmt.Sprintf(" (key=%x)", e.Key)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, path string, key []byte, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Path: path, Key: key, Cause: cause}
}

// wrapStoreErr maps a *store.Error onto the scanner's own error taxonomy,
// preserving path/key context.
func wrapStoreErr(err error) error {
	var serr *store.Error
	if errors.As(err, &serr) {
		var k Kind
		switch serr.Kind {
		case store.StoreLocked:
			k = StoreLocked
		case store.MissingKey:
			k = MissingKey
		default:
			k = StoreUnavailable
		}
		return &Error{Kind: k, Msg: serr.Msg, Path: serr.Path, Key: serr.Key, Cause: serr.Cause}
	}
	return newErr(StoreUnavailable, "", nil, "store error", err)
}

func wrapIoErr(path string, err error) error {
	return newErr(Io, path, nil, "flat file io", err)
}
