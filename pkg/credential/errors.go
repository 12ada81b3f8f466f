package credential

import (
	"errors"
	"fmt"
)

// Reason classifies why credentials could not be resolved.
type Reason int

const (
	ReasonNotFound Reason = iota + 1
	ReasonBadPassphrase
	ReasonMalformed
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "NOT_FOUND"
	case ReasonBadPassphrase:
		return "BAD_PASSPHRASE"
	case ReasonMalformed:
		return "MALFORMED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(r))
	}
}

var (
	ErrAmbiguousSource = errors.New("both a key store and a key/cert file pair are configured")
	ErrNoKeyMaterial   = errors.New("no key store or key/cert file pair configured")
	ErrNoTrustMaterial = errors.New("trust store is required by the client auth policy")
	ErrNoPrivateKey    = errors.New("store holds no private key entry")
	ErrNoCertificates  = errors.New("source holds no certificates")
	ErrKeyMismatch     = errors.New("private key does not match certificate")
	ErrUnsupportedType = errors.New("unsupported store type")
)

// Error is returned by Store.Resolve.
type Error struct {
	Reason Reason
	Path   string
	Err    error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("credential %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("credential %s: %s: %v", e.Reason, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the Reason carried by err, or 0 when err is not an *Error.
func ReasonOf(err error) Reason {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return 0
}

func notFound(path string, err error) *Error {
	return &Error{Reason: ReasonNotFound, Path: path, Err: err}
}

func badPassphrase(path string, err error) *Error {
	return &Error{Reason: ReasonBadPassphrase, Path: path, Err: err}
}

func malformed(path string, err error) *Error {
	return &Error{Reason: ReasonMalformed, Path: path, Err: err}
}
