package plumbing

import (
	"errors"
	"fmt"

	"github.com/vcsforge/gitcore/githash"
)

// ErrStop lets a ForEach callback end iteration early without that being
// treated as a failure.
var ErrStop = errors.New("plumbing: stop iteration")

// Sentinel errors for the "Format" class. Each is non-retriable and is
// meant to be wrapped with fmt.Errorf("%w: ...", ErrX) for context.
var (
	ErrInvalidHeader     = errors.New("plumbing: invalid object header")
	ErrSizeMismatch      = errors.New("plumbing: declared size does not match payload")
	ErrInvalidHex        = githash.ErrInvalidHex
	ErrInvalidMode       = errors.New("plumbing: invalid file mode")
	ErrInvalidObjectType = errors.New("plumbing: invalid object type")
	ErrInvalidRefName    = errors.New("plumbing: invalid reference name")
	ErrInvalidIdentity   = errors.New("plumbing: invalid identity")
	ErrInvalidRefspec    = errors.New("plumbing: invalid refspec")
)

// Sentinel errors for the "Integrity" class.
var (
	ErrChecksumMismatch  = errors.New("plumbing: checksum mismatch")
	ErrCorruptObject     = errors.New("plumbing: corrupt object")
	ErrCorruptPack       = errors.New("plumbing: corrupt pack")
	ErrCorruptIndex      = errors.New("plumbing: corrupt pack index")
	ErrDeltaChainCycle   = errors.New("plumbing: delta chain cycle")
	ErrDeltaChainTooDeep = errors.New("plumbing: delta chain exceeds max depth")
)

// Sentinel errors for the "Not-found" class.
var (
	ErrObjectNotFound   = errors.New("plumbing: object not found")
	ErrRefNotFound      = errors.New("plumbing: reference not found")
	ErrMergeNotInProgress = errors.New("plumbing: no merge in progress")
)

// Sentinel errors for the "Conflict/State" class.
var (
	ErrRefAlreadyExists       = errors.New("plumbing: reference already exists")
	ErrStalePrior             = errors.New("plumbing: expected prior value is stale")
	ErrConflictUnresolved     = errors.New("plumbing: unresolved merge conflicts remain")
	ErrFastForwardImpossible  = errors.New("plumbing: fast-forward not possible")
	ErrCircularRef            = errors.New("plumbing: circular reference")
	ErrMaxDepthExceeded       = errors.New("plumbing: reference resolution exceeded max depth")
)

// Sentinel errors for the "Locking" class.
var (
	ErrLockTimeout = errors.New("plumbing: lock acquisition timed out")
	ErrStaleLock   = errors.New("plumbing: lock is stale")
)

// Sentinel errors for the "Wire" class.
var (
	ErrPktLine       = errors.New("plumbing: malformed pkt-line")
	ErrCapability    = errors.New("plumbing: capability negotiation failed")
	ErrNegotiation   = errors.New("plumbing: protocol negotiation failed")
	ErrLimitExceeded = errors.New("plumbing: protocol limit exceeded")
	ErrUnauthorized  = errors.New("plumbing: unauthorized")
	ErrForbidden     = errors.New("plumbing: forbidden")
)

// Sentinel errors for the "I/O" class.
var (
	ErrIOFailed   = errors.New("plumbing: i/o failed")
	ErrCancelled  = errors.New("plumbing: operation cancelled")
)

// NotFoundError reports that the object oid does not exist in the store
// consulted. It wraps ErrObjectNotFound so callers can use errors.Is.
type NotFoundError struct {
	OID githash.OID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plumbing: object not found: %s", e.OID)
}

func (e *NotFoundError) Unwrap() error { return ErrObjectNotFound }

// NewNotFoundError builds a NotFoundError for oid.
func NewNotFoundError(oid githash.OID) error {
	return &NotFoundError{OID: oid}
}

// IsNotFound reports whether err (or something it wraps) is ErrObjectNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsForbidden reports whether err (or something it wraps) is ErrForbidden,
// distinguishing a scope/permission failure from a plain ErrUnauthorized
// (missing or invalid credentials) for callers picking an HTTP status code.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// StalePriorError carries the ref's actual current value so the caller can
// retry a compare-and-swap update that was refused because the expected
// prior value was stale.
type StalePriorError struct {
	Ref     ReferenceName
	Wanted  githash.OID
	Current githash.OID
}

func (e *StalePriorError) Error() string {
	return fmt.Sprintf("plumbing: ref %q: expected prior %s, found %s", e.Ref, e.Wanted, e.Current)
}

func (e *StalePriorError) Unwrap() error { return ErrStalePrior }

// FastForwardImpossibleError carries the ref's current id for the same reason.
type FastForwardImpossibleError struct {
	Ref     ReferenceName
	Current githash.OID
}

func (e *FastForwardImpossibleError) Error() string {
	return fmt.Sprintf("plumbing: ref %q: cannot fast-forward from %s", e.Ref, e.Current)
}

func (e *FastForwardImpossibleError) Unwrap() error { return ErrFastForwardImpossible }

// CorruptPackError carries a byte offset for diagnostics.
type CorruptPackError struct {
	Offset int64
	Reason string
}

func (e *CorruptPackError) Error() string {
	return fmt.Sprintf("plumbing: corrupt pack at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptPackError) Unwrap() error { return ErrCorruptPack }
