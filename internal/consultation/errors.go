package consultation

import (
	"errors"

	"github.com/samber/oops"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrSessionNotFound  = errors.New("session not found")
	ErrForbidden        = errors.New("session belongs to another user")
	ErrReportNotReady   = errors.New("analysis not complete")
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrCorruptState     = errors.New("corrupt conversation state")
	ErrExtraction       = errors.New("extraction failed")
)

// storeError classifies a repository failure. Not-found passes through as is,
// anything else is reported as ErrStoreUnavailable.
func storeError(err error, op string) error {
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return oops.
		In("session-store").
		With("op", op).
		Wrapf(errors.Join(ErrStoreUnavailable, err), "%s failed", op)
}

func invalidInput(err error) error {
	return oops.In("consultation").Wrapf(errors.Join(ErrInvalidInput, err), "invalid turn request")
}
