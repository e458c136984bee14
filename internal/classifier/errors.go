package classifier

import (
	"errors"
	"fmt"
)

// Kind discriminates classifier failures so callers can map them to
// HTTP statuses or retry decisions.
type Kind int

const (
	KindUploadFailed Kind = iota + 1
	KindMalformedResponse
	KindInvalidCategory
	KindInvalidSeverity
	KindQuotaExceeded
)

// Error is a classifier failure with enough context for the interactive
// path to surface and for operators to diagnose.
type Error struct {
	Kind       Kind
	Detail     string
	Raw        string  // raw model text, set for malformed responses
	RetryAfter float64 // seconds, set for quota errors
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUploadFailed:
		return fmt.Sprintf("upload failed: %s", e.Detail)
	case KindMalformedResponse:
		return fmt.Sprintf("malformed model response: %s", e.Detail)
	case KindInvalidCategory:
		return fmt.Sprintf("invalid category: %s", e.Detail)
	case KindInvalidSeverity:
		return fmt.Sprintf("invalid severity: %s", e.Detail)
	case KindQuotaExceeded:
		return fmt.Sprintf("API quota exceeded, retry after %.1fs", e.RetryAfter)
	default:
		return e.Detail
	}
}

// IsKind reports whether err is a classifier *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}
