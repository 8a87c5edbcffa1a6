package trends

import (
	"errors"
	"fmt"
	"time"
)

// Classified source failures. The fetcher retries throttled and transient
// errors with backoff; permanent and malformed errors fail the pair at once.
var (
	ErrThrottled         = errors.New("throttled by source")
	ErrTransient         = errors.New("transient source error")
	ErrPermanent         = errors.New("permanent request error")
	ErrMalformedResponse = errors.New("malformed source response")
)

// ThrottledError carries the provider-suggested retry delay when one was
// given. errors.Is(err, ErrThrottled) matches it.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("throttled by source, retry after %s", e.RetryAfter)
	}
	return "throttled by source"
}

// Is reports whether target is ErrThrottled.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}
