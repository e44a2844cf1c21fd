package breaker

import "errors"

// ErrOpen is returned by Execute when the breaker is open and no fallback
// was supplied.
var ErrOpen = errors.New("circuit breaker open")
