package media

import (
	"errors"
	"fmt"
)

// Domain errors for media handling.
var (
	// ErrInvalidSource is returned for URLs that are not absolute http(s).
	ErrInvalidSource = errors.New("media: invalid source url")

	// ErrNotFound is returned when a staged upload does not exist.
	ErrNotFound = errors.New("media: file not found")

	// ErrDownloadFailed wraps non-2xx responses and transfer errors.
	ErrDownloadFailed = errors.New("media: download failed")

	// ErrTooLarge is returned when a remote attachment exceeds the
	// configured size limit. It wraps ErrDownloadFailed.
	ErrTooLarge = fmt.Errorf("%w: attachment too large", ErrDownloadFailed)
)
