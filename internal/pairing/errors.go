package pairing

import "errors"

// ErrPairingNotAvailable is returned when no pairing payload has been
// written for a tenant, or the stored payload can no longer be read.
// Callers should retry after a short delay.
var ErrPairingNotAvailable = errors.New("pairing: no pairing code available")
