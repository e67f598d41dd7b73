package rangeserver

import "errors"

// ErrUnresolvedLocation is returned when the caller names a location the
// registry has no address for (e.g. it was just removed).
var ErrUnresolvedLocation = errors.New("rangeserver: unresolved location")
