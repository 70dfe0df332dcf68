package release

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a well-formed query with no matching data. It
// deliberately covers several upstream states that callers cannot tell
// apart: a version that never existed, one that rolled off the tracked
// release window, a current version that is already the newest, and a
// missing or unusable hash asset. The device update protocol treats all
// of these as "no update available".
var ErrNotFound = errors.New("not found in release data")

// FetchError reports a transient upstream failure: network errors,
// timeouts, non-success statuses, or unparseable bodies. Callers may
// retry later; a cache holding an earlier snapshot keeps serving it.
type FetchError struct {
	Op  string // what was being fetched, e.g. "releases", "changelog"
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
