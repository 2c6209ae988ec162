package registry

import "errors"

// ErrNotApplicable is returned by a strategy that has nothing to offer for a query.
// The registry moves on to the next strategy.
var ErrNotApplicable = errors.New("credential strategy not applicable")
