package write

import "errors"

var errNoSuchRow = errors.New("write: no matching row")
