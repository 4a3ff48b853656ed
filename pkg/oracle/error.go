package oracle

import "errors"

// ErrOracle is returned when an analysis call fails or its response cannot
// be parsed. Callers with a fallback path match on it with errors.Is.
var ErrOracle = errors.New("oracle analysis failed")
