package build

import "errors"

// Sentinel domain errors used to classify high-level pipeline failures.
// They should always be wrapped with contextual information at the call site.
var (
	ErrConfig     = errors.New("sitebuilder: configuration error")
	ErrEnumerate  = errors.New("sitebuilder: enumeration error")
	ErrCacheStore = errors.New("sitebuilder: cache store error")
)
