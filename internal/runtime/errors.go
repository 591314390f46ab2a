package runtime

import "errors"

var (
	ErrParentNotConnected     = errors.New("routing.parent is configured but no routing proxy was given")
	ErrUnexpectedRoutingProxy = errors.New("routing proxy given without a configured routing.parent")
)
