package service

import "errors"

var (
	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnresolvableRider marks a result whose external rider identity
	// matches no known rider. Ingestion logs it and stores the result
	// without a rider; it never aborts a batch.
	ErrUnresolvableRider = errors.New("unresolvable rider")
)
