package replication

import "errors"

var (
	// Mapping table errors

	ErrDuplicateMapping = errors.New("entity already mapped")
	ErrMappingNotFound  = errors.New("entity mapping not found")

	// Protocol and application errors

	ErrRemoveUnknownEntity   = errors.New("removal received for unknown network entity")
	ErrSendRemoveForUnmapped = errors.New("removal sent for unmapped entity")
	ErrComponentMissing      = errors.New("component to send is missing")
	ErrInvalidItem           = errors.New("invalid received item")
)
