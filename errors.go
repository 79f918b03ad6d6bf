package ddns

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAddressFound means that no usable address could be resolved.
	ErrNoAddressFound = errors.New("failed to obtain IP addresses")
	// ErrInvalidAddress means that a configured address could not be parsed.
	ErrInvalidAddress = errors.New("invalid IP address")
	// ErrRecordFetch means that the records of a domain could not be listed.
	ErrRecordFetch = errors.New("failed to get records")
	// ErrInvalidCredentials means that the provider rejected the API keys.
	// Retrying will not help.
	ErrInvalidCredentials = errors.New("invalid API keys")
	// ErrRecordMutation means that a record could not be created or deleted.
	ErrRecordMutation = errors.New("failed to modify record")
)

// classify wraps err with kind unless it already carries one of the error kinds above.
func classify(err error, kind error) error {
	if err == nil {
		return nil
	}
	for _, k := range []error{ErrInvalidCredentials, ErrRecordFetch, ErrRecordMutation} {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", kind, err)
}
