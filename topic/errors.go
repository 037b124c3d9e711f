package topic

import (
	"errors"
	"fmt"
)

// ProvisionError is returned when the broker rejected a create call for any
// reason other than the topic already existing. Provisioning may be retried.
type ProvisionError struct {
	Topic string
	Cause error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision topic %q: %v", e.Topic, e.Cause)
}

func (e *ProvisionError) Unwrap() error {
	return e.Cause
}

func AsProvisionError(err error) (*ProvisionError, bool) {
	var pe *ProvisionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
