package adapter

import (
	"errors"
	"fmt"

	"github.com/genbridge/genbridge/pkg/models"
)

// ErrPollTimeout means the async poller exhausted its deadline before the
// vendor reported a terminal state. Distinct from VendorCallError so callers
// can tell "possibly still running remotely" from "vendor rejected the job".
var ErrPollTimeout = errors.New("polling deadline exceeded")

// VendorCallError wraps a vendor transport or response failure.
type VendorCallError struct {
	Vendor  string
	Status  int // upstream HTTP status, 0 for transport failures
	Message string
	Err     error
}

func (e *VendorCallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s call failed (status %d): %s", e.Vendor, e.Status, e.Message)
	}
	return fmt.Sprintf("%s call failed: %s", e.Vendor, e.Message)
}

func (e *VendorCallError) Unwrap() error { return e.Err }

// UnsupportedCapabilityError means the adapter does not implement the
// requested task kind.
type UnsupportedCapabilityError struct {
	Vendor string
	Kind   models.TaskKind
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("vendor %s does not support %s", e.Vendor, e.Kind)
}
