package tenant

import (
	"errors"
	"fmt"
)

// ErrNotRoutable is returned when a tenant's lifecycle state forbids serving
// traffic (suspended or deleted).
var ErrNotRoutable = errors.New("tenant is not routable")

// Status is the provisioning lifecycle state of a tenant as recorded in the
// platform registry. Transitions are driven exclusively through the registry's
// compare-and-swap operation; no component mutates status in place.
type Status string

const (
	StatusPending            Status = "pending"
	StatusProvisioning       Status = "provisioning"
	StatusActive             Status = "active"
	StatusProvisioningFailed Status = "provisioning_failed"
	StatusSuspended          Status = "suspended"
	StatusDeleted            Status = "deleted"
)

// transitions enumerates the legal lifecycle edges. Deletion is reachable
// from every non-deleted state.
var transitions = map[Status][]Status{
	StatusPending:            {StatusProvisioning, StatusDeleted},
	StatusProvisioning:       {StatusActive, StatusProvisioningFailed, StatusDeleted},
	StatusActive:             {StatusSuspended, StatusDeleted},
	StatusProvisioningFailed: {StatusProvisioning, StatusDeleted},
	StatusSuspended:          {StatusActive, StatusDeleted},
	StatusDeleted:            {},
}

// ParseStatus validates a stored string against the known lifecycle states.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProvisioning, StatusActive, StatusProvisioningFailed, StatusSuspended, StatusDeleted:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown tenant status %q", s)
	}
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// CanTransition reports whether the lifecycle permits moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Routable reports whether tenant-scoped operations may be served in this
// state. Pending and failed tenants are still routable: the pool manager
// provisions them lazily on first access.
func (s Status) Routable() bool {
	switch s {
	case StatusSuspended, StatusDeleted:
		return false
	default:
		return true
	}
}

// Terminal reports whether the provisioning flow is finished, successfully
// or not. Pollers waiting on a concurrent provisioning attempt stop here.
func (s Status) Terminal() bool {
	switch s {
	case StatusActive, StatusProvisioningFailed, StatusSuspended, StatusDeleted:
		return true
	default:
		return false
	}
}
