package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusLifecycleEdges(t *testing.T) {
	require.True(t, StatusPending.CanTransition(StatusProvisioning))
	require.True(t, StatusProvisioning.CanTransition(StatusActive))
	require.True(t, StatusProvisioning.CanTransition(StatusProvisioningFailed))
	require.True(t, StatusProvisioningFailed.CanTransition(StatusProvisioning))
	require.True(t, StatusActive.CanTransition(StatusSuspended))
	require.True(t, StatusSuspended.CanTransition(StatusActive))

	require.False(t, StatusPending.CanTransition(StatusActive))
	require.False(t, StatusDeleted.CanTransition(StatusActive))
	require.False(t, StatusSuspended.CanTransition(StatusProvisioning))
}

func TestStatusDeletableFromAnywhere(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProvisioning, StatusActive, StatusProvisioningFailed, StatusSuspended} {
		require.True(t, s.CanTransition(StatusDeleted), "status %s", s)
	}
}

func TestStatusRoutable(t *testing.T) {
	require.True(t, StatusActive.Routable())
	require.True(t, StatusPending.Routable())
	require.True(t, StatusProvisioningFailed.Routable())
	require.False(t, StatusSuspended.Routable())
	require.False(t, StatusDeleted.Routable())
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	_, err := ParseStatus("enabled")
	require.Error(t, err)
}
