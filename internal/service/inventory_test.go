package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/arcbox-desktop/internal/control"
)

func TestInventory(t *testing.T) {
	inv := NewInventory()

	assert.True(t, inv.Update(ContainersLoadedMsg{Kind: KindContainer, Items: []control.Container{{ID: "a"}, {ID: "b"}}}))
	assert.True(t, inv.Update(VolumesLoadedMsg{Kind: KindVolume, Items: []control.Volume{{Name: "v"}}}))
	assert.Equal(t, 2, inv.Count(KindContainer))
	assert.Equal(t, 1, inv.Count(KindVolume))
	assert.True(t, inv.Loaded(KindContainer))
	assert.False(t, inv.Loaded(KindMachine))

	failure := OperationFailedMsg{Kind: KindContainer, Action: ActionList, Err: errors.New("boom")}
	assert.True(t, inv.Update(failure))
	assert.Equal(t, 2, inv.Count(KindContainer), "lists survive a failed refresh")
	require.NotNil(t, inv.LastError)
	assert.Equal(t, "Failed to list container: boom", inv.LastError.Error())

	assert.True(t, inv.Update(ContainersLoadedMsg{Kind: KindContainer}))
	assert.Nil(t, inv.LastError, "a successful listing clears the error")
	assert.Zero(t, inv.Count(KindContainer))

	assert.False(t, inv.Update(EntityMutatedMsg{Kind: KindContainer}))

	inv.Clear()
	assert.False(t, inv.Loaded(KindVolume))
	assert.Zero(t, inv.Count(KindVolume))
}
