package implementations

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

func TestRegisteredBlocks(t *testing.T) {
	for _, id := range []block.BlockID{block.AirBlockID, block.StoneBlockID, block.SlabBlockID, block.LanternBlockID} {
		assert.True(t, block.IsValidBlockID(id), "блок %d должен быть зарегистрирован", id)
	}
}

func TestSlabShapeFollowsHalf(t *testing.T) {
	bottom := block.NewBlock(block.SlabBlockID)
	top := block.NewBlockWithMetadata(block.SlabBlockID, block.Metadata{"half": SlabTop})

	assert.Equal(t, []vec.Box{vec.NewBox(0, 0, 0, 1, 0.5, 1)}, bottom.Shape())
	assert.Equal(t, []vec.Box{vec.NewBox(0, 0.5, 0, 1, 1, 1)}, top.Shape())
	assert.False(t, bottom.Shape()[0].Intersects(top.Shape()[0]))
}

func TestWrappability(t *testing.T) {
	assert.False(t, block.NewBlock(block.StoneBlockID).CanWrapAsPart())
	assert.True(t, block.NewBlock(block.SlabBlockID).CanWrapAsPart())
	assert.True(t, block.NewBlock(block.LanternBlockID).CanWrapAsPart())
	assert.True(t, block.NewBlock(block.LanternBlockID).AcceptsParts())
}

func TestLanternSignal(t *testing.T) {
	behavior := &LanternBehavior{}

	sig, ok := behavior.Capability(capability.Signal, vec.FaceNorth, block.Metadata{"lit": true})
	assert.True(t, ok)
	assert.Equal(t, 15, sig.(capability.SignalSource).Level())

	_, ok = behavior.Capability(capability.Energy, vec.FaceNorth, block.Metadata{"lit": true})
	assert.False(t, ok)
}
