package multipart

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

func TestRecordSurvivesJSON(t *testing.T) {
	src := NewContainer(cellPos, nil, true)
	panel := newTestPart(SlotPanelSouth, NominalBox(SlotPanelSouth))
	panel.value = 12
	_, _ = src.AddPart(panel)
	_, _ = src.AddPart(wrapBlock(block.NewBlockWithMetadata(block.SlabBlockID, block.Metadata{"half": "bottom"})))

	raw, err := json.Marshal(src.WriteRecord())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"slot":"panel-south"`)

	var rec ContainerRecord
	require.NoError(t, json.Unmarshal(raw, &rec))

	dst := NewContainer(cellPos, nil, false)
	require.NoError(t, dst.ReadRecord(rec))
	assert.True(t, dst.CanTurnIntoBlock())
	assert.Equal(t, src.Describe(), dst.Describe())

	for _, d := range src.Describe() {
		p, ok := dst.PartFromID(d.ID)
		require.True(t, ok)
		assert.Equal(t, d.Slot, p.Slot())
	}
	restored, _ := dst.PartInSlot(SlotPanelSouth)
	assert.Equal(t, 12, restored.(*testPart).value)
}

func TestApplyDescriptionRejectsBadInput(t *testing.T) {
	c := NewContainer(cellPos, nil, true)
	err := c.ApplyDescription([]PartDescription{{Slot: SlotCenter, ID: NewPartID(), Kind: "nope"}})
	assert.ErrorIs(t, err, ErrUnknownKind)

	overlap := []PartDescription{
		{Slot: SlotPanelDown, ID: NewPartID(), Kind: testKind, State: newTestPart(SlotPanelDown, vec.NewBox(0, 0, 0, 1, 0.6, 1)).WriteState()},
		{Slot: SlotCenter, ID: NewPartID(), Kind: testKind, State: newTestPart(SlotCenter, NominalBox(SlotCenter)).WriteState()},
	}
	c = NewContainer(cellPos, nil, true)
	assert.ErrorIs(t, c.ApplyDescription(overlap), ErrOccluded)

	c = NewContainer(cellPos, nil, true)
	_, _ = c.AddPart(newTestPart(SlotCenter))
	assert.ErrorIs(t, c.ApplyDescription(nil), ErrInvariant)

	c = NewContainer(cellPos, nil, true)
	mismatch := []PartDescription{{Slot: SlotCenter, ID: NewPartID(), Kind: testKind, State: State{"slot": "whole"}}}
	assert.ErrorIs(t, c.ApplyDescription(mismatch), ErrInvariant)
}

func TestStateNumbersAfterDecoding(t *testing.T) {
	s := State{"a": float64(3), "b": 4, "c": "x", "d": true}
	v, ok := s.Int("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	v, ok = s.Int("b")
	assert.True(t, ok)
	assert.Equal(t, 4, v)
	_, ok = s.Int("c")
	assert.False(t, ok)
	str, _ := s.String("c")
	assert.Equal(t, "x", str)
	b, _ := s.Bool("d")
	assert.True(t, b)
}
