package multipart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
)

func signalPart(slot PartSlot, level int, boxes ...vec.Box) *testPart {
	p := newTestPart(slot, boxes...)
	p.caps = map[capability.Kind]bool{capability.Signal: true}
	p.value = level
	return p
}

func TestRouterPicksFirstSlotTouchingFace(t *testing.T) {
	c := NewContainer(vec.Vec3{}, nil, true)
	north := signalPart(SlotPanelNorth, 1)
	center := signalPart(SlotCenter, 2, NominalBox(SlotCenter), vec.NewBox(0.75, 0.4, 0.4, 1, 0.6, 0.6))
	whole := signalPart(SlotWhole, 3, vec.NewBox(0.4, 0, 0.4, 0.6, 0.2, 0.6))
	for _, p := range []*testPart{north, center, whole} {
		_, ok := c.AddPart(p)
		require.True(t, ok)
	}

	cases := []struct {
		face vec.Face
		want int
	}{
		{vec.FaceNorth, 1}, // панель своей грани
		{vec.FaceEast, 2},  // отвод центра выходит на восток
		{vec.FaceSouth, 3}, // остаётся только whole
		{vec.FaceDown, 3},
	}
	for _, tc := range cases {
		sig, ok := Capability[capability.SignalSource](c, capability.Signal, tc.face)
		require.True(t, ok, tc.face.String())
		assert.Equal(t, tc.want, sig.Level(), tc.face.String())
	}
}

func TestRouterSkipsPartsWithoutService(t *testing.T) {
	c := NewContainer(vec.Vec3{}, nil, true)
	_, _ = c.AddPart(newTestPart(SlotPanelUp, NominalBox(SlotPanelUp)))
	_, _ = c.AddPart(signalPart(SlotWhole, 7, vec.NewBox(0, 0, 0, 1, 0.5, 1)))

	p, ok := c.Responder(capability.Signal, vec.FaceUp)
	require.True(t, ok)
	assert.Equal(t, SlotWhole, p.Slot())

	_, ok = c.QueryCapability(capability.Energy, vec.FaceUp)
	assert.False(t, ok, "сервис никто не объявил")

	_, ok = Capability[capability.EnergyStorage](c, capability.Signal, vec.FaceUp)
	assert.False(t, ok, "ответ не приводится к запрошенному типу")
}

func TestSlotQueryAsksOnlyThatSlot(t *testing.T) {
	c := NewContainer(vec.Vec3{}, nil, true)
	_, _ = c.AddPart(signalPart(SlotCenter, 4, NominalBox(SlotCenter)))
	_, _ = c.AddPart(signalPart(SlotPanelWest, 5))

	sig, ok := SlotCapability[capability.SignalSource](c, capability.Signal, SlotCenter, vec.FaceNorth)
	require.True(t, ok)
	assert.Equal(t, 4, sig.Level())

	_, ok = c.QuerySlotCapability(capability.Signal, SlotPanelEast, vec.FaceEast)
	assert.False(t, ok, "пустой слот не отвечает")

	_, ok = c.QueryCapability(capability.Signal, vec.FaceNorth)
	assert.False(t, ok, "центр не выходит на грань, панель запада на другой грани")
}

func TestRouterDoesNotMutate(t *testing.T) {
	c := NewContainer(vec.Vec3{}, nil, true)
	rec := &recorder{}
	c.AddListener(rec)
	_, _ = c.AddPart(signalPart(SlotWhole, 1, vec.FullCell))
	before := c.Describe()

	for _, f := range vec.AllFaces {
		_, _ = c.QueryCapability(capability.Signal, f)
	}
	assert.Equal(t, before, c.Describe())
	assert.Equal(t, []string{"add"}, rec.ops())
}
