package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	name string
}

func TestCreateThenGetResolvesInstanceAndKind(t *testing.T) {
	m := New()
	inst := &fakeController{name: "c1"}

	h := m.Create(KindController, inst)
	assert.NotZero(t, h)

	got, kind, ok := m.Get(h)
	require.True(t, ok)
	assert.Equal(t, KindController, kind)
	assert.Same(t, inst, got)
}

func TestGetUnknownHandleFails(t *testing.T) {
	m := New()
	_, _, ok := m.Get(Handle(999))
	assert.False(t, ok)
}

func TestHandlesAreProcessUnique(t *testing.T) {
	m := New()
	h1 := m.Create(KindDevice, &fakeController{name: "a"})
	h2 := m.Create(KindDevice, &fakeController{name: "b"})
	assert.NotEqual(t, h1, h2)
}

func TestDestroyStopsResolvingImmediately(t *testing.T) {
	m := New()
	h := m.Create(KindLLRPManager, &fakeController{name: "mgr"})

	assert.True(t, m.Destroy(h))

	_, _, ok := m.Get(h)
	assert.False(t, ok)
}

func TestDestroyUnknownOrAlreadyPendingFails(t *testing.T) {
	m := New()
	assert.False(t, m.Destroy(Handle(42)))

	h := m.Create(KindLLRPTarget, &fakeController{name: "tgt"})
	require.True(t, m.Destroy(h))
	assert.False(t, m.Destroy(h))
}

func TestSweepRemovesPendingAndFiresCallback(t *testing.T) {
	m := New()
	inst := &fakeController{name: "c1"}
	h := m.Create(KindController, inst)
	m.Destroy(h)

	var destroyedHandle Handle
	var destroyedKind Kind
	var destroyedInstance any
	m.Sweep(func(hh Handle, k Kind, i any) {
		destroyedHandle = hh
		destroyedKind = k
		destroyedInstance = i
	})

	assert.Equal(t, h, destroyedHandle)
	assert.Equal(t, KindController, destroyedKind)
	assert.Same(t, inst, destroyedInstance)
	assert.Equal(t, 0, m.Count())
}

func TestSweepLeavesLiveEntriesUntouched(t *testing.T) {
	m := New()
	live := m.Create(KindController, &fakeController{name: "live"})
	dead := m.Create(KindController, &fakeController{name: "dead"})
	m.Destroy(dead)

	calls := 0
	m.Sweep(func(h Handle, k Kind, i any) { calls++ })

	assert.Equal(t, 1, calls)
	_, _, ok := m.Get(live)
	assert.True(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestResolveTypeAssertsStoredInstance(t *testing.T) {
	m := New()
	inst := &fakeController{name: "typed"}
	h := m.Create(KindController, inst)

	got, ok := Resolve[*fakeController](m, h)
	require.True(t, ok)
	assert.Equal(t, "typed", got.name)

	_, ok = Resolve[*int](m, h)
	assert.False(t, ok)
}

func TestSnapshotReturnsOnlyLiveEntriesOfKind(t *testing.T) {
	m := New()
	m.Create(KindController, &fakeController{name: "c1"})
	ctrl2 := m.Create(KindController, &fakeController{name: "c2"})
	m.Create(KindDevice, &fakeController{name: "d1"})
	m.Destroy(ctrl2)

	snap := m.Snapshot(KindController)
	require.Len(t, snap, 1)
	assert.Equal(t, "c1", snap[0].(*fakeController).name)
}

func TestSnapshotOfUnusedKindIsEmpty(t *testing.T) {
	m := New()
	m.Create(KindController, &fakeController{name: "c1"})
	assert.Empty(t, m.Snapshot(KindLLRPTarget))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "controller", KindController.String())
	assert.Equal(t, "device", KindDevice.String())
	assert.Equal(t, "llrp_manager", KindLLRPManager.String())
	assert.Equal(t, "llrp_target", KindLLRPTarget.String())
}
