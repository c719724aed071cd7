package rdmnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/rdmnetcore/internal/handle"
)

func TestContextConfigReturnsWhatItWasBuiltWith(t *testing.T) {
	c := newTestContext(t)
	assert.Equal(t, c.cfg, c.Config())
}

func TestSweepHandlesReclaimsDestroyedHandles(t *testing.T) {
	c := newTestContext(t)

	h := c.hmgr.Create(handle.KindController, struct{}{})
	require.Equal(t, 1, c.hmgr.Count())

	require.True(t, c.hmgr.Destroy(h))
	// Destroy defers physical removal to the next sweep; the entry is
	// still resolvable until then.
	_, _, ok := c.hmgr.Get(h)
	assert.True(t, ok)

	c.sweepHandles(time.Unix(0, 0))

	_, _, ok = c.hmgr.Get(h)
	assert.False(t, ok)
	assert.Equal(t, 0, c.hmgr.Count())
}
