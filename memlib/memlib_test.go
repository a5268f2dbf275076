package memlib_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/memlib"
	"github.com/vkngwrapper/heapkit/memutils"
)

func TestRegionDefaults(t *testing.T) {
	region, err := memlib.NewRegion(0)
	require.NoError(t, err)
	require.Equal(t, memlib.DefaultMaxHeap, region.MaxHeap())
	require.Equal(t, 0, region.Brk())
	require.Empty(t, region.Memory())
}

func TestRegionInvalidCapacity(t *testing.T) {
	_, err := memlib.NewRegion(-1)
	require.Error(t, err)
}

func TestRegionExtend(t *testing.T) {
	region, err := memlib.NewRegion(64)
	require.NoError(t, err)

	oldBrk, err := region.Extend(24)
	require.NoError(t, err)
	require.Equal(t, 0, oldBrk)

	oldBrk, err = region.Extend(40)
	require.NoError(t, err)
	require.Equal(t, 24, oldBrk)
	require.Len(t, region.Memory(), 64)

	oldBrk, err = region.Extend(8)
	require.Equal(t, -1, oldBrk)
	require.True(t, errors.Is(err, memlib.ErrOutOfMemory))
	require.True(t, errors.Is(err, memutils.ErrSupplierExhausted))
	require.Equal(t, 64, region.Brk())

	_, err = region.Extend(-8)
	require.Error(t, err)
	require.Equal(t, 64, region.Brk())

	region.Reset()
	require.Equal(t, 0, region.Brk())
	require.Empty(t, region.Memory())
}

func TestRegionMemoryIsStable(t *testing.T) {
	region, err := memlib.NewRegion(64)
	require.NoError(t, err)

	_, err = region.Extend(8)
	require.NoError(t, err)
	region.Memory()[0] = 0x7F

	_, err = region.Extend(8)
	require.NoError(t, err)
	require.Equal(t, byte(0x7F), region.Memory()[0])

	// A view never reaches past the break
	require.Equal(t, 16, cap(region.Memory()))
}
