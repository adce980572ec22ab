package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMaskNilWhenNothingExcluded(t *testing.T) {
	mask := BuildMask([]float64{1, 2}, []float64{1, 0}, 2, 2, MaskOptions{})
	assert.Nil(t, mask)
}

func TestBuildMaskMinCount(t *testing.T) {
	mask := BuildMask([]float64{1, 0, 3}, []float64{0, 1, 3}, 4, 4, MaskOptions{MinCount: 2})
	require.NotNil(t, mask)
	assert.Equal(t, []bool{true, true, false}, mask)
}

func TestBuildMaskPositivesOnly(t *testing.T) {
	mask := BuildMask([]float64{0, 2}, []float64{5, 5}, 4, 6, MaskOptions{PositivesOnly: true})
	require.NotNil(t, mask)
	assert.Equal(t, []bool{true, false}, mask)
}

func TestBuildMaskCombinesTypeMask(t *testing.T) {
	mask := BuildMask([]float64{0, 2, 1}, []float64{1, 1, 1}, 3, 3, MaskOptions{
		TypeMask:      []bool{false, false, true},
		PositivesOnly: true,
	})
	require.NotNil(t, mask)
	assert.Equal(t, []bool{true, false, true}, mask)
}

func TestRarePositiveMask(t *testing.T) {
	mask := RarePositiveMask([]float64{0.5, 0.5, -0.5}, []float64{0, 3, 0})
	assert.Equal(t, []bool{true, false, false}, mask)
}

func TestInfoGain(t *testing.T) {
	// A feature present in every positive and no negative separates the
	// classes fully, so its gain approaches the class entropy (1 bit for
	// balanced classes). A feature present everywhere carries almost none.
	gain := InfoGain([]float64{10, 10}, []float64{0, 10}, 10, 10)
	assert.Greater(t, gain[0], gain[1])
	assert.Greater(t, gain[0], 0.5)
	assert.Less(t, gain[1], 0.1)
}

func TestInfoGainMask(t *testing.T) {
	mask := BuildMask([]float64{10, 10}, []float64{0, 10}, 10, 10, MaskOptions{MinInfoGain: 0.5})
	require.NotNil(t, mask)
	assert.False(t, mask[0])
	assert.True(t, mask[1])
}
