package hbl

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBinnedMatrixNpyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	original := binnedFromColumns(t,
		randomBinnedColumn(rng, 37, 16),
		randomBinnedColumn(rng, 37, 16),
		randomBinnedColumn(rng, 37, 16),
	)

	var buf bytes.Buffer
	require.NoError(t, original.WriteNpy(&buf))

	restored, err := ReadBinnedMatrix(&buf)
	require.NoError(t, err)

	require.Equal(t, original.NumSamples(), restored.NumSamples())
	require.Equal(t, original.NumFeatures(), restored.NumFeatures())
	for j := 0; j < original.NumFeatures(); j++ {
		require.Equal(t, original.FeatureBins(j), restored.FeatureBins(j), "feature %d", j)
	}
}

func TestReadBinnedMatrixRejectsWrongPayload(t *testing.T) {
	_, err := ReadBinnedMatrix(bytes.NewReader([]byte("not an npy payload")))
	require.Error(t, err)
}
