package transform

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trdcalib/internal/trd"
	"github.com/banshee-data/trdcalib/internal/trd/calib"
)

func randomTracklets(n int, seed int64) []trd.RawTracklet {
	rng := rand.New(rand.NewSource(seed))
	out := make([]trd.RawTracklet, n)
	for i := range out {
		out[i] = trd.RawTracklet{
			HCID:     rng.Intn(trd.MaxHalfChamber),
			PadRow:   rng.Intn(12), // valid in every stack
			Column:   rng.Intn(4),
			Position: uint32(rng.Intn(1 << trd.NBitsTrkltPos)),
			Slope:    uint32(rng.Intn(1 << trd.NBitsTrkltSlope)),
		}
	}
	return out
}

func TestTransformBatchMatchesSequential(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.16133, 0.05)
	tracklets := randomTracklets(2000, 7)

	want := make([]trd.CalibratedTracklet, len(tracklets))
	for i, raw := range tracklets {
		ct, err := tr.TransformTracklet(raw, true)
		require.NoError(t, err)
		want[i] = ct
	}

	for _, workers := range []int{0, 1, 4, 64} {
		got, err := tr.TransformBatch(context.Background(), tracklets, true, workers)
		require.NoError(t, err, "workers=%d", workers)
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestTransformBatchStopsOnError(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.16133, 0)
	tracklets := randomTracklets(100, 11)
	tracklets[17].HCID = trd.HCID(trd.Detector(0, 2, 0), 0)
	tracklets[17].PadRow = 14

	out, err := tr.TransformBatch(context.Background(), tracklets, false, 4)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, trd.ErrPadRowOutOfRange))
	assert.Contains(t, err.Error(), "tracklet 17")
}

func TestTransformBatchCancelled(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.16133, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.TransformBatch(ctx, randomTracklets(1000, 3), false, 2)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTransformBatchEdgeCases(t *testing.T) {
	tab := calib.NewDefaultTable()
	uninit := NewTransformer(newFakeGeometry(), tab, tab)
	_, err := uninit.TransformBatch(context.Background(), randomTracklets(3, 1), false, 1)
	assert.True(t, errors.Is(err, trd.ErrNotInitialized))

	tr, _ := newTestTransformer(t, 1.546, 0.16133, 0)
	out, err := tr.TransformBatch(context.Background(), nil, false, 4)
	require.NoError(t, err)
	assert.Empty(t, out)
}
