package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/reelcard-api/internal/filtergraph"
	"github.com/maauso/reelcard-api/internal/motion"
	"github.com/maauso/reelcard-api/internal/timing"
)

func TestDefaultProfile_Valid(t *testing.T) {
	require.NoError(t, DefaultProfile().Validate())
}

func TestProfile_ValidateReportsEveryProblem(t *testing.T) {
	p := DefaultProfile()
	p.FrameRate = 0
	p.VideoWidth = 1081
	p.Timing.Policy = timing.Policy("skip")

	err := p.Validate()

	require.ErrorIs(t, err, ErrInvalidProfile)
	assert.Contains(t, err.Error(), "frame_rate")
	assert.Contains(t, err.Error(), "1081x1920")
	assert.Contains(t, err.Error(), "offset_policy")
}

func TestProfile_ValidateCaptionBand(t *testing.T) {
	p := DefaultProfile()
	p.CaptionBandRatio = 0.9
	p.SafeZoneRatio = 0.2

	assert.ErrorIs(t, p.Validate(), ErrInvalidProfile)
}

func TestProfile_CaptionBand(t *testing.T) {
	band, at := DefaultProfile().captionBand(motion.Size{W: 1080, H: 1920})

	assert.Equal(t, motion.Size{W: 1080, H: 768}, band)
	assert.Equal(t, filtergraph.Placement{X: 0, Y: 922}, at)
}
