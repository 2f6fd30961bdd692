package present

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestLetterboxWidescreenSourceIntoNarrowerMode(t *testing.T) {
	r := Letterbox(1920, 1080, 1280, 720)
	assert.Equal(t, Rect{X: 0, Y: 0, W: 1280, H: 720}, r)
}

func TestLetterboxNarrowerSourceIntoWidescreenMode(t *testing.T) {
	r := Letterbox(1440, 1080, 1280, 720)
	assert.Equal(t, uint32(720), r.H)
	assert.Equal(t, uint32(960), r.W)
	assert.Equal(t, uint32(160), r.X)
	assert.Equal(t, uint32(0), r.Y)
}

func TestResolveZoomHalfScaleCenteredMatchesScenarioS6(t *testing.T) {
	r := ResolveZoom(ZoomRequest{ScaleXPercent: 50, ScaleYPercent: 50, CenterXPercent: 50, CenterYPercent: 50}, 1920, 1080)
	assert.Equal(t, Rect{X: 480, Y: 270, W: 960, H: 540}, r)
}

func TestResolveZoomAlwaysSatisfiesAlignmentInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		srcW := uint32(rapid.IntRange(64, 7680).Draw(rt, "srcW"))
		srcH := uint32(rapid.IntRange(64, 4320).Draw(rt, "srcH"))
		scaleX := rapid.Float64Range(1, 100).Draw(rt, "scaleX")
		scaleY := rapid.Float64Range(1, 100).Draw(rt, "scaleY")
		centerX := rapid.Float64Range(0, 100).Draw(rt, "centerX")
		centerY := rapid.Float64Range(0, 100).Draw(rt, "centerY")

		r := ResolveZoom(ZoomRequest{
			ScaleXPercent: scaleX, ScaleYPercent: scaleY,
			CenterXPercent: centerX, CenterYPercent: centerY,
		}, srcW, srcH)

		assert.Zero(t, r.W%4, "width must be 4px-aligned")
		assert.Zero(t, r.H%4, "height must be 4px-aligned")
		assert.Zero(t, r.X%2, "x must be 2px-aligned")
		assert.Zero(t, r.Y%2, "y must be 2px-aligned")
		assert.LessOrEqual(t, r.X+r.W, srcW, "rectangle must stay inside the source")
		assert.LessOrEqual(t, r.Y+r.H, srcH, "rectangle must stay inside the source")

		// Centering is only meaningful away from the source edges — a
		// rect clamped against a boundary necessarily can't center on a
		// request past that boundary. Check drift only when the ideal
		// (unclamped) position had room to be honored.
		requestedCX := float64(srcW) * centerX / 100
		requestedCY := float64(srcH) * centerY / 100
		idealX := requestedCX - float64(r.W)/2
		idealY := requestedCY - float64(r.H)/2
		if idealX >= 0 && idealX <= float64(srcW-r.W) {
			actualCX := float64(r.X) + float64(r.W)/2
			assert.LessOrEqual(t, abs(actualCX-requestedCX), 4.0, "center drift must stay small (alignment rounding)")
		}
		if idealY >= 0 && idealY <= float64(srcH-r.H) {
			actualCY := float64(r.Y) + float64(r.H)/2
			assert.LessOrEqual(t, abs(actualCY-requestedCY), 4.0, "center drift must stay small (alignment rounding)")
		}
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestClampScalerGrowsRectToRespectMaxScale(t *testing.T) {
	// A tiny zoom rect scaled up to a large destination would exceed 4x;
	// the clamp must grow the rect until the ratio is within bounds.
	rect := Rect{X: 940, Y: 520, W: 40, H: 40}
	grown := ClampScaler(rect, 1920, 1080, 1280, 720, 4.0)

	assert.GreaterOrEqual(t, grown.W, uint32(320), "width must grow to keep dst/src <= 4")
	assert.GreaterOrEqual(t, grown.H, uint32(180), "height must grow to keep dst/src <= 4")
	assert.Zero(t, grown.W%4)
	assert.Zero(t, grown.H%4)
	assert.Zero(t, grown.X%2)
	assert.Zero(t, grown.Y%2)
	assert.LessOrEqual(t, grown.X+grown.W, uint32(1920))
	assert.LessOrEqual(t, grown.Y+grown.H, uint32(1080))
}
