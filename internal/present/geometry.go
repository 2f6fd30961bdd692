// Package present implements the DRM Plane Presenter (spec §4.F): the
// consumer thread that turns decoded frames into atomic-commit page
// flips, with letterboxing, zoom, and plane-selection math.
package present

import "math"

// Rect is a pixel rectangle, used for both destination and source
// (zoom) rectangles.
type Rect struct {
	X, Y, W, H uint32
}

// ZoomRequest is the external zoom input (spec §3 Zoom State): percent
// scale and percent center, both in [0, 100].
type ZoomRequest struct {
	ScaleXPercent  float64
	ScaleYPercent  float64
	CenterXPercent float64
	CenterYPercent float64
}

// Letterbox computes the aspect-ratio-preserving destination rectangle
// for a src_w×src_h frame inside a mode_w×mode_h display (spec §4.F,
// property 11). Cross-multiplication avoids floating-point division for
// the aspect comparison.
func Letterbox(srcW, srcH, modeW, modeH uint32) Rect {
	var dstW, dstH uint32
	if uint64(srcW)*uint64(modeH) > uint64(modeW)*uint64(srcH) {
		dstW = modeW
		dstH = roundu(modeW, srcH, srcW)
	} else {
		dstH = modeH
		dstW = roundu(modeH, srcW, srcH)
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	return Rect{
		X: (modeW - minu(dstW, modeW)) / 2,
		Y: (modeH - minu(dstH, modeH)) / 2,
		W: dstW,
		H: dstH,
	}
}

// roundu computes round(a*b/c) in integer arithmetic.
func roundu(a, b, c uint32) uint32 {
	return uint32(math.Round(float64(a) * float64(b) / float64(c)))
}

func minu(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func clampu(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// alignDown rounds v down to the nearest multiple of m (m > 0).
func alignDown(v, m uint32) uint32 {
	return v - v%m
}

// ResolveZoom turns a percent-based zoom request into the aligned pixel
// rectangle spec I6 requires: w%4=0, h%4=0, x%2=0, y%2=0, and fully
// contained in the source frame, centered on the requested point to
// within ±2px (spec §8 property 10).
func ResolveZoom(req ZoomRequest, srcW, srcH uint32) Rect {
	w := alignDown(roundPercent(srcW, req.ScaleXPercent), 4)
	h := alignDown(roundPercent(srcH, req.ScaleYPercent), 4)
	if w < 4 {
		w = 4
	}
	if h < 4 {
		h = 4
	}
	if w > alignDown(srcW, 4) {
		w = alignDown(srcW, 4)
	}
	if h > alignDown(srcH, 4) {
		h = alignDown(srcH, 4)
	}

	cx := roundPercent(srcW, req.CenterXPercent)
	cy := roundPercent(srcH, req.CenterYPercent)

	x := subClampu(cx, w/2)
	y := subClampu(cy, h/2)
	x = clampu(x, 0, srcW-w)
	y = clampu(y, 0, srcH-h)
	x = alignDown(x, 2)
	y = alignDown(y, 2)

	return Rect{X: x, Y: y, W: w, H: h}
}

func roundPercent(total uint32, percent float64) uint32 {
	v := math.Round(float64(total) * percent / 100)
	if v < 0 {
		return 0
	}
	return uint32(v)
}

// subClampu computes a-b without underflowing uint32.
func subClampu(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}

// ClampScaler grows a zoom source rectangle toward its own center until
// the destination-to-source ratio on both axes is within maxScale,
// working around hardware planes that cap the overlay scaler (spec
// §4.F, §9 Open Question 2). dstW/dstH is the letterboxed destination
// size the rectangle will be scaled up to.
func ClampScaler(rect Rect, srcW, srcH uint32, dstW, dstH uint32, maxScale float64) Rect {
	cx := rect.X + rect.W/2
	cy := rect.Y + rect.H/2

	w := growToRatio(rect.W, dstW, maxScale)
	h := growToRatio(rect.H, dstH, maxScale)
	w = alignDown(minu(w, alignDown(srcW, 4)), 4)
	h = alignDown(minu(h, alignDown(srcH, 4)), 4)
	if w < 4 {
		w = 4
	}
	if h < 4 {
		h = 4
	}

	x := subClampu(cx, w/2)
	y := subClampu(cy, h/2)
	x = clampu(alignDown(x, 2), 0, alignDown(srcW-w, 2))
	y = clampu(alignDown(y, 2), 0, alignDown(srcH-h, 2))

	return Rect{X: x, Y: y, W: w, H: h}
}

// growToRatio returns the smallest multiple-of-4-aligned size >= src
// such that dst/size <= maxScale, i.e. size >= dst/maxScale.
func growToRatio(src, dst uint32, maxScale float64) uint32 {
	if maxScale <= 0 {
		return src
	}
	needed := uint32(math.Ceil(float64(dst) / maxScale))
	needed = (needed + 3) &^ 3
	if needed <= src {
		return src
	}
	return needed
}
