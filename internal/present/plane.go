package present

import "github.com/pixelpilot/pixelpilot/internal/drm"

// PlaneKind classifies a DRM plane's type for scoring (spec §4.F plane
// selection).
type PlaneKind int

const (
	PlaneOther PlaneKind = iota
	PlanePrimary
	PlaneOverlay
)

// Candidate is one plane under consideration, with everything the
// scoring function needs already resolved.
type Candidate struct {
	PlaneID       uint32
	Kind          PlaneKind
	Formats       []uint32
	PossibleCrtcs uint32
	AcceptsNV12   bool // caller-supplied; core's plane resolution leaves it false, so there NV12 in Formats decides
}

// Score implements spec §4.F's scoring table: OVERLAY(+400) >
// PRIMARY(+200) > other(+100); NV12(+150) > YUYV(+120) > RGB(+40).
func (c Candidate) Score() int {
	score := 0
	switch c.Kind {
	case PlaneOverlay:
		score += 400
	case PlanePrimary:
		score += 200
	default:
		score += 100
	}
	score += formatScore(c.Formats)
	return score
}

func formatScore(formats []uint32) int {
	best := 0
	for _, f := range formats {
		var s int
		switch f {
		case drm.FourCCNV12:
			s = 150
		case drm.FourCCYUYV:
			s = 120
		case drm.FourCCXR24, drm.FourCCAR24:
			s = 40
		}
		if s > best {
			best = s
		}
	}
	return best
}

func hasFormat(formats []uint32, want uint32) bool {
	for _, f := range formats {
		if f == want {
			return true
		}
	}
	return false
}

// SelectPlane walks the candidate list and returns the highest-scoring
// plane that is permitted on the target CRTC and accepts linear NV12,
// breaking ties by the lowest plane ID (spec §4.F Plane Selection).
// preferred, if non-zero and present among candidates, is tried first
// without walking the list (the already-configured plane continues to
// be used when it still qualifies).
func SelectPlane(candidates []Candidate, crtcIndex uint32, preferred uint32) (Candidate, bool) {
	crtcBit := uint32(1) << crtcIndex

	qualifies := func(c Candidate) bool {
		return c.PossibleCrtcs&crtcBit != 0 && (c.AcceptsNV12 || hasFormat(c.Formats, drm.FourCCNV12))
	}

	if preferred != 0 {
		for _, c := range candidates {
			if c.PlaneID == preferred && qualifies(c) {
				return c, true
			}
		}
	}

	var best Candidate
	found := false
	for _, c := range candidates {
		if !qualifies(c) {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		if c.Score() > best.Score() || (c.Score() == best.Score() && c.PlaneID < best.PlaneID) {
			best = c
		}
	}
	return best, found
}
