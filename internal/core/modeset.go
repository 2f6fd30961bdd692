package core

import (
	"fmt"

	"github.com/pixelpilot/pixelpilot/internal/config"
	"github.com/pixelpilot/pixelpilot/internal/drm"
	"github.com/pixelpilot/pixelpilot/internal/logging"
	"github.com/pixelpilot/pixelpilot/internal/present"
)

// objTypePlane is DRM_MODE_OBJECT_PLANE per the kernel uapi, the object
// type GetObjectProperties/PropertyName are called with below.
const objTypePlane = 0xeeeeeeee

// resolvePresenterConfig turns the externally-supplied modeset input
// (spec §6: "the core must not perform modeset itself") into a fully
// resolved present.Config: it walks the plane list only to pick a
// fallback when the requested plane can't do linear NV12 on the target
// CRTC (spec §4.F Plane Selection), then caches the plane's property IDs
// once, exactly as modeset.go's GetObjectProperties/PropertyName doc
// comments describe.
func resolvePresenterConfig(dev *drm.Device, cfg config.Presenter, log *logging.Logger) (present.Config, error) {
	resources, err := dev.GetResources()
	if err != nil {
		return present.Config{}, fmt.Errorf("core: get resources: %w", err)
	}

	crtcIndex := -1
	for i, id := range resources.CrtcIDs {
		if id == cfg.CrtcID {
			crtcIndex = i
			break
		}
	}
	if crtcIndex < 0 {
		return present.Config{}, fmt.Errorf("core: configured crtc %d not found among %v", cfg.CrtcID, resources.CrtcIDs)
	}

	planeIDs, err := dev.GetPlaneResources()
	if err != nil {
		return present.Config{}, fmt.Errorf("core: get plane resources: %w", err)
	}

	candidates := make([]present.Candidate, 0, len(planeIDs))
	for _, id := range planeIDs {
		plane, err := dev.GetPlane(id)
		if err != nil {
			log.Warn("skipping plane that failed to query", "plane_id", id, "err", err)
			continue
		}
		kind := planeKind(dev, id, log)
		candidates = append(candidates, present.Candidate{
			PlaneID:       id,
			Kind:          kind,
			Formats:       plane.Formats,
			PossibleCrtcs: plane.PossibleCrtcs,
		})
	}

	chosen, ok := present.SelectPlane(candidates, uint32(crtcIndex), cfg.PlaneID)
	if !ok {
		return present.Config{}, fmt.Errorf("core: no plane on crtc %d supports linear NV12 (requested plane %d)", cfg.CrtcID, cfg.PlaneID)
	}
	if chosen.PlaneID != cfg.PlaneID {
		log.Warn("configured plane unusable, fell back to a different plane", "requested_plane", cfg.PlaneID, "chosen_plane", chosen.PlaneID)
	}

	propIDs, err := cachePlanePropertyIDs(dev, chosen.PlaneID)
	if err != nil {
		return present.Config{}, fmt.Errorf("core: cache plane property ids: %w", err)
	}

	return present.Config{
		PlaneID:    chosen.PlaneID,
		CrtcID:     cfg.CrtcID,
		ModeWidth:  cfg.ModeWidth,
		ModeHeight: cfg.ModeHeight,
		MaxScale:   cfg.MaxScale,
		Props:      propIDs,
	}, nil
}

// planeKind resolves a plane's DRM "type" property (OVERLAY=0,
// PRIMARY=1, CURSOR=2) for the scoring table in spec §4.F. A plane
// whose type can't be resolved is scored as "other" rather than
// rejected outright — AcceptsNV12/PossibleCrtcs still gate eligibility.
func planeKind(dev *drm.Device, planeID uint32, log *logging.Logger) present.PlaneKind {
	props, err := dev.GetObjectProperties(planeID, objTypePlane)
	if err != nil {
		log.Warn("could not read plane properties, scoring as other", "plane_id", planeID, "err", err)
		return present.PlaneOther
	}
	for id, value := range props {
		name, err := dev.PropertyName(id)
		if err != nil || name != "type" {
			continue
		}
		switch value {
		case 0:
			return present.PlaneOverlay
		case 1:
			return present.PlanePrimary
		default:
			return present.PlaneOther
		}
	}
	return present.PlaneOther
}

// cachePlanePropertyIDs builds the FB_ID/CRTC_ID/CRTC_X.../SRC_X...
// name→ID cache the presenter needs at startup (spec §4.F: "the
// presenter caches property IDs for the overlay plane").
func cachePlanePropertyIDs(dev *drm.Device, planeID uint32) (present.PropertyIDs, error) {
	props, err := dev.GetObjectProperties(planeID, objTypePlane)
	if err != nil {
		return present.PropertyIDs{}, err
	}

	var ids present.PropertyIDs
	want := map[string]*uint32{
		"FB_ID": &ids.FbID, "CRTC_ID": &ids.CrtcID,
		"CRTC_X": &ids.CrtcX, "CRTC_Y": &ids.CrtcY, "CRTC_W": &ids.CrtcW, "CRTC_H": &ids.CrtcH,
		"SRC_X": &ids.SrcX, "SRC_Y": &ids.SrcY, "SRC_W": &ids.SrcW, "SRC_H": &ids.SrcH,
	}

	for id := range props {
		name, err := dev.PropertyName(id)
		if err != nil {
			continue
		}
		if dst, ok := want[name]; ok {
			*dst = id
		}
	}

	for name, dst := range want {
		if *dst == 0 {
			return present.PropertyIDs{}, fmt.Errorf("plane %d missing expected property %q", planeID, name)
		}
	}
	return ids, nil
}
