package drm

import (
	"fmt"
	"unsafe"
)

// Sequential ioctl numbers in the same DRM mode-config family the helix
// reference file documents (GETRESOURCES=0xa0, GETCONNECTOR=0xa7,
// SETCRTC=0xa2, CREATE_DUMB=0xb2, ADDFB2=0xb8 — all confirmed there);
// the remainder (GETPLANERESOURCES/GETPLANE/OBJ_GETPROPERTIES/
// GETPROPERTY/ATOMIC) follow the same encoding one family further,
// matching the stable kernel uapi ordering.
const (
	nrGetResources       = 0xa0
	nrGetConnector       = 0xa7
	nrGetPlaneResources  = 0xb5
	nrGetPlane           = 0xb6
	nrObjGetProperties   = 0xb9
	nrGetProperty        = 0xaa
	nrAtomic             = 0xbc
)

// Atomic commit flags (DRM_MODE_ATOMIC_*).
const (
	AtomicTestOnly     = 0x100
	AtomicNonblock     = 0x200
	AtomicAllowModeset = 0x400
)

type cardRes struct {
	FbIDPtr, CrtcIDPtr, ConnectorIDPtr, EncoderIDPtr uint64
	CountFbs, CountCrtcs, CountConnectors, CountEncoders uint32
	MinWidth, MaxWidth, MinHeight, MaxHeight uint32
}

type modeInfo struct {
	Clock                                       uint32
	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan uint16
	Vrefresh                                    uint32
	Flags, Type                                 uint32
	Name                                         [32]byte
}

type getConnector struct {
	EncodersPtr, ModesPtr, PropsPtr, PropValuesPtr                uint64
	CountModes, CountProps, CountEncoders                         uint32
	EncoderID, ConnectorID, ConnectorType, ConnectorTypeID        uint32
	Connection, MmWidth, MmHeight, Subpixel, Pad                  uint32
}

type getPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	pad         uint32
}

type getPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FbID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

type objGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
}

type getProperty struct {
	ValuesPtr      uint64
	EnumBlobPtr    uint64
	PropID         uint32
	Flags          uint32
	Name           [32]byte
	CountValues    uint32
	CountEnumBlobs uint32
}

type modeAtomic struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

// Resources holds the CRTC/connector IDs from GETRESOURCES.
type Resources struct {
	CrtcIDs      []uint32
	ConnectorIDs []uint32
}

// GetResources enumerates the card's CRTCs and connectors.
func (d *Device) GetResources() (Resources, error) {
	var probe cardRes
	if err := d.ioctl(ioRW(nrGetResources, unsafe.Sizeof(probe)), unsafe.Pointer(&probe)); err != nil {
		return Resources{}, fmt.Errorf("drm: get resources (probe): %w", err)
	}
	if probe.CountCrtcs == 0 || probe.CountConnectors == 0 {
		return Resources{}, fmt.Errorf("drm: no crtcs/connectors (crtcs=%d connectors=%d)", probe.CountCrtcs, probe.CountConnectors)
	}

	crtcIDs := make([]uint32, probe.CountCrtcs)
	connectorIDs := make([]uint32, probe.CountConnectors)
	fill := cardRes{
		CrtcIDPtr:       uint64(uintptr(unsafe.Pointer(&crtcIDs[0]))),
		ConnectorIDPtr:  uint64(uintptr(unsafe.Pointer(&connectorIDs[0]))),
		CountCrtcs:      probe.CountCrtcs,
		CountConnectors: probe.CountConnectors,
	}
	if err := d.ioctl(ioRW(nrGetResources, unsafe.Sizeof(fill)), unsafe.Pointer(&fill)); err != nil {
		return Resources{}, fmt.Errorf("drm: get resources (fill): %w", err)
	}
	return Resources{CrtcIDs: crtcIDs, ConnectorIDs: connectorIDs}, nil
}

// Connector is the subset of connector state the presenter needs: its
// connection status and encoder (used to find possible CRTCs).
type Connector struct {
	ConnectorID uint32
	Connected   bool
	EncoderID   uint32
}

const connectorStatusConnected = 1

// GetConnector probes a single connector.
func (d *Device) GetConnector(connectorID uint32) (Connector, error) {
	req := getConnector{ConnectorID: connectorID}
	if err := d.ioctl(ioRW(nrGetConnector, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return Connector{}, fmt.Errorf("drm: get connector %d: %w", connectorID, err)
	}
	return Connector{
		ConnectorID: connectorID,
		Connected:   req.Connection == connectorStatusConnected,
		EncoderID:   req.EncoderID,
	}, nil
}

// Plane describes one overlay/primary/cursor plane's capabilities, used
// by plane selection/scoring (spec §4.F).
type Plane struct {
	PlaneID       uint32
	CrtcID        uint32
	PossibleCrtcs uint32
	Formats       []uint32
}

// GetPlaneResources lists all plane object IDs.
func (d *Device) GetPlaneResources() ([]uint32, error) {
	var probe getPlaneRes
	if err := d.ioctl(ioRW(nrGetPlaneResources, unsafe.Sizeof(probe)), unsafe.Pointer(&probe)); err != nil {
		return nil, fmt.Errorf("drm: get plane resources (probe): %w", err)
	}
	if probe.CountPlanes == 0 {
		return nil, nil
	}
	ids := make([]uint32, probe.CountPlanes)
	fill := getPlaneRes{PlaneIDPtr: uint64(uintptr(unsafe.Pointer(&ids[0]))), CountPlanes: probe.CountPlanes}
	if err := d.ioctl(ioRW(nrGetPlaneResources, unsafe.Sizeof(fill)), unsafe.Pointer(&fill)); err != nil {
		return nil, fmt.Errorf("drm: get plane resources (fill): %w", err)
	}
	return ids, nil
}

// GetPlane fetches one plane's capabilities including its format list.
func (d *Device) GetPlane(planeID uint32) (Plane, error) {
	var probe getPlane
	probe.PlaneID = planeID
	if err := d.ioctl(ioRW(nrGetPlane, unsafe.Sizeof(probe)), unsafe.Pointer(&probe)); err != nil {
		return Plane{}, fmt.Errorf("drm: get plane %d (probe): %w", planeID, err)
	}
	if probe.CountFormatTypes == 0 {
		return Plane{PlaneID: planeID, CrtcID: probe.CrtcID, PossibleCrtcs: probe.PossibleCrtcs}, nil
	}
	formats := make([]uint32, probe.CountFormatTypes)
	fill := getPlane{
		PlaneID:          planeID,
		CountFormatTypes: probe.CountFormatTypes,
		FormatTypePtr:    uint64(uintptr(unsafe.Pointer(&formats[0]))),
	}
	if err := d.ioctl(ioRW(nrGetPlane, unsafe.Sizeof(fill)), unsafe.Pointer(&fill)); err != nil {
		return Plane{}, fmt.Errorf("drm: get plane %d (fill): %w", planeID, err)
	}
	return Plane{PlaneID: planeID, CrtcID: probe.CrtcID, PossibleCrtcs: probe.PossibleCrtcs, Formats: formats}, nil
}

// GetObjectProperties returns an object's property-ID → value pairs.
// objType is not passed to the kernel: the request leaves the object
// type unset (any type), so the object is looked up by objID alone.
func (d *Device) GetObjectProperties(objID, objType uint32) (map[uint32]uint64, error) {
	var probe objGetProperties
	probe.ObjID = objID
	if err := d.ioctl(ioRW(nrObjGetProperties, unsafe.Sizeof(probe)), unsafe.Pointer(&probe)); err != nil {
		return nil, fmt.Errorf("drm: get object properties (probe) obj=%d: %w", objID, err)
	}
	if probe.CountProps == 0 {
		return nil, nil
	}
	ids := make([]uint32, probe.CountProps)
	values := make([]uint64, probe.CountProps)
	fill := objGetProperties{
		ObjID:         objID,
		CountProps:    probe.CountProps,
		PropsPtr:      uint64(uintptr(unsafe.Pointer(&ids[0]))),
		PropValuesPtr: uint64(uintptr(unsafe.Pointer(&values[0]))),
	}
	if err := d.ioctl(ioRW(nrObjGetProperties, unsafe.Sizeof(fill)), unsafe.Pointer(&fill)); err != nil {
		return nil, fmt.Errorf("drm: get object properties (fill) obj=%d: %w", objID, err)
	}
	out := make(map[uint32]uint64, len(ids))
	for i, id := range ids {
		out[id] = values[i]
	}
	return out, nil
}

// PropertyName resolves a property ID to its kernel-assigned name
// string (e.g. "FB_ID", "CRTC_X"), used once at startup to build the
// name→ID cache the presenter needs.
func (d *Device) PropertyName(propID uint32) (string, error) {
	req := getProperty{PropID: propID}
	if err := d.ioctl(ioRW(nrGetProperty, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return "", fmt.Errorf("drm: get property %d: %w", propID, err)
	}
	n := 0
	for n < len(req.Name) && req.Name[n] != 0 {
		n++
	}
	return string(req.Name[:n]), nil
}

// PropertySet is one (object ID → property ID → value) triplet for an
// atomic commit.
type PropertySet struct {
	ObjID uint32
	Props map[uint32]uint64
}

// AtomicCommit submits one atomic property update across one or more
// objects (spec §4.F: FB_ID/CRTC_ID/CRTC_X/Y/W/H/SRC_X/Y/W/H in one
// commit per flip).
func (d *Device) AtomicCommit(sets []PropertySet, flags uint32) error {
	var objs []uint32
	var countProps []uint32
	var props []uint32
	var values []uint64

	for _, s := range sets {
		objs = append(objs, s.ObjID)
		countProps = append(countProps, uint32(len(s.Props)))
		for propID, value := range s.Props {
			props = append(props, propID)
			values = append(values, value)
		}
	}
	if len(objs) == 0 {
		return nil
	}

	req := modeAtomic{
		Flags:         flags,
		CountObjs:     uint32(len(objs)),
		ObjsPtr:       uint64(uintptr(unsafe.Pointer(&objs[0]))),
		CountPropsPtr: uint64(uintptr(unsafe.Pointer(&countProps[0]))),
		PropsPtr:      uint64(uintptr(unsafe.Pointer(&props[0]))),
		PropValuesPtr: uint64(uintptr(unsafe.Pointer(&values[0]))),
	}
	if err := d.ioctl(ioRW(nrAtomic, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("drm: atomic commit: %w", err)
	}
	return nil
}
