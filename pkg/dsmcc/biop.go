package dsmcc

import (
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// Tap associates a carousel data flow with an elementary stream.
// Taps appear in the DII module info and, with a selector, as the
// first tap of a DSM::ConnBinder. ETSI TR 101 202, 4.7.2.5 and
// 4.7.3.2.
type Tap struct {
	ID             uint16
	Use            uint16
	AssociationTag uint16

	// Selector fields, present on the first ConnBinder tap
	SelectorPresent bool
	SelectorType    uint16
	TransactionID   uint32
	Timeout         uint32

	// A selector of unexpected length is preserved opaque
	SelectorData []byte
}

// Standard use value for object carousel taps
const TapUseBIOPObjectUse = 0x0017

// TapUseBIOPDeliveryParaUse is the use of the ConnBinder tap
const TapUseBIOPDeliveryParaUse = 0x0016

const messageSelectorLength = 0x0A

// Serialize writes the tap with its selector when present
func (t *Tap) Serialize(buf *buffer.Buffer) {
	buf.PutUInt16(t.ID)
	buf.PutUInt16(t.Use)
	buf.PutUInt16(t.AssociationTag)
	switch {
	case t.SelectorData != nil:
		if len(t.SelectorData) > 0xFF {
			buf.SetUserError()
			return
		}
		buf.PutUInt8(uint8(len(t.SelectorData)))
		buf.PutBytes(t.SelectorData)
	case t.SelectorPresent:
		buf.PutUInt8(messageSelectorLength)
		buf.PutUInt16(t.SelectorType)
		buf.PutUInt32(t.TransactionID)
		buf.PutUInt32(t.Timeout)
	default:
		buf.PutUInt8(0x00)
	}
}

// Deserialize reads the tap, keeping a selector of unknown shape as
// opaque bytes
func (t *Tap) Deserialize(buf *buffer.Buffer) {
	t.ID = buf.GetUInt16()
	t.Use = buf.GetUInt16()
	t.AssociationTag = buf.GetUInt16()
	selectorLength := buf.GetUInt8()
	switch selectorLength {
	case 0:
		t.SelectorPresent = false
	case messageSelectorLength:
		t.SelectorPresent = true
		t.SelectorType = buf.GetUInt16()
		t.TransactionID = buf.GetUInt32()
		t.Timeout = buf.GetUInt32()
	default:
		t.SelectorData = buf.GetBytes(int(selectorLength))
	}
}

// ToXML appends a tap element to parent
func (t *Tap) ToXML(parent *xmlenc.Element) {
	e := parent.AddElement("tap")
	e.SetHexAttr("id", uint64(t.ID))
	e.SetHexAttr("use", uint64(t.Use))
	e.SetHexAttr("association_tag", uint64(t.AssociationTag))
	if t.SelectorData != nil {
		e.AddHexaChild("selector", t.SelectorData, true)
	} else if t.SelectorPresent {
		e.SetHexAttr("selector_type", uint64(t.SelectorType))
		e.SetHexAttr("transaction_id", uint64(t.TransactionID))
		e.SetIntAttr("timeout", uint64(t.Timeout))
	}
}

// FromXML reads a tap element
func (t *Tap) FromXML(e *xmlenc.Element) bool {
	id, ok1 := e.IntAttr("id", true, 0)
	use, ok2 := e.IntAttr("use", true, 0)
	assoc, ok3 := e.IntAttr("association_tag", true, 0)
	if !ok1 || !ok2 || !ok3 || id > 0xFFFF || use > 0xFFFF || assoc > 0xFFFF {
		return false
	}
	t.ID = uint16(id)
	t.Use = uint16(use)
	t.AssociationTag = uint16(assoc)
	if data, ok := e.HexaChild("selector"); ok && data != nil {
		t.SelectorData = data
		return true
	}
	if selType, present := e.IntAttr("selector_type", true, 0); present {
		transaction, ok4 := e.IntAttr("transaction_id", true, 0)
		timeout, ok5 := e.IntAttr("timeout", true, 0)
		if !ok4 || !ok5 || selType > 0xFFFF || transaction > 0xFFFFFFFF || timeout > 0xFFFFFFFF {
			return false
		}
		t.SelectorPresent = true
		t.SelectorType = uint16(selType)
		t.TransactionID = uint32(transaction)
		t.Timeout = uint32(timeout)
	}
	return true
}

// LiteComponent is one entry of a BIOP profile body. Object location
// and ConnBinder components are decoded natively, anything else is
// preserved opaque.
type LiteComponent struct {
	ComponentIDTag uint32

	// BIOP::ObjectLocation context
	CarouselID    uint32
	ModuleID      uint16
	VersionMajor  uint8
	VersionMinor  uint8
	ObjectKeyData []byte

	// DSM::ConnBinder context
	Taps []Tap

	// UnknownComponent context
	ComponentData []byte
}

// Serialize writes the component behind its 8 bit length
func (lc *LiteComponent) Serialize(buf *buffer.Buffer) {
	buf.PutUInt32(lc.ComponentIDTag)
	buf.PushWriteWithLeadingLength(8)
	switch lc.ComponentIDTag {
	case TagObjectLocation:
		buf.PutUInt32(lc.CarouselID)
		buf.PutUInt16(lc.ModuleID)
		buf.PutUInt8(lc.VersionMajor)
		buf.PutUInt8(lc.VersionMinor)
		if len(lc.ObjectKeyData) > 0xFF {
			buf.SetUserError()
			return
		}
		buf.PutUInt8(uint8(len(lc.ObjectKeyData)))
		buf.PutBytes(lc.ObjectKeyData)
	case TagConnBinder:
		buf.PutUInt8(uint8(len(lc.Taps)))
		for i := range lc.Taps {
			lc.Taps[i].Serialize(buf)
		}
	default:
		buf.PutBytes(lc.ComponentData)
	}
	buf.PopState()
}

// Deserialize reads the component behind its 8 bit length
func (lc *LiteComponent) Deserialize(buf *buffer.Buffer) {
	lc.ComponentIDTag = buf.GetUInt32()
	buf.PushReadSizeFromLength(8)
	switch lc.ComponentIDTag {
	case TagObjectLocation:
		lc.CarouselID = buf.GetUInt32()
		lc.ModuleID = buf.GetUInt16()
		lc.VersionMajor = buf.GetUInt8()
		lc.VersionMinor = buf.GetUInt8()
		lc.ObjectKeyData = buf.GetBytes(int(buf.GetUInt8()))
	case TagConnBinder:
		tapsCount := int(buf.GetUInt8())
		for i := 0; i < tapsCount && !buf.Error(); i++ {
			var tap Tap
			tap.Deserialize(buf)
			lc.Taps = append(lc.Taps, tap)
		}
	default:
		lc.ComponentData = buf.GetBytesAll()
	}
	buf.PopState()
}

// ToXML appends a lite_component element to parent
func (lc *LiteComponent) ToXML(parent *xmlenc.Element) {
	e := parent.AddElement("lite_component")
	e.SetHexAttr("component_id_tag", uint64(lc.ComponentIDTag))
	switch lc.ComponentIDTag {
	case TagObjectLocation:
		loc := e.AddElement("BIOP_object_location")
		loc.SetHexAttr("carousel_id", uint64(lc.CarouselID))
		loc.SetHexAttr("module_id", uint64(lc.ModuleID))
		loc.SetIntAttr("version_major", uint64(lc.VersionMajor))
		loc.SetIntAttr("version_minor", uint64(lc.VersionMinor))
		loc.AddHexaChild("object_key_data", lc.ObjectKeyData, true)
	case TagConnBinder:
		binder := e.AddElement("DSM_conn_binder")
		for i := range lc.Taps {
			lc.Taps[i].ToXML(binder)
		}
	default:
		unknown := e.AddElement("Unknown_component")
		unknown.AddHexaChild("component_data", lc.ComponentData, true)
	}
}

// FromXML reads a lite_component element
func (lc *LiteComponent) FromXML(e *xmlenc.Element) bool {
	tag, ok := e.IntAttr("component_id_tag", true, 0)
	if !ok || tag > 0xFFFFFFFF {
		return false
	}
	lc.ComponentIDTag = uint32(tag)
	switch lc.ComponentIDTag {
	case TagObjectLocation:
		loc := e.FindFirstChild("BIOP_object_location")
		if loc == nil {
			return false
		}
		carousel, ok1 := loc.IntAttr("carousel_id", true, 0)
		module, ok2 := loc.IntAttr("module_id", true, 0)
		major, ok3 := loc.IntAttr("version_major", false, 0x01)
		minor, ok4 := loc.IntAttr("version_minor", false, 0x00)
		key, ok5 := loc.HexaChild("object_key_data")
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 ||
			carousel > 0xFFFFFFFF || module > 0xFFFF || major > 0xFF || minor > 0xFF {
			return false
		}
		lc.CarouselID = uint32(carousel)
		lc.ModuleID = uint16(module)
		lc.VersionMajor = uint8(major)
		lc.VersionMinor = uint8(minor)
		lc.ObjectKeyData = key
	case TagConnBinder:
		binder := e.FindFirstChild("DSM_conn_binder")
		if binder == nil {
			return false
		}
		for _, xtap := range binder.ChildrenByName("tap") {
			var tap Tap
			if !tap.FromXML(xtap) {
				return false
			}
			lc.Taps = append(lc.Taps, tap)
		}
	default:
		unknown := e.FindFirstChild("Unknown_component")
		if unknown == nil {
			return false
		}
		data, ok := unknown.HexaChild("component_data")
		if !ok {
			return false
		}
		lc.ComponentData = data
	}
	return true
}

// TaggedProfile is one profile of an IOR. The BIOP profile body is
// decoded natively, the Lite Options profile body and unknown tags
// are preserved opaque.
type TaggedProfile struct {
	ProfileIDTag         uint32
	ProfileDataByteOrder uint8
	LiteComponents       []LiteComponent
	ProfileData          []byte
}

// Serialize writes the profile behind its 32 bit length
func (tp *TaggedProfile) Serialize(buf *buffer.Buffer) {
	buf.PutUInt32(tp.ProfileIDTag)
	buf.PushWriteWithLeadingLength(32)
	buf.PutUInt8(tp.ProfileDataByteOrder)
	if tp.ProfileIDTag == TagBIOP {
		buf.PutUInt8(uint8(len(tp.LiteComponents)))
		for i := range tp.LiteComponents {
			tp.LiteComponents[i].Serialize(buf)
		}
	} else {
		buf.PutBytes(tp.ProfileData)
	}
	buf.PopState()
}

// Deserialize reads the profile behind its 32 bit length. The byte
// order byte of a BIOP profile body must be zero (big endian),
// anything else is an unsupported encoding and poisons the buffer so
// the whole message is discarded.
func (tp *TaggedProfile) Deserialize(buf *buffer.Buffer) {
	tp.ProfileIDTag = buf.GetUInt32()
	buf.PushReadSizeFromLength(32)
	tp.ProfileDataByteOrder = buf.GetUInt8()
	if tp.ProfileIDTag == TagBIOP {
		if tp.ProfileDataByteOrder != 0x00 {
			buf.SetUserError()
			return
		}
		componentCount := int(buf.GetUInt8())
		for i := 0; i < componentCount && !buf.Error(); i++ {
			var lc LiteComponent
			lc.Deserialize(buf)
			tp.LiteComponents = append(tp.LiteComponents, lc)
		}
	} else {
		tp.ProfileData = buf.GetBytesAll()
	}
	buf.PopState()
}

// ToXML appends a tagged_profile element to parent
func (tp *TaggedProfile) ToXML(parent *xmlenc.Element) {
	e := parent.AddElement("tagged_profile")
	e.SetHexAttr("profile_id_tag", uint64(tp.ProfileIDTag))
	e.SetHexAttr("profile_data_byte_order", uint64(tp.ProfileDataByteOrder))
	switch tp.ProfileIDTag {
	case TagBIOP:
		body := e.AddElement("BIOP_profile_body")
		for i := range tp.LiteComponents {
			tp.LiteComponents[i].ToXML(body)
		}
	case TagLiteOptions:
		body := e.AddElement("Lite_options_profile_body")
		body.AddHexaChild("profile_data", tp.ProfileData, true)
	default:
		body := e.AddElement("Unknown_profile_body")
		body.AddHexaChild("profile_data", tp.ProfileData, true)
	}
}

// FromXML reads a tagged_profile element
func (tp *TaggedProfile) FromXML(e *xmlenc.Element) bool {
	tag, ok1 := e.IntAttr("profile_id_tag", true, 0)
	order, ok2 := e.IntAttr("profile_data_byte_order", false, 0)
	if !ok1 || !ok2 || tag > 0xFFFFFFFF || order > 0xFF {
		return false
	}
	tp.ProfileIDTag = uint32(tag)
	tp.ProfileDataByteOrder = uint8(order)
	switch tp.ProfileIDTag {
	case TagBIOP:
		body := e.FindFirstChild("BIOP_profile_body")
		if body == nil {
			return false
		}
		for _, xcomp := range body.ChildrenByName("lite_component") {
			var lc LiteComponent
			if !lc.FromXML(xcomp) {
				return false
			}
			tp.LiteComponents = append(tp.LiteComponents, lc)
		}
	case TagLiteOptions:
		body := e.FindFirstChild("Lite_options_profile_body")
		if body == nil {
			return false
		}
		data, ok := body.HexaChild("profile_data")
		if !ok {
			return false
		}
		tp.ProfileData = data
	default:
		body := e.FindFirstChild("Unknown_profile_body")
		if body == nil {
			return false
		}
		data, ok := body.HexaChild("profile_data")
		if !ok {
			return false
		}
		tp.ProfileData = data
	}
	return true
}

// IOR is the Interoperable Object Reference pointing to the service
// gateway of a carousel. CDR encoding restricted to big endian : the
// variable length type_id is followed by forward alignment to a 4
// byte boundary.
type IOR struct {
	TypeID         []byte
	TaggedProfiles []TaggedProfile
}

// Clear empties the IOR
func (ior *IOR) Clear() {
	ior.TypeID = nil
	ior.TaggedProfiles = nil
}

// Serialize writes the IOR with CDR alignment
func (ior *IOR) Serialize(buf *buffer.Buffer) {
	buf.PutUInt32(uint32(len(ior.TypeID)))
	buf.PutBytes(ior.TypeID)
	if len(ior.TypeID)%4 != 0 {
		for i := 0; i < 4-len(ior.TypeID)%4; i++ {
			buf.PutUInt8(0)
		}
	}
	buf.PutUInt32(uint32(len(ior.TaggedProfiles)))
	for i := range ior.TaggedProfiles {
		ior.TaggedProfiles[i].Serialize(buf)
	}
}

// Deserialize reads the IOR with CDR alignment
func (ior *IOR) Deserialize(buf *buffer.Buffer) {
	typeIDLength := int(buf.GetUInt32())
	ior.TypeID = buf.GetBytes(typeIDLength)
	if typeIDLength%4 != 0 {
		buf.SkipBytes(4 - typeIDLength%4)
	}
	profilesCount := int(buf.GetUInt32())
	for i := 0; i < profilesCount && !buf.Error(); i++ {
		var tp TaggedProfile
		tp.Deserialize(buf)
		ior.TaggedProfiles = append(ior.TaggedProfiles, tp)
	}
}

// ToXML appends an IOR element to parent
func (ior *IOR) ToXML(parent *xmlenc.Element) {
	e := parent.AddElement("IOR")
	e.AddHexaChild("type_id", ior.TypeID, true)
	for i := range ior.TaggedProfiles {
		ior.TaggedProfiles[i].ToXML(e)
	}
}

// FromXML reads an IOR element
func (ior *IOR) FromXML(e *xmlenc.Element) bool {
	typeID, ok := e.HexaChild("type_id")
	if !ok {
		return false
	}
	ior.TypeID = typeID
	for _, xprofile := range e.ChildrenByName("tagged_profile") {
		var tp TaggedProfile
		if !tp.FromXML(xprofile) {
			return false
		}
		ior.TaggedProfiles = append(ior.TaggedProfiles, tp)
	}
	return true
}

// ObjectLocation returns the first BIOP object location component of
// the service gateway, nil when the IOR carries none
func (ior *IOR) ObjectLocation() *LiteComponent {
	for i := range ior.TaggedProfiles {
		tp := &ior.TaggedProfiles[i]
		if tp.ProfileIDTag != TagBIOP {
			continue
		}
		for j := range tp.LiteComponents {
			if tp.LiteComponents[j].ComponentIDTag == TagObjectLocation {
				return &tp.LiteComponents[j]
			}
		}
	}
	return nil
}
