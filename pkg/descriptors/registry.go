package descriptors

import (
	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// Scope describes how a descriptor tag is bound to its
// interpretation.
type Scope uint8

const (
	// ScopeRegular tags have one global meaning
	ScopeRegular Scope = iota
	// ScopePrivate tags require a matching private data specifier
	ScopePrivate
	// ScopeTableSpecific tags are reused across tables and resolve
	// against the enclosing table id
	ScopeTableSpecific
)

// Context carries the decoding context accumulated while walking a
// table : the enclosing table id, the active private data specifier
// and the active registration id.
type Context struct {
	TableID        uint8
	PDS            uint32
	RegistrationID uint32
}

// Payload is implemented by every typed descriptor. The payload
// serializers do not write the tag and length prefix, that is the
// responsibility of the list serializer.
type Payload interface {
	DescriptorTag() uint8
	XMLName() string
	Clear()
	SerializePayload(*buffer.Buffer)
	DeserializePayload(*buffer.Buffer)
	BuildXML(*xmlenc.Element)
	AnalyzeXML(*xmlenc.Element) bool
}

// Registration binds a scoped descriptor tag to its factory
type Registration struct {
	Tag      uint8
	Scope    Scope
	TableIDs []uint8 // ScopeTableSpecific only
	PDS      uint32  // ScopePrivate only
	XMLName  string
	Factory  func() Payload
}

// The registry is populated from package init functions and read only
// afterwards, so no locking is required.
var registrations []Registration

// Register adds a descriptor binding. Called from init.
func Register(r Registration) {
	registrations = append(registrations, r)
}

func (r *Registration) matches(tag uint8, ctx Context) bool {
	if r.Tag != tag {
		return false
	}
	switch r.Scope {
	case ScopeTableSpecific:
		for _, tid := range r.TableIDs {
			if tid == ctx.TableID {
				return true
			}
		}
		return false
	case ScopePrivate:
		return r.PDS != 0 && r.PDS == ctx.PDS
	default:
		return true
	}
}

// Lookup resolves a tag in the given context. Table specific entries
// win over private ones, private over regular. Returns nil when no
// entry matches, in which case the descriptor is preserved opaque.
func Lookup(tag uint8, ctx Context) *Registration {
	var private, regular *Registration
	for i := range registrations {
		r := &registrations[i]
		if !r.matches(tag, ctx) {
			continue
		}
		switch r.Scope {
		case ScopeTableSpecific:
			return r
		case ScopePrivate:
			if private == nil {
				private = r
			}
		default:
			if regular == nil {
				regular = r
			}
		}
	}
	if private != nil {
		return private
	}
	return regular
}

// LookupXMLName resolves a typed descriptor by its XML element name
func LookupXMLName(name string) *Registration {
	for i := range registrations {
		if registrations[i].XMLName == name {
			return &registrations[i]
		}
	}
	return nil
}

// Decode instantiates the typed payload of a descriptor. Returns
// nil, false when the tag is unknown in this context or the payload
// does not parse.
func Decode(d Descriptor, ctx Context) (Payload, bool) {
	reg := Lookup(d.Tag, ctx)
	if reg == nil {
		return nil, false
	}
	p := reg.Factory()
	buf := buffer.NewRead(d.Payload)
	p.DeserializePayload(buf)
	if buf.Error() || !buf.EndOfRead() {
		return nil, false
	}
	return p, true
}

// Encode serializes a typed payload into a raw descriptor
func Encode(p Payload) (Descriptor, error) {
	buf := buffer.NewWrite(256)
	p.SerializePayload(buf)
	data := buf.Bytes()
	if buf.Error() || len(data) > 255 {
		return Descriptor{}, ErrDescriptorTooLong
	}
	return Descriptor{Tag: p.DescriptorTag(), Payload: data}, nil
}

// updateContext folds scope marker descriptors into the decoding
// context as the list is walked in order
func updateContext(d Descriptor, ctx *Context) {
	switch d.Tag {
	case DIDPrivateDataSpecifier:
		if len(d.Payload) == 4 {
			ctx.PDS = uint32(d.Payload[0])<<24 | uint32(d.Payload[1])<<16 |
				uint32(d.Payload[2])<<8 | uint32(d.Payload[3])
		}
	case DIDRegistration:
		if ctx.TableID != gocarousel.TIDDSMCCUNM && len(d.Payload) >= 4 {
			ctx.RegistrationID = uint32(d.Payload[0])<<24 | uint32(d.Payload[1])<<16 |
				uint32(d.Payload[2])<<8 | uint32(d.Payload[3])
		}
	}
}

// ToXML appends one child element per descriptor. Descriptors known
// to the registry use their typed representation, anything else is
// preserved as an opaque hex block.
func (dl *DescriptorList) ToXML(parent *xmlenc.Element, ctx Context) {
	for _, d := range dl.items {
		if p, ok := Decode(d, ctx); ok {
			child := parent.AddElement(p.XMLName())
			p.BuildXML(child)
		} else {
			child := parent.AddElement("descriptor")
			child.SetHexAttr("tag", uint64(d.Tag))
			child.AddHexaChild("payload", d.Payload, true)
		}
		updateContext(d, &ctx)
	}
}

// FromXML rebuilds the list from child elements, in document order.
// Elements with a name listed in ignore are skipped, an element that
// is neither a known descriptor, an opaque descriptor nor ignored is
// a failure.
func (dl *DescriptorList) FromXML(parent *xmlenc.Element, ignore ...string) bool {
	dl.Clear()
childLoop:
	for _, child := range parent.Children {
		for _, name := range ignore {
			if child.Name == name {
				continue childLoop
			}
		}
		if child.Name == "descriptor" {
			tag, ok := child.IntAttr("tag", true, 0)
			if !ok || tag > 0xFF {
				return false
			}
			payload, ok := child.HexaChild("payload")
			if !ok {
				return false
			}
			dl.Add(Descriptor{Tag: uint8(tag), Payload: payload})
			continue
		}
		reg := LookupXMLName(child.Name)
		if reg == nil {
			return false
		}
		p := reg.Factory()
		p.Clear()
		if !p.AnalyzeXML(child) {
			return false
		}
		d, err := Encode(p)
		if err != nil {
			return false
		}
		dl.Add(d)
	}
	return true
}
