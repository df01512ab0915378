package descriptors

import (
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// MPEGRegistration identifies the format of private data that follows
// it. Inside the UNM table its tag is shared with the DSM-CC CRC32
// descriptor, whose table specific binding wins the lookup there.
type MPEGRegistration struct {
	FormatIdentifier         uint32
	AdditionalIdentification []byte
}

func init() {
	Register(Registration{
		Tag:     DIDRegistration,
		Scope:   ScopeRegular,
		XMLName: "registration_descriptor",
		Factory: func() Payload { return &MPEGRegistration{} },
	})
}

func (d *MPEGRegistration) DescriptorTag() uint8 {
	return DIDRegistration
}

func (d *MPEGRegistration) XMLName() string {
	return "registration_descriptor"
}

func (d *MPEGRegistration) Clear() {
	*d = MPEGRegistration{}
}

func (d *MPEGRegistration) SerializePayload(buf *buffer.Buffer) {
	buf.PutUInt32(d.FormatIdentifier)
	buf.PutBytes(d.AdditionalIdentification)
}

func (d *MPEGRegistration) DeserializePayload(buf *buffer.Buffer) {
	d.FormatIdentifier = buf.GetUInt32()
	d.AdditionalIdentification = buf.GetBytesAll()
}

func (d *MPEGRegistration) BuildXML(e *xmlenc.Element) {
	e.SetHexAttr("format_identifier", uint64(d.FormatIdentifier))
	e.AddHexaChild("additional_identification_info", d.AdditionalIdentification, true)
}

func (d *MPEGRegistration) AnalyzeXML(e *xmlenc.Element) bool {
	value, ok := e.IntAttr("format_identifier", true, 0)
	if !ok || value > 0xFFFFFFFF {
		return false
	}
	d.FormatIdentifier = uint32(value)
	extra, ok := e.HexaChild("additional_identification_info")
	if !ok {
		return false
	}
	d.AdditionalIdentification = extra
	return true
}
