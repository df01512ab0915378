package descriptors

import (
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// PrivateDataSpecifier scopes the private descriptors that follow it
// in the same list.
type PrivateDataSpecifier struct {
	PDS uint32
}

func init() {
	Register(Registration{
		Tag:     DIDPrivateDataSpecifier,
		Scope:   ScopeRegular,
		XMLName: "private_data_specifier_descriptor",
		Factory: func() Payload { return &PrivateDataSpecifier{} },
	})
}

func (d *PrivateDataSpecifier) DescriptorTag() uint8 {
	return DIDPrivateDataSpecifier
}

func (d *PrivateDataSpecifier) XMLName() string {
	return "private_data_specifier_descriptor"
}

func (d *PrivateDataSpecifier) Clear() {
	d.PDS = 0
}

func (d *PrivateDataSpecifier) SerializePayload(buf *buffer.Buffer) {
	buf.PutUInt32(d.PDS)
}

func (d *PrivateDataSpecifier) DeserializePayload(buf *buffer.Buffer) {
	d.PDS = buf.GetUInt32()
}

func (d *PrivateDataSpecifier) BuildXML(e *xmlenc.Element) {
	e.SetHexAttr("private_data_specifier", uint64(d.PDS))
}

func (d *PrivateDataSpecifier) AnalyzeXML(e *xmlenc.Element) bool {
	value, ok := e.IntAttr("private_data_specifier", true, 0)
	if !ok || value > 0xFFFFFFFF {
		return false
	}
	d.PDS = uint32(value)
	return true
}
