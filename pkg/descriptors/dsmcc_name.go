package descriptors

import (
	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// DSMCCName labels a module inside the DII module descriptor loop.
type DSMCCName struct {
	Name string
}

func init() {
	Register(Registration{
		Tag:      DIDDSMCCName,
		Scope:    ScopeTableSpecific,
		TableIDs: []uint8{gocarousel.TIDDSMCCUNM},
		XMLName:  "dsmcc_name_descriptor",
		Factory:  func() Payload { return &DSMCCName{} },
	})
}

func (d *DSMCCName) DescriptorTag() uint8 {
	return DIDDSMCCName
}

func (d *DSMCCName) XMLName() string {
	return "dsmcc_name_descriptor"
}

func (d *DSMCCName) Clear() {
	d.Name = ""
}

func (d *DSMCCName) SerializePayload(buf *buffer.Buffer) {
	buf.PutBytes([]byte(d.Name))
}

func (d *DSMCCName) DeserializePayload(buf *buffer.Buffer) {
	d.Name = string(buf.GetBytesAll())
}

func (d *DSMCCName) BuildXML(e *xmlenc.Element) {
	e.SetAttr("name", d.Name)
}

func (d *DSMCCName) AnalyzeXML(e *xmlenc.Element) bool {
	for _, a := range e.Attrs {
		if a.Name == "name" {
			d.Name = a.Value
			return true
		}
	}
	return false
}
