package descriptors

import (
	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// DSMCCCRC32 carries the checksum of a module. Its tag collides with
// the MPEG registration descriptor, the table specific scope resolves
// it inside the UNM table.
type DSMCCCRC32 struct {
	CRC32 uint32
}

func init() {
	Register(Registration{
		Tag:      DIDDSMCCCRC32,
		Scope:    ScopeTableSpecific,
		TableIDs: []uint8{gocarousel.TIDDSMCCUNM},
		XMLName:  "dsmcc_CRC32_descriptor",
		Factory:  func() Payload { return &DSMCCCRC32{} },
	})
}

func (d *DSMCCCRC32) DescriptorTag() uint8 {
	return DIDDSMCCCRC32
}

func (d *DSMCCCRC32) XMLName() string {
	return "dsmcc_CRC32_descriptor"
}

func (d *DSMCCCRC32) Clear() {
	d.CRC32 = 0
}

func (d *DSMCCCRC32) SerializePayload(buf *buffer.Buffer) {
	buf.PutUInt32(d.CRC32)
}

func (d *DSMCCCRC32) DeserializePayload(buf *buffer.Buffer) {
	d.CRC32 = buf.GetUInt32()
}

func (d *DSMCCCRC32) BuildXML(e *xmlenc.Element) {
	e.SetHexAttr("CRC_32", uint64(d.CRC32))
}

func (d *DSMCCCRC32) AnalyzeXML(e *xmlenc.Element) bool {
	value, ok := e.IntAttr("CRC_32", true, 0)
	if !ok || value > 0xFFFFFFFF {
		return false
	}
	d.CRC32 = uint32(value)
	return true
}
