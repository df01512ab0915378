package descriptors

import (
	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// DSMCCCompressedModule announces that a module is transmitted in
// compressed form. The carousel controller scans the DII module
// descriptor loop for it and reports the flag and original size to
// the completion callback.
type DSMCCCompressedModule struct {
	CompressionMethod uint8
	OriginalSize      uint32
}

func init() {
	Register(Registration{
		Tag:      DIDDSMCCCompressedModule,
		Scope:    ScopeTableSpecific,
		TableIDs: []uint8{gocarousel.TIDDSMCCUNM},
		XMLName:  "dsmcc_compressed_module_descriptor",
		Factory:  func() Payload { return &DSMCCCompressedModule{} },
	})
}

func (d *DSMCCCompressedModule) DescriptorTag() uint8 {
	return DIDDSMCCCompressedModule
}

func (d *DSMCCCompressedModule) XMLName() string {
	return "dsmcc_compressed_module_descriptor"
}

func (d *DSMCCCompressedModule) Clear() {
	*d = DSMCCCompressedModule{}
}

func (d *DSMCCCompressedModule) SerializePayload(buf *buffer.Buffer) {
	buf.PutUInt8(d.CompressionMethod)
	buf.PutUInt32(d.OriginalSize)
}

func (d *DSMCCCompressedModule) DeserializePayload(buf *buffer.Buffer) {
	d.CompressionMethod = buf.GetUInt8()
	d.OriginalSize = buf.GetUInt32()
}

func (d *DSMCCCompressedModule) BuildXML(e *xmlenc.Element) {
	e.SetHexAttr("compression_method", uint64(d.CompressionMethod))
	e.SetIntAttr("original_size", uint64(d.OriginalSize))
}

func (d *DSMCCCompressedModule) AnalyzeXML(e *xmlenc.Element) bool {
	method, ok1 := e.IntAttr("compression_method", true, 0)
	size, ok2 := e.IntAttr("original_size", true, 0)
	if !ok1 || !ok2 || method > 0xFF || size > 0xFFFFFFFF {
		return false
	}
	d.CompressionMethod = uint8(method)
	d.OriginalSize = uint32(size)
	return true
}
