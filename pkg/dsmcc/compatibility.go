package dsmcc

import (
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// CompatibilityDescriptor is the compatibilityDescriptor() block that
// precedes the DSI private data and the DII module loop. Receivers of
// object carousels do not interpret it, the content is round tripped
// opaquely behind its 16 bit length.
type CompatibilityDescriptor struct {
	Data []byte
}

// Clear empties the block
func (c *CompatibilityDescriptor) Clear() {
	c.Data = nil
}

// Serialize writes the length prefix and the raw content
func (c *CompatibilityDescriptor) Serialize(buf *buffer.Buffer) {
	buf.PushWriteWithLeadingLength(16)
	buf.PutBytes(c.Data)
	buf.PopState()
}

// Deserialize reads the length prefix and the raw content
func (c *CompatibilityDescriptor) Deserialize(buf *buffer.Buffer) {
	buf.PushReadSizeFromLength(16)
	c.Data = buf.GetBytesAll()
	buf.PopState()
}

// ToXML adds the opaque content as a hex child when present
func (c *CompatibilityDescriptor) ToXML(parent *xmlenc.Element) {
	parent.AddHexaChild("compatibility_descriptor", c.Data, true)
}

// FromXML restores the opaque content, tolerating a missing child
func (c *CompatibilityDescriptor) FromXML(parent *xmlenc.Element) bool {
	data, ok := parent.HexaChild("compatibility_descriptor")
	if !ok {
		return false
	}
	c.Data = data
	return true
}
