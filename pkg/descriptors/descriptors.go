// Package descriptors implements PSI/SI descriptor lists and the
// process wide registry that binds descriptor tags, scoped by table
// or private data specifier, to their typed implementations.
package descriptors

import (
	"errors"

	"github.com/piotrserafin/gocarousel/pkg/buffer"
)

// Descriptor is a raw (tag, payload) pair. Interpretation depends on
// the enclosing table and the active private data specifier, see the
// registry.
type Descriptor struct {
	Tag     uint8
	Payload []byte
}

var ErrDescriptorTooLong = errors.New("descriptor payload exceeds 255 bytes")

// DescriptorList is an ordered sequence of descriptors belonging to a
// parent table or loop entry. Order is preserved on serialization
// because some descriptors act as scope markers for the ones that
// follow.
type DescriptorList struct {
	items []Descriptor
}

// Add appends a raw descriptor
func (dl *DescriptorList) Add(d Descriptor) {
	dl.items = append(dl.items, d)
}

// AddPayload serializes a typed descriptor payload and appends it
func (dl *DescriptorList) AddPayload(p Payload) error {
	d, err := Encode(p)
	if err != nil {
		return err
	}
	dl.Add(d)
	return nil
}

// Count returns the number of descriptors in the list
func (dl *DescriptorList) Count() int {
	return len(dl.items)
}

// At returns the i-th descriptor
func (dl *DescriptorList) At(i int) Descriptor {
	return dl.items[i]
}

// Search returns the index of the first descriptor with the given
// tag, Count() when absent
func (dl *DescriptorList) Search(tag uint8) int {
	for i, d := range dl.items {
		if d.Tag == tag {
			return i
		}
	}
	return len(dl.items)
}

// Clear empties the list
func (dl *DescriptorList) Clear() {
	dl.items = nil
}

// BinarySize is the serialized size of the list in bytes
func (dl *DescriptorList) BinarySize() int {
	size := 0
	for _, d := range dl.items {
		size += 2 + len(d.Payload)
	}
	return size
}

// Serialize writes the list as a concatenation of tag, length,
// payload triples
func (dl *DescriptorList) Serialize(buf *buffer.Buffer) {
	for _, d := range dl.items {
		if len(d.Payload) > 255 {
			buf.SetUserError()
			return
		}
		buf.PutUInt8(d.Tag)
		buf.PutUInt8(uint8(len(d.Payload)))
		buf.PutBytes(d.Payload)
	}
}

// Deserialize reads descriptors until the readable window is
// exhausted. The caller narrows the window to the descriptor loop,
// typically with PushReadSizeFromLength.
func (dl *DescriptorList) Deserialize(buf *buffer.Buffer) {
	for !buf.Error() && buf.RemainingReadBytes() >= 2 {
		tag := buf.GetUInt8()
		length := int(buf.GetUInt8())
		payload := buf.GetBytes(length)
		if buf.Error() {
			return
		}
		dl.Add(Descriptor{Tag: tag, Payload: payload})
	}
	if buf.RemainingReadBytes() != 0 {
		buf.SetUserError()
	}
}
