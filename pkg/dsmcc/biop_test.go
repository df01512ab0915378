package dsmcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

func sampleIOR() IOR {
	return IOR{
		// 3 bytes, forces one padding byte for CDR alignment
		TypeID: []byte{0x73, 0x72, 0x67},
		TaggedProfiles: []TaggedProfile{
			{
				ProfileIDTag: TagBIOP,
				LiteComponents: []LiteComponent{
					{
						ComponentIDTag: TagObjectLocation,
						CarouselID:     0x00000001,
						ModuleID:       0x0001,
						VersionMajor:   0x01,
						VersionMinor:   0x00,
						ObjectKeyData:  []byte{0x00, 0x00, 0x00, 0x00},
					},
					{
						ComponentIDTag: TagConnBinder,
						Taps: []Tap{{
							ID:              0x0000,
							Use:             TapUseBIOPDeliveryParaUse,
							AssociationTag:  0x000B,
							SelectorPresent: true,
							SelectorType:    0x0001,
							TransactionID:   0xCAFE0001,
							Timeout:         0x0000FFFF,
						}},
					},
				},
			},
			{
				ProfileIDTag: TagLiteOptions,
				ProfileData:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
			},
		},
	}
}

func TestIORBinaryRoundTrip(t *testing.T) {
	ior := sampleIOR()

	w := buffer.NewWrite(512)
	ior.Serialize(w)
	require.False(t, w.Error())
	require.Equal(t, 0, w.StackDepth())
	image := w.Bytes()

	// type_id length word, the bytes and one padding byte
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x03, 0x73, 0x72, 0x67, 0x00}, image[:8])

	var back IOR
	r := buffer.NewRead(image)
	back.Deserialize(r)
	require.False(t, r.Error())
	require.Equal(t, 0, r.StackDepth())
	assert.True(t, r.EndOfRead())
	assert.Equal(t, ior, back)

	// Re-encoding is byte identical
	w2 := buffer.NewWrite(512)
	back.Serialize(w2)
	assert.Equal(t, image, w2.Bytes())
}

func TestIORAlignedTypeIDHasNoPadding(t *testing.T) {
	ior := IOR{TypeID: []byte{1, 2, 3, 4}}
	w := buffer.NewWrite(64)
	ior.Serialize(w)
	require.False(t, w.Error())
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x04, 1, 2, 3, 4, 0x00, 0x00, 0x00, 0x00}, w.Bytes())
}

func TestUnknownProfilePreserved(t *testing.T) {
	profile := TaggedProfile{ProfileIDTag: 0x12345678, ProfileData: []byte{9, 8, 7}}
	w := buffer.NewWrite(64)
	profile.Serialize(w)
	require.False(t, w.Error())

	var back TaggedProfile
	r := buffer.NewRead(w.Bytes())
	back.Deserialize(r)
	require.False(t, r.Error())
	assert.Equal(t, profile, back)
}

func TestUnknownComponentPreserved(t *testing.T) {
	component := LiteComponent{ComponentIDTag: 0x49534F99, ComponentData: []byte{1, 2}}
	w := buffer.NewWrite(64)
	component.Serialize(w)
	require.False(t, w.Error())

	var back LiteComponent
	r := buffer.NewRead(w.Bytes())
	back.Deserialize(r)
	require.False(t, r.Error())
	assert.Equal(t, component, back)
}

func TestBIOPByteOrderMustBeBigEndian(t *testing.T) {
	profile := TaggedProfile{ProfileIDTag: TagBIOP}
	w := buffer.NewWrite(64)
	profile.Serialize(w)
	image := w.Bytes()
	// Patch the byte order byte, offset : tag(4) + length(4)
	image[8] = 0x01

	var back TaggedProfile
	r := buffer.NewRead(image)
	back.Deserialize(r)
	assert.True(t, r.Error())
}

func TestTapWithoutSelector(t *testing.T) {
	tap := Tap{ID: 0, Use: TapUseBIOPObjectUse, AssociationTag: 0x0C}
	w := buffer.NewWrite(16)
	tap.Serialize(w)
	require.False(t, w.Error())
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x17, 0x00, 0x0C, 0x00}, w.Bytes())

	var back Tap
	r := buffer.NewRead(w.Bytes())
	back.Deserialize(r)
	require.False(t, r.Error())
	assert.Equal(t, tap, back)
}

func TestTapOpaqueSelectorPreserved(t *testing.T) {
	image := []byte{0x00, 0x01, 0x00, 0x16, 0x00, 0x0B, 0x03, 0xAA, 0xBB, 0xCC}
	var tap Tap
	r := buffer.NewRead(image)
	tap.Deserialize(r)
	require.False(t, r.Error())
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, tap.SelectorData)

	w := buffer.NewWrite(16)
	tap.Serialize(w)
	assert.Equal(t, image, w.Bytes())
}

func TestIORXMLRoundTrip(t *testing.T) {
	ior := sampleIOR()
	parent := xmlenc.NewElement("DSI")
	ior.ToXML(parent)

	element := parent.FindFirstChild("IOR")
	require.NotNil(t, element)

	var back IOR
	require.True(t, back.FromXML(element))
	assert.Equal(t, ior, back)
}

func TestGatewayObjectLocation(t *testing.T) {
	ior := sampleIOR()
	location := ior.ObjectLocation()
	require.NotNil(t, location)
	assert.EqualValues(t, 0x0001, location.ModuleID)
	assert.EqualValues(t, 0x00000001, location.CarouselID)
}
