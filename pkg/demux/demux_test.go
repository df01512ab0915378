package demux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/psi"
)

type collector struct {
	tables   []*psi.BinaryTable
	sections []*psi.Section
}

func (c *collector) HandleTable(_ *Demux, bt *psi.BinaryTable) {
	c.tables = append(c.tables, bt)
}

func (c *collector) HandleSection(_ *Demux, sec *psi.Section) {
	c.sections = append(c.sections, sec)
}

func makeSections(t *testing.T, count int, version uint8) []*psi.Section {
	t.Helper()
	var sections []*psi.Section
	for i := 0; i < count; i++ {
		payload := make([]byte, 100+i)
		for j := range payload {
			payload[j] = byte(i)
		}
		sec, err := psi.NewLong(0x3B, false, 0x0007, version, true, uint8(i), uint8(count-1), payload)
		require.NoError(t, err)
		sections = append(sections, sec)
	}
	return sections
}

func feed(d *Demux, packets []gocarousel.Packet) {
	for i := range packets {
		d.FeedPacket(&packets[i])
	}
}

func TestSingleSectionTable(t *testing.T) {
	c := &collector{}
	d := New(c, c)
	d.AddPID(0x100)

	sections := makeSections(t, 1, 0)
	packets := NewPacketizer(0x100).Packetize(sections[0], nil)
	feed(d, packets)

	require.Len(t, c.sections, 1)
	require.Len(t, c.tables, 1)
	assert.True(t, c.tables[0].IsComplete())
	assert.Equal(t, sections[0].Bytes(), c.tables[0].SectionAt(0).Bytes())
}

func TestUnfilteredPIDIgnored(t *testing.T) {
	c := &collector{}
	d := New(c, c)
	d.AddPID(0x200)

	sections := makeSections(t, 1, 0)
	packets := NewPacketizer(0x100).Packetize(sections[0], nil)
	feed(d, packets)
	assert.Empty(t, c.sections)
}

func TestMultiSectionAnyDeliveryOrder(t *testing.T) {
	sections := makeSections(t, 3, 1)
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}}
	for _, order := range orders {
		c := &collector{}
		d := New(c, c)
		d.AddPID(0x100)
		packetizer := NewPacketizer(0x100)
		var packets []gocarousel.Packet
		for _, i := range order {
			packets = packetizer.Packetize(sections[i], packets)
		}
		feed(d, packets)

		require.Len(t, c.tables, 1, "order %v", order)
		table := c.tables[0]
		require.True(t, table.IsComplete())
		for i := range sections {
			assert.Equal(t, sections[i].Bytes(), table.SectionAt(i).Bytes())
		}
	}
}

func TestCorruptedSectionQuarantined(t *testing.T) {
	sections := makeSections(t, 2, 2)

	// Corrupt the CRC of section 1 before packetizing
	corrupted := append([]byte{}, sections[1].Bytes()...)
	corrupted[len(corrupted)-1] ^= 0xFF
	badSection, err := psi.FromBytes(corrupted, 0)
	require.NoError(t, err)
	require.False(t, badSection.IsValid())

	c := &collector{}
	d := New(c, c)
	d.AddPID(0x100)
	packetizer := NewPacketizer(0x100)
	var packets []gocarousel.Packet
	packets = packetizer.Packetize(sections[0], packets)
	packets = packetizer.Packetize(badSection, packets)
	feed(d, packets)

	// The corrupted section is discarded, the table stays incomplete
	assert.Len(t, c.sections, 1)
	assert.Empty(t, c.tables)

	// Replaying the section correctly completes the table
	feed(d, packetizer.Packetize(sections[1], nil))
	require.Len(t, c.tables, 1)
	assert.True(t, c.tables[0].IsComplete())
}

func TestDiscontinuityDropsPartialSection(t *testing.T) {
	// A section spanning several packets
	payload := make([]byte, 600)
	sec, err := psi.NewLong(0x3B, false, 1, 0, true, 0, 0, payload)
	require.NoError(t, err)
	packets := NewPacketizer(0x100).Packetize(sec, nil)
	require.Greater(t, len(packets), 2)

	c := &collector{}
	d := New(c, c)
	d.AddPID(0x100)

	// Skip the middle packet : continuity is broken, the partial
	// section must be dropped, no section emitted
	d.FeedPacket(&packets[0])
	d.FeedPacket(&packets[len(packets)-1])
	assert.Empty(t, c.sections)

	// A clean replay still works
	feed(d, NewPacketizer(0x100).Packetize(sec, nil))
	assert.Len(t, c.sections, 1)
}

func TestDuplicatePacketIgnored(t *testing.T) {
	sections := makeSections(t, 1, 0)
	packets := NewPacketizer(0x100).Packetize(sections[0], nil)

	c := &collector{}
	d := New(c, c)
	d.AddPID(0x100)
	for i := range packets {
		d.FeedPacket(&packets[i])
		d.FeedPacket(&packets[i]) // duplicate
	}
	assert.Len(t, c.sections, 1)
	assert.Len(t, c.tables, 1)
}

func TestVersionChangeRestartsAssembly(t *testing.T) {
	v1 := makeSections(t, 2, 1)
	v2 := makeSections(t, 2, 2)

	c := &collector{}
	d := New(c, c)
	d.AddPID(0x100)
	packetizer := NewPacketizer(0x100)

	var packets []gocarousel.Packet
	packets = packetizer.Packetize(v1[0], packets)
	packets = packetizer.Packetize(v2[1], packets)
	packets = packetizer.Packetize(v2[0], packets)
	feed(d, packets)

	require.Len(t, c.tables, 1)
	assert.EqualValues(t, 2, c.tables[0].Version())
}

func TestRemovePIDStopsDelivery(t *testing.T) {
	sections := makeSections(t, 1, 0)
	packets := NewPacketizer(0x100).Packetize(sections[0], nil)

	c := &collector{}
	d := New(c, c)
	d.AddPID(0x100)
	d.RemovePID(0x100)
	feed(d, packets)
	assert.Empty(t, c.sections)
}
