package demux

import (
	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/psi"
)

// Packetizer turns sections back into transport stream packets, the
// inverse of the demux. Every section starts a new packet with the
// payload unit start indicator set and a zero pointer field, the tail
// of the last packet is stuffed with 0xFF.
type Packetizer struct {
	pid uint16
	cc  uint8
}

// NewPacketizer creates a packetizer for one PID
func NewPacketizer(pid uint16) *Packetizer {
	return &Packetizer{pid: pid}
}

// Packetize appends the packets carrying one section
func (p *Packetizer) Packetize(sec *psi.Section, out []gocarousel.Packet) []gocarousel.Packet {
	data := sec.Bytes()
	first := true
	for len(data) > 0 {
		var pkt gocarousel.Packet
		pkt[0] = gocarousel.SyncByte
		pkt[1] = uint8(p.pid >> 8)
		pkt[2] = uint8(p.pid)
		pkt[3] = 0x10 | p.cc
		p.cc = (p.cc + 1) & 0x0F

		body := pkt[4:]
		if first {
			pkt[1] |= 0x40 // PUSI
			body[0] = 0x00 // pointer field
			body = body[1:]
			first = false
		}
		n := copy(body, data)
		data = data[n:]
		for i := n; i < len(body); i++ {
			body[i] = 0xFF
		}
		out = append(out, pkt)
	}
	return out
}

// PacketizeTable appends the packets carrying every section of a
// table, in section order
func (p *Packetizer) PacketizeTable(bt *psi.BinaryTable, out []gocarousel.Packet) []gocarousel.Packet {
	for i := 0; i < bt.SectionCount(); i++ {
		out = p.Packetize(bt.SectionAt(i), out)
	}
	return out
}
