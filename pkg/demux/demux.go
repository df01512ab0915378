// Package demux reassembles PSI/SI sections from transport stream
// packets and dispatches completed sections and tables to their
// handlers. One demux instance is owned by one host thread, handlers
// run synchronously on the caller's stack.
package demux

import (
	log "github.com/sirupsen/logrus"

	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/psi"
)

// TableHandler receives every completed table
type TableHandler interface {
	HandleTable(*Demux, *psi.BinaryTable)
}

// SectionHandler receives every valid section
type SectionHandler interface {
	HandleSection(*Demux, *psi.Section)
}

type pidContext struct {
	cc      uint8
	ccValid bool
	partial []byte
	tables  map[uint32]*psi.BinaryTable
}

// Demux filters a set of PIDs and maintains per PID section
// reassembly and per table assembly state. Both handlers are
// optional. Handlers must not feed packets back into the same demux.
type Demux struct {
	tableHandler   TableHandler
	sectionHandler SectionHandler
	pids           map[uint16]*pidContext
}

// New creates a demux with the given handlers, either may be nil
func New(tableHandler TableHandler, sectionHandler SectionHandler) *Demux {
	return &Demux{
		tableHandler:   tableHandler,
		sectionHandler: sectionHandler,
		pids:           make(map[uint16]*pidContext),
	}
}

// AddPID starts filtering a PID
func (d *Demux) AddPID(pid uint16) {
	if _, ok := d.pids[pid]; !ok {
		d.pids[pid] = &pidContext{tables: make(map[uint32]*psi.BinaryTable)}
	}
}

// RemovePID stops filtering a PID and discards its buffered state
func (d *Demux) RemovePID(pid uint16) {
	delete(d.pids, pid)
}

// Reset discards all in-progress reassembly but keeps the PID filter
func (d *Demux) Reset() {
	for pid := range d.pids {
		d.pids[pid] = &pidContext{tables: make(map[uint32]*psi.BinaryTable)}
	}
}

// FeedPacket pushes one transport stream packet through the demux.
// Completed sections and tables are dispatched synchronously before
// the call returns, in completion order.
func (d *Demux) FeedPacket(pkt *gocarousel.Packet) {
	if !pkt.HasSync() || pkt.TransportError() {
		return
	}
	pc, filtered := d.pids[pkt.PID()]
	if !filtered {
		return
	}
	payload := pkt.Payload()
	if payload == nil {
		return
	}

	// Continuity accounting : a repeated counter is a duplicate
	// packet, any other gap is a discontinuity that kills the
	// in-progress section
	cc := pkt.ContinuityCounter()
	if pc.ccValid {
		if cc == pc.cc {
			return
		}
		if cc != (pc.cc+1)&0x0F {
			log.Debugf("[DEMUX] discontinuity on PID x%X, dropping partial section", pkt.PID())
			pc.partial = nil
		}
	}
	pc.cc = cc
	pc.ccValid = true

	if pkt.PUSI() {
		if len(payload) < 1 {
			return
		}
		pointer := int(payload[0])
		if 1+pointer > len(payload) {
			pc.partial = nil
			return
		}
		// Bytes before the pointer close the previous section
		if pc.partial != nil && pointer > 0 {
			pc.partial = append(pc.partial, payload[1:1+pointer]...)
			d.drain(pkt.PID(), pc)
		}
		pc.partial = nil
		d.accumulate(pkt.PID(), pc, payload[1+pointer:])
	} else if pc.partial != nil {
		d.accumulate(pkt.PID(), pc, payload)
	}
}

// accumulate appends payload bytes and extracts as many complete
// sections as they contain
func (d *Demux) accumulate(pid uint16, pc *pidContext, data []byte) {
	if len(data) == 0 {
		return
	}
	if pc.partial == nil {
		if data[0] == 0xFF {
			// Stuffing, no further section in this packet
			return
		}
		pc.partial = append([]byte{}, data...)
	} else {
		pc.partial = append(pc.partial, data...)
	}
	d.drain(pid, pc)
}

// drain emits every complete section at the front of the partial
// buffer
func (d *Demux) drain(pid uint16, pc *pidContext) {
	for pc.partial != nil {
		if len(pc.partial) < psi.ShortHeaderSize {
			return
		}
		total := psi.ShortHeaderSize + int(uint16(pc.partial[1]&0x0F)<<8|uint16(pc.partial[2]))
		if total > psi.MaxSizeForTableID(pc.partial[0]) {
			log.Debugf("[DEMUX] oversized section on PID x%X, resynchronizing", pid)
			pc.partial = nil
			return
		}
		if len(pc.partial) < total {
			return
		}
		d.processSection(pid, pc, pc.partial[:total])
		rest := pc.partial[total:]
		if len(rest) == 0 || rest[0] == 0xFF {
			pc.partial = nil
			return
		}
		pc.partial = append([]byte{}, rest...)
	}
}

func (d *Demux) processSection(pid uint16, pc *pidContext, data []byte) {
	sec, err := psi.FromBytes(data, pid)
	if err != nil {
		log.Debugf("[DEMUX] unframeable section on PID x%X : %v", pid, err)
		return
	}
	if !sec.IsValid() {
		log.Debugf("[DEMUX] CRC mismatch on PID x%X table x%X, section discarded",
			pid, sec.TableID())
		return
	}
	if d.sectionHandler != nil {
		d.sectionHandler.HandleSection(d, sec)
	}
	if d.tableHandler == nil {
		return
	}

	key := uint32(sec.TableID())<<16 | uint32(sec.TableIDExtension())
	bt, assembling := pc.tables[key]
	if !assembling {
		bt = psi.NewBinaryTable()
		pc.tables[key] = bt
	}
	if err := bt.AddSection(sec); err != nil {
		log.Debugf("[DEMUX] section rejected on PID x%X : %v", pid, err)
		return
	}
	if bt.IsComplete() {
		delete(pc.tables, key)
		d.tableHandler.HandleTable(d, bt)
	}
}
