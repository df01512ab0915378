// Package plugin defines the packet processor contract of the stream
// host and the DSM-CC carousel extractor plugin built on it.
package plugin

import gocarousel "github.com/piotrserafin/gocarousel"

// Status is the verdict of a plugin for one packet
type Status int

const (
	// StatusOK passes the packet downstream unchanged
	StatusOK Status = iota
	// StatusDrop removes the packet from the stream
	StatusDrop
	// StatusNull replaces the packet with a null packet
	StatusNull
	// StatusEnd terminates processing
	StatusEnd
)

// Metadata accompanies each packet through the chain
type Metadata struct {
	// PacketIndex counts packets since the start of the stream
	PacketIndex uint64
}

// ProcessorPlugin is one element of a packet processing chain. The
// host calls GetOptions once after option parsing, brackets the
// stream with Start and Stop, and calls ProcessPacket for every
// packet in between, from a single goroutine.
type ProcessorPlugin interface {
	GetOptions() error
	Start() error
	Stop() error
	ProcessPacket(pkt *gocarousel.Packet, meta *Metadata) Status
}
