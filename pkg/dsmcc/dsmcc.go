// Package dsmcc implements the DSM-CC object carousel download
// protocol : the User-to-Network message tables (DSI, DII), the
// Download Data message table (DDB), the CORBA derived IOR structures
// of the service gateway and the carousel controller state machine
// that reassembles modules from the broadcast.
package dsmcc

import (
	"errors"

	"github.com/piotrserafin/gocarousel/pkg/buffer"
)

const (
	// MessageHeaderSize is the fixed dsmccMessageHeader without
	// adaptation header
	MessageHeaderSize = 12
	// ProtocolDiscriminator marks MPEG-2 DSM-CC messages
	ProtocolDiscriminator = 0x11
	// TypeDownloadMessage is the dsmccType of U-N download messages
	TypeDownloadMessage = 0x03

	// MessageIDDII announces the modules of a carousel
	MessageIDDII = 0x1002
	// MessageIDDDB carries one block of one module
	MessageIDDDB = 0x1003
	// MessageIDDSI announces a carousel and its service gateway
	MessageIDDSI = 0x1006

	// ServerIDSize is the fixed size of the DSI server_id field,
	// filled with 0xFF
	ServerIDSize = 20

	// DefaultBlockSize is the largest block that fits one section
	// next to the download data header
	DefaultBlockSize = 4066
)

// Tags of the CDR encoded structures nested in an IOR
const (
	TagLiteOptions    uint32 = 0x49534F05
	TagBIOP           uint32 = 0x49534F06
	TagConnBinder     uint32 = 0x49534F40
	TagObjectLocation uint32 = 0x49534F50
)

var (
	ErrBadHeader       = errors.New("not a DSM-CC download message header")
	ErrBadMessageID    = errors.New("unexpected DSM-CC message id")
	ErrBadPayload      = errors.New("malformed DSM-CC message payload")
	ErrTableIncomplete = errors.New("table is not complete")
	ErrTableID         = errors.New("wrong table id for this message type")
	ErrModuleBudget    = errors.New("announced module sizes exceed the configured budget")
)

// MessageHeader is the fixed prefix shared by all DSM-CC download
// messages. For DSI and DII the 32 bit field carries a transaction
// id, for DDB a download id.
type MessageHeader struct {
	ProtocolDiscriminator uint8
	DsmccType             uint8
	MessageID             uint16
	TransactionID         uint32
}

// Clear resets the header to the constant discriminator and type
func (h *MessageHeader) Clear() {
	h.ProtocolDiscriminator = ProtocolDiscriminator
	h.DsmccType = TypeDownloadMessage
	h.MessageID = 0
	h.TransactionID = 0
}

// IsValid checks the fixed discriminator and type values
func (h *MessageHeader) IsValid() bool {
	return h.ProtocolDiscriminator == ProtocolDiscriminator && h.DsmccType == TypeDownloadMessage
}

// Serialize writes the first 8 header bytes. The reserved byte,
// adaptation length and message length that complete the 12 byte
// header are written by the table serializers around their
// length-prefixed region.
func (h *MessageHeader) Serialize(buf *buffer.Buffer) {
	buf.PutUInt8(h.ProtocolDiscriminator)
	buf.PutUInt8(h.DsmccType)
	buf.PutUInt16(h.MessageID)
	buf.PutUInt32(h.TransactionID)
}

// Deserialize reads the first 8 header bytes
func (h *MessageHeader) Deserialize(buf *buffer.Buffer) {
	h.ProtocolDiscriminator = buf.GetUInt8()
	h.DsmccType = buf.GetUInt8()
	h.MessageID = buf.GetUInt16()
	h.TransactionID = buf.GetUInt32()
}
