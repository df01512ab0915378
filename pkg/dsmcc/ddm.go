package dsmcc

import (
	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/psi"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

const ddmXMLName = "DSMCC_download_data_message"

func init() {
	psi.RegisterTable(ddmXMLName, []uint8{gocarousel.TIDDSMCCDDM},
		func() psi.Table { return NewDownloadDataMessage() })
}

// DownloadDataMessage is the DSM-CC DDB table (table id 0x3C). The
// section table id extension carries the module id and the section
// number the block number, so each section is one block of the
// module. BlockData is the concatenation of all blocks in section
// order.
type DownloadDataMessage struct {
	Version uint8
	Current bool
	Header  MessageHeader

	ModuleID      uint16
	ModuleVersion uint8
	BlockData     []byte
}

// NewDownloadDataMessage returns a cleared message
func NewDownloadDataMessage() *DownloadDataMessage {
	ddm := &DownloadDataMessage{}
	ddm.Clear()
	return ddm
}

// Clear resets all content
func (ddm *DownloadDataMessage) Clear() {
	ddm.Version = 0
	ddm.Current = true
	ddm.Header.Clear()
	ddm.Header.MessageID = MessageIDDDB
	ddm.ModuleID = 0
	ddm.ModuleVersion = 0
	ddm.BlockData = nil
}

// TableID implements psi.Table
func (ddm *DownloadDataMessage) TableID() uint8 {
	return gocarousel.TIDDSMCCDDM
}

// XMLName implements psi.Table
func (ddm *DownloadDataMessage) XMLName() string {
	return ddmXMLName
}

// TableIDExtension carries the module id
func (ddm *DownloadDataMessage) TableIDExtension() uint16 {
	return ddm.ModuleID
}

// DownloadID is the 32 bit header field of a DDB
func (ddm *DownloadDataMessage) DownloadID() uint32 {
	return ddm.Header.TransactionID
}

// Deserialize populates the message from a complete table,
// concatenating the block data of every section
func (ddm *DownloadDataMessage) Deserialize(bt *psi.BinaryTable) error {
	if !bt.IsComplete() {
		return ErrTableIncomplete
	}
	if bt.TableID() != gocarousel.TIDDSMCCDDM {
		return ErrTableID
	}
	ddm.Clear()
	ddm.Version = bt.Version()
	ddm.Current = bt.IsCurrent()
	for i := 0; i < bt.SectionCount(); i++ {
		if err := ddm.deserializePayload(bt.SectionAt(i).Payload()); err != nil {
			return err
		}
	}
	return nil
}

func (ddm *DownloadDataMessage) deserializePayload(payload []byte) error {
	buf := buffer.NewRead(payload)
	ddm.Header.Deserialize(buf)
	if buf.Error() || !ddm.Header.IsValid() || ddm.Header.MessageID != MessageIDDDB {
		return ErrBadHeader
	}

	buf.SkipBytes(1) // reserved
	adaptationLength := buf.GetUInt8()
	buf.SkipBytes(2) // message_length
	// For object carousel it should be 0, tolerate and discard
	if adaptationLength > 0 {
		buf.SkipBytes(int(adaptationLength))
	}

	ddm.ModuleID = buf.GetUInt16()
	ddm.ModuleVersion = buf.GetUInt8()
	buf.SkipBytes(1) // reserved
	buf.SkipBytes(2) // block_number, redundant with the section number

	block := buf.GetBytesAll()
	if buf.Error() {
		return ErrBadPayload
	}
	ddm.BlockData = append(ddm.BlockData, block...)
	return nil
}

// Serialize builds the table image, one section per block of at most
// DefaultBlockSize bytes
func (ddm *DownloadDataMessage) Serialize() (*psi.BinaryTable, error) {
	var payloads [][]byte
	blockNumber := uint16(0)
	remaining := ddm.BlockData

	for {
		chunk := remaining
		if len(chunk) > DefaultBlockSize {
			chunk = chunk[:DefaultBlockSize]
		}
		remaining = remaining[len(chunk):]

		buf := buffer.NewWrite(psi.MaxDSMCCPayloadSize)
		ddm.Header.Serialize(buf)
		buf.PutUInt8(0xFF) // reserved
		buf.PutUInt8(0x00) // adaptation_length

		buf.PushWriteWithLeadingLength(16) // message_length
		buf.PutUInt16(ddm.ModuleID)
		buf.PutUInt8(ddm.ModuleVersion)
		buf.PutUInt8(0xFF) // reserved
		buf.PutUInt16(blockNumber)
		buf.PutBytes(chunk)
		buf.PopState() // close message_length

		payload := buf.Bytes()
		if buf.Error() {
			return nil, ErrBadPayload
		}
		payloads = append(payloads, payload)
		blockNumber++

		if len(remaining) == 0 {
			break
		}
	}
	if len(payloads) > 256 {
		return nil, ErrBadPayload
	}
	return psi.AssembleTable(gocarousel.TIDDSMCCDDM, false, ddm.ModuleID,
		ddm.Version, ddm.Current, payloads)
}

// BuildXML writes the message into root
func (ddm *DownloadDataMessage) BuildXML(root *xmlenc.Element) {
	root.SetIntAttr("version", uint64(ddm.Version))
	root.SetBoolAttr("current", ddm.Current)
	root.SetHexAttr("protocol_discriminator", uint64(ddm.Header.ProtocolDiscriminator))
	root.SetHexAttr("dsmcc_type", uint64(ddm.Header.DsmccType))
	root.SetHexAttr("message_id", uint64(ddm.Header.MessageID))
	root.SetHexAttr("download_id", uint64(ddm.Header.TransactionID))
	root.SetHexAttr("module_id", uint64(ddm.ModuleID))
	root.SetHexAttr("module_version", uint64(ddm.ModuleVersion))
	root.AddHexaChild("block_data", ddm.BlockData, true)
}

// AnalyzeXML reads the message back from root
func (ddm *DownloadDataMessage) AnalyzeXML(root *xmlenc.Element) bool {
	ddm.Clear()
	version, ok1 := root.IntAttr("version", false, 0)
	current, ok2 := root.BoolAttr("current", false, true)
	discriminator, ok3 := root.IntAttr("protocol_discriminator", false, ProtocolDiscriminator)
	dsmccType, ok4 := root.IntAttr("dsmcc_type", true, 0)
	messageID, ok5 := root.IntAttr("message_id", true, 0)
	downloadID, ok6 := root.IntAttr("download_id", true, 0)
	moduleID, ok7 := root.IntAttr("module_id", true, 0)
	moduleVersion, ok8 := root.IntAttr("module_version", true, 0)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 || !ok8 ||
		version > 31 || discriminator > 0xFF || dsmccType > 0xFF ||
		messageID > 0xFFFF || downloadID > 0xFFFFFFFF ||
		moduleID > 0xFFFF || moduleVersion > 0xFF {
		return false
	}
	blockData, ok := root.HexaChild("block_data")
	if !ok {
		return false
	}
	ddm.Version = uint8(version)
	ddm.Current = current
	ddm.Header.ProtocolDiscriminator = uint8(discriminator)
	ddm.Header.DsmccType = uint8(dsmccType)
	ddm.Header.MessageID = uint16(messageID)
	ddm.Header.TransactionID = uint32(downloadID)
	ddm.ModuleID = uint16(moduleID)
	ddm.ModuleVersion = uint8(moduleVersion)
	ddm.BlockData = blockData
	return true
}
