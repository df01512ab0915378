package dsmcc

import (
	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/buffer"
	"github.com/piotrserafin/gocarousel/pkg/descriptors"
	"github.com/piotrserafin/gocarousel/pkg/psi"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

const unmXMLName = "DSMCC_user_to_network_message"

func init() {
	psi.RegisterTable(unmXMLName, []uint8{gocarousel.TIDDSMCCUNM},
		func() psi.Table { return NewUserToNetworkMessage() })
}

// ModuleInfo is one entry of the DII module loop
type ModuleInfo struct {
	ModuleID      uint16
	ModuleSize    uint32
	ModuleVersion uint8
	ModuleTimeout uint32
	BlockTimeout  uint32
	MinBlockTime  uint32
	Taps          []Tap
	Descs         descriptors.DescriptorList
}

// UserToNetworkMessage is the DSM-CC U-N message table (table id
// 0x3B) carrying either a DSI or a DII. The section table id
// extension is the low 16 bits of the transaction id.
type UserToNetworkMessage struct {
	Version uint8
	Current bool
	Header  MessageHeader

	Compatibility CompatibilityDescriptor

	// DSI context
	ServerID []byte
	IOR      IOR

	// DII context
	DownloadID uint32
	BlockSize  uint16
	Modules    []ModuleInfo
}

// NewUserToNetworkMessage returns a cleared message
func NewUserToNetworkMessage() *UserToNetworkMessage {
	unm := &UserToNetworkMessage{}
	unm.Clear()
	return unm
}

// Clear resets all content
func (unm *UserToNetworkMessage) Clear() {
	unm.Version = 0
	unm.Current = true
	unm.Header.Clear()
	unm.Compatibility.Clear()
	unm.ServerID = nil
	unm.IOR.Clear()
	unm.DownloadID = 0
	unm.BlockSize = 0
	unm.Modules = nil
}

// TableID implements psi.Table
func (unm *UserToNetworkMessage) TableID() uint8 {
	return gocarousel.TIDDSMCCUNM
}

// XMLName implements psi.Table
func (unm *UserToNetworkMessage) XMLName() string {
	return unmXMLName
}

// TableIDExtension is the low half of the transaction id
func (unm *UserToNetworkMessage) TableIDExtension() uint16 {
	return uint16(unm.Header.TransactionID)
}

// IsDSI returns true for a Download Server Initiate message
func (unm *UserToNetworkMessage) IsDSI() bool {
	return unm.Header.MessageID == MessageIDDSI
}

// IsDII returns true for a Download Info Indication message
func (unm *UserToNetworkMessage) IsDII() bool {
	return unm.Header.MessageID == MessageIDDII
}

// Deserialize populates the message from a complete table
func (unm *UserToNetworkMessage) Deserialize(bt *psi.BinaryTable) error {
	if !bt.IsComplete() {
		return ErrTableIncomplete
	}
	if bt.TableID() != gocarousel.TIDDSMCCUNM {
		return ErrTableID
	}
	unm.Clear()
	unm.Version = bt.Version()
	unm.Current = bt.IsCurrent()
	for i := 0; i < bt.SectionCount(); i++ {
		if err := unm.deserializePayload(bt.SectionAt(i).Payload()); err != nil {
			return err
		}
	}
	return nil
}

func (unm *UserToNetworkMessage) deserializePayload(payload []byte) error {
	buf := buffer.NewRead(payload)
	unm.Header.Deserialize(buf)
	if buf.Error() || !unm.Header.IsValid() {
		return ErrBadHeader
	}

	buf.SkipBytes(1) // reserved
	adaptationLength := buf.GetUInt8()
	buf.SkipBytes(2) // message_length
	// For object carousel the adaptation header must be empty
	if adaptationLength > 0 {
		return ErrBadPayload
	}

	switch unm.Header.MessageID {
	case MessageIDDSI:
		unm.ServerID = buf.GetBytes(ServerIDSize)
		unm.Compatibility.Deserialize(buf)

		buf.PushReadSizeFromLength(16) // private_data_length
		unm.IOR.Deserialize(buf)
		buf.SkipBytes(4) // download_taps_count + service_context_list_count + user_info_length
		buf.PopState()

	case MessageIDDII:
		unm.DownloadID = buf.GetUInt32()
		unm.BlockSize = buf.GetUInt16()
		buf.SkipBytes(10) // windowSize + ackPeriod + tCDownloadWindow + tCDownloadScenario
		unm.Compatibility.Deserialize(buf)

		numberOfModules := int(buf.GetUInt16())
		for i := 0; i < numberOfModules && !buf.Error(); i++ {
			var module ModuleInfo
			module.ModuleID = buf.GetUInt16()
			module.ModuleSize = buf.GetUInt32()
			module.ModuleVersion = buf.GetUInt8()

			buf.PushReadSizeFromLength(8) // module_info_length
			module.ModuleTimeout = buf.GetUInt32()
			module.BlockTimeout = buf.GetUInt32()
			module.MinBlockTime = buf.GetUInt32()

			tapsCount := int(buf.GetUInt8())
			for j := 0; j < tapsCount && !buf.Error(); j++ {
				var tap Tap
				tap.Deserialize(buf)
				module.Taps = append(module.Taps, tap)
			}

			// Note : user_info_length is one byte, not the two of a
			// regular descriptor loop length
			buf.PushReadSizeFromLength(8)
			module.Descs.Deserialize(buf)
			buf.PopState() // user_info_length
			buf.PopState() // module_info_length

			unm.Modules = append(unm.Modules, module)
		}

		privateDataLength := int(buf.GetUInt16())
		buf.SkipBytes(privateDataLength)

	default:
		return ErrBadMessageID
	}

	if buf.Error() {
		return ErrBadPayload
	}
	return nil
}

// Serialize builds the single section table image
func (unm *UserToNetworkMessage) Serialize() (*psi.BinaryTable, error) {
	buf := buffer.NewWrite(psi.MaxDSMCCPayloadSize)
	unm.Header.Serialize(buf)
	buf.PutUInt8(0xFF) // reserved
	buf.PutUInt8(0x00) // adaptation_length

	buf.PushWriteWithLeadingLength(16) // message_length

	switch unm.Header.MessageID {
	case MessageIDDSI:
		serverID := unm.ServerID
		if len(serverID) > ServerIDSize {
			serverID = serverID[:ServerIDSize]
		}
		buf.PutBytes(serverID)
		// server_id is 0xFF filled, ISO/IEC 13818-6
		for i := len(serverID); i < ServerIDSize; i++ {
			buf.PutUInt8(0xFF)
		}
		unm.Compatibility.Serialize(buf)

		buf.PushWriteWithLeadingLength(16) // private_data_length
		unm.IOR.Serialize(buf)
		buf.PutUInt8(0x00)     // download_taps_count
		buf.PutUInt8(0x00)     // service_context_list_count
		buf.PutUInt16(0x0000)  // user_info_length
		buf.PopState()         // close private_data

	case MessageIDDII:
		buf.PutUInt32(unm.DownloadID)
		buf.PutUInt16(unm.BlockSize)

		// ETSI TR 101 202 5.7.5.1, not used and set to zero
		buf.PutUInt8(0x00)         // windowSize
		buf.PutUInt8(0x00)         // ackPeriod
		buf.PutUInt32(0x00000000)  // tCDownloadWindow
		buf.PutUInt32(0x00000000)  // tCDownloadScenario
		unm.Compatibility.Serialize(buf)

		buf.PutUInt16(uint16(len(unm.Modules)))
		for i := range unm.Modules {
			module := &unm.Modules[i]
			buf.PutUInt16(module.ModuleID)
			buf.PutUInt32(module.ModuleSize)
			buf.PutUInt8(module.ModuleVersion)

			buf.PushWriteWithLeadingLength(8) // module_info_length
			buf.PutUInt32(module.ModuleTimeout)
			buf.PutUInt32(module.BlockTimeout)
			buf.PutUInt32(module.MinBlockTime)

			buf.PutUInt8(uint8(len(module.Taps)))
			for j := range module.Taps {
				module.Taps[j].Serialize(buf)
			}

			buf.PushWriteWithLeadingLength(8) // user_info_length
			module.Descs.Serialize(buf)
			buf.PopState() // close user_info_length
			buf.PopState() // close module_info_length
		}

		buf.PutUInt16(0x0000) // private_data_length

	default:
		return nil, ErrBadMessageID
	}

	buf.PopState() // close message_length

	payload := buf.Bytes()
	if buf.Error() {
		return nil, ErrBadPayload
	}
	return psi.AssembleTable(gocarousel.TIDDSMCCUNM, false, unm.TableIDExtension(),
		unm.Version, unm.Current, [][]byte{payload})
}

// BuildXML writes the message into root, DSI and DII content in their
// own child element
func (unm *UserToNetworkMessage) BuildXML(root *xmlenc.Element) {
	root.SetIntAttr("version", uint64(unm.Version))
	root.SetBoolAttr("current", unm.Current)
	root.SetHexAttr("protocol_discriminator", uint64(unm.Header.ProtocolDiscriminator))
	root.SetHexAttr("dsmcc_type", uint64(unm.Header.DsmccType))
	root.SetHexAttr("message_id", uint64(unm.Header.MessageID))
	root.SetHexAttr("transaction_id", uint64(unm.Header.TransactionID))

	if unm.IsDSI() {
		dsi := root.AddElement("DSI")
		dsi.AddHexaChild("server_id", unm.ServerID, true)
		unm.Compatibility.ToXML(dsi)
		unm.IOR.ToXML(dsi)
	} else if unm.IsDII() {
		dii := root.AddElement("DII")
		dii.SetHexAttr("download_id", uint64(unm.DownloadID))
		dii.SetIntAttr("block_size", uint64(unm.BlockSize))
		unm.Compatibility.ToXML(dii)
		for i := range unm.Modules {
			module := &unm.Modules[i]
			mod := dii.AddElement("module")
			mod.SetHexAttr("module_id", uint64(module.ModuleID))
			mod.SetIntAttr("module_size", uint64(module.ModuleSize))
			mod.SetIntAttr("module_version", uint64(module.ModuleVersion))
			mod.SetIntAttr("module_timeout", uint64(module.ModuleTimeout))
			mod.SetIntAttr("block_timeout", uint64(module.BlockTimeout))
			mod.SetIntAttr("min_block_time", uint64(module.MinBlockTime))
			for j := range module.Taps {
				module.Taps[j].ToXML(mod)
			}
			module.Descs.ToXML(mod, descriptors.Context{TableID: gocarousel.TIDDSMCCUNM})
		}
	}
}

// AnalyzeXML reads the message back from root
func (unm *UserToNetworkMessage) AnalyzeXML(root *xmlenc.Element) bool {
	unm.Clear()
	version, ok1 := root.IntAttr("version", false, 0)
	current, ok2 := root.BoolAttr("current", false, true)
	discriminator, ok3 := root.IntAttr("protocol_discriminator", false, ProtocolDiscriminator)
	dsmccType, ok4 := root.IntAttr("dsmcc_type", true, 0)
	messageID, ok5 := root.IntAttr("message_id", true, 0)
	transaction, ok6 := root.IntAttr("transaction_id", true, 0)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 ||
		version > 31 || discriminator > 0xFF || dsmccType > 0xFF ||
		messageID > 0xFFFF || transaction > 0xFFFFFFFF {
		return false
	}
	unm.Version = uint8(version)
	unm.Current = current
	unm.Header.ProtocolDiscriminator = uint8(discriminator)
	unm.Header.DsmccType = uint8(dsmccType)
	unm.Header.MessageID = uint16(messageID)
	unm.Header.TransactionID = uint32(transaction)

	switch {
	case unm.IsDSI():
		dsi := root.FindFirstChild("DSI")
		if dsi == nil {
			return false
		}
		serverID, ok := dsi.HexaChild("server_id")
		if !ok {
			return false
		}
		unm.ServerID = serverID
		if !unm.Compatibility.FromXML(dsi) {
			return false
		}
		ior := dsi.FindFirstChild("IOR")
		if ior == nil {
			return false
		}
		return unm.IOR.FromXML(ior)

	case unm.IsDII():
		dii := root.FindFirstChild("DII")
		if dii == nil {
			return false
		}
		downloadID, ok1 := dii.IntAttr("download_id", true, 0)
		blockSize, ok2 := dii.IntAttr("block_size", true, 0)
		if !ok1 || !ok2 || downloadID > 0xFFFFFFFF || blockSize > 0xFFFF {
			return false
		}
		unm.DownloadID = uint32(downloadID)
		unm.BlockSize = uint16(blockSize)
		if !unm.Compatibility.FromXML(dii) {
			return false
		}
		for _, xmod := range dii.ChildrenByName("module") {
			var module ModuleInfo
			moduleID, ok1 := xmod.IntAttr("module_id", true, 0)
			moduleSize, ok2 := xmod.IntAttr("module_size", true, 0)
			moduleVersion, ok3 := xmod.IntAttr("module_version", true, 0)
			moduleTimeout, ok4 := xmod.IntAttr("module_timeout", false, 0)
			blockTimeout, ok5 := xmod.IntAttr("block_timeout", false, 0)
			minBlockTime, ok6 := xmod.IntAttr("min_block_time", false, 0)
			if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 ||
				moduleID > 0xFFFF || moduleSize > 0xFFFFFFFF || moduleVersion > 0xFF {
				return false
			}
			module.ModuleID = uint16(moduleID)
			module.ModuleSize = uint32(moduleSize)
			module.ModuleVersion = uint8(moduleVersion)
			module.ModuleTimeout = uint32(moduleTimeout)
			module.BlockTimeout = uint32(blockTimeout)
			module.MinBlockTime = uint32(minBlockTime)
			for _, xtap := range xmod.ChildrenByName("tap") {
				var tap Tap
				if !tap.FromXML(xtap) {
					return false
				}
				module.Taps = append(module.Taps, tap)
			}
			if !module.Descs.FromXML(xmod, "tap") {
				return false
			}
			unm.Modules = append(unm.Modules, module)
		}
		return true

	default:
		// Unknown message_id, nothing to analyze
		return false
	}
}
