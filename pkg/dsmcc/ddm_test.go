package dsmcc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/psi"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

func sampleDDM(moduleID uint16, moduleVersion uint8, blockData []byte) *DownloadDataMessage {
	ddm := NewDownloadDataMessage()
	ddm.Header.TransactionID = 0x00010000
	ddm.ModuleID = moduleID
	ddm.ModuleVersion = moduleVersion
	ddm.BlockData = blockData
	return ddm
}

func TestDDMSingleBlockRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, 1024)
	ddm := sampleDDM(0x0001, 3, payload)

	table, err := ddm.Serialize()
	require.NoError(t, err)
	assert.EqualValues(t, gocarousel.TIDDSMCCDDM, table.TableID())
	// The table id extension carries the module id
	assert.EqualValues(t, 0x0001, table.TableIDExtension())
	assert.Equal(t, 1, table.SectionCount())

	back := NewDownloadDataMessage()
	require.NoError(t, back.Deserialize(table))
	assert.EqualValues(t, 0x0001, back.ModuleID)
	assert.EqualValues(t, 3, back.ModuleVersion)
	assert.Equal(t, payload, back.BlockData)

	again, err := back.Serialize()
	require.NoError(t, err)
	assert.Equal(t, table.SectionAt(0).Bytes(), again.SectionAt(0).Bytes())
}

func TestDDMMultiBlockSplit(t *testing.T) {
	// Needs three blocks at the default block size
	payload := bytes.Repeat([]byte{0x5A}, 2*DefaultBlockSize+100)
	ddm := sampleDDM(0x0002, 1, payload)

	table, err := ddm.Serialize()
	require.NoError(t, err)
	require.Equal(t, 3, table.SectionCount())

	// The section number is the block number within the module
	for i := 0; i < table.SectionCount(); i++ {
		sec := table.SectionAt(i)
		assert.EqualValues(t, i, sec.SectionNumber())
		blockNumber := uint16(sec.Payload()[16])<<8 | uint16(sec.Payload()[17])
		assert.EqualValues(t, i, blockNumber)
	}

	back := NewDownloadDataMessage()
	require.NoError(t, back.Deserialize(table))
	assert.Equal(t, payload, back.BlockData)
}

func TestDDMXMLRoundTrip(t *testing.T) {
	ddm := sampleDDM(0x0042, 7, []byte{1, 2, 3, 4})
	root := xmlenc.NewElement(ddm.XMLName())
	ddm.BuildXML(root)

	data, err := xmlenc.Marshal(root)
	require.NoError(t, err)
	parsed, err := xmlenc.Parse(data)
	require.NoError(t, err)

	table, ok := psi.TableFromXML(parsed)
	require.True(t, ok)
	assert.Equal(t, ddm, table.(*DownloadDataMessage))
}

func TestDDMToleratesAdaptationHeader(t *testing.T) {
	ddm := sampleDDM(0x0001, 1, []byte{0xAB})
	table, err := ddm.Serialize()
	require.NoError(t, err)

	// Rebuild the section with a 2 byte adaptation header
	original := table.SectionAt(0).Payload()
	patched := make([]byte, 0, len(original)+2)
	patched = append(patched, original[:9]...)
	patched = append(patched, 0x02)                    // adaptation_length
	patched = append(patched, original[10:12]...)      // message_length
	patched = append(patched, 0x00, 0x00)              // adaptation bytes
	patched = append(patched, original[12:]...)

	sec, err := psi.NewLong(gocarousel.TIDDSMCCDDM, false, 0x0001, 0, true, 0, 0, patched)
	require.NoError(t, err)
	bt, err := psi.TableFromSections([]*psi.Section{sec})
	require.NoError(t, err)

	back := NewDownloadDataMessage()
	require.NoError(t, back.Deserialize(bt))
	assert.Equal(t, []byte{0xAB}, back.BlockData)
}
