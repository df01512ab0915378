package dsmcc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piotrserafin/gocarousel/pkg/descriptors"
	"github.com/piotrserafin/gocarousel/pkg/psi"
)

type completionLog struct {
	modules []ModuleContext
}

func (cl *completionLog) handler(ctx *ModuleContext) {
	cl.modules = append(cl.modules, *ctx)
}

func feedTable(t *testing.T, cc *CarouselController, table psi.Table) {
	t.Helper()
	bt, err := table.Serialize()
	require.NoError(t, err)
	// Sections are observed before the completed table, as the demux
	// would deliver them
	for i := 0; i < bt.SectionCount(); i++ {
		cc.HandleSection(nil, bt.SectionAt(i))
	}
	cc.HandleTable(nil, bt)
}

func runMinimalCarousel(t *testing.T, cc *CarouselController, cl *completionLog) {
	t.Helper()
	assert.Equal(t, StateUnmounted, cc.State())

	feedTable(t, cc, sampleDSI(0xCAFE0001))
	assert.Equal(t, StateMounting, cc.State())

	feedTable(t, cc, sampleDII(0xCAFE0001, ModuleInfo{
		ModuleID:      0x0001,
		ModuleSize:    1024,
		ModuleVersion: 3,
	}))
	assert.Equal(t, StateDiscovering, cc.State())

	feedTable(t, cc, sampleDDM(0x0001, 3, bytes.Repeat([]byte{0xAA}, 1024)))
	assert.Equal(t, StateReady, cc.State())
}

// S1 : minimal carousel, one DSI, one DII, one DDB
func TestMinimalCarousel(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)

	runMinimalCarousel(t, cc, cl)

	require.Len(t, cl.modules, 1)
	module := cl.modules[0]
	assert.EqualValues(t, 0x0001, module.ModuleID)
	assert.EqualValues(t, 3, module.ModuleVersion)
	assert.False(t, module.IsCompressed)
	assert.Len(t, module.Payload, 1024)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 1024), module.Payload)
}

// The first DDB block moves the controller through LOADING
func TestLoadingStateOnFirstBlock(t *testing.T) {
	cc := NewCarouselController()
	feedTable(t, cc, sampleDSI(1))
	feedTable(t, cc, sampleDII(1, ModuleInfo{ModuleID: 1, ModuleSize: 10, ModuleVersion: 0}))

	ddm := sampleDDM(0x0001, 0, bytes.Repeat([]byte{0x01}, 10))
	bt, err := ddm.Serialize()
	require.NoError(t, err)
	cc.HandleSection(nil, bt.SectionAt(0))
	assert.Equal(t, StateLoading, cc.State())
	assert.Equal(t, 1, cc.Module(1).CountReceived())
}

// S2 : a DII announcing a new version resets the module
func TestVersionChangeResetsModule(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)
	runMinimalCarousel(t, cc, cl)

	feedTable(t, cc, sampleDII(0xCAFE0001, ModuleInfo{
		ModuleID:      0x0001,
		ModuleSize:    2048,
		ModuleVersion: 4,
	}))

	module := cc.Module(0x0001)
	require.NotNil(t, module)
	assert.EqualValues(t, 4, module.ModuleVersion)
	assert.EqualValues(t, 2048, module.ModuleSize)
	assert.Equal(t, 0, module.CountReceived())
	assert.Equal(t, StatusPending, module.Status)
	assert.NotEqual(t, StateReady, cc.State())

	// The new version completes and is delivered again
	feedTable(t, cc, sampleDDM(0x0001, 4, bytes.Repeat([]byte{0xBB}, 2048)))
	require.Len(t, cl.modules, 2)
	assert.Len(t, cl.modules[1].Payload, 2048)
}

// S3 : DDBs before any DII leave the controller untouched
func TestDDBBeforeDIIIsDropped(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)

	feedTable(t, cc, sampleDDM(0x0002, 0, []byte{1, 2, 3}))
	assert.Equal(t, StateUnmounted, cc.State())
	assert.Empty(t, cl.modules)
	assert.Nil(t, cc.Module(0x0002))
}

// S4 : a DSI with a new transaction id clears everything
func TestTransactionIDReset(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)
	runMinimalCarousel(t, cc, cl)
	require.Len(t, cl.modules, 1)

	feedTable(t, cc, sampleDSI(0xCAFE0002))
	assert.Equal(t, StateMounting, cc.State())
	assert.EqualValues(t, 0xCAFE0002, cc.TransactionID())
	assert.Nil(t, cc.Module(0x0001))
	// No completion fires again for the previously complete module
	assert.Len(t, cl.modules, 1)
}

// A repeated DSI with the same transaction id changes nothing
func TestRepeatedDSIIgnored(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)
	runMinimalCarousel(t, cc, cl)

	feedTable(t, cc, sampleDSI(0xCAFE0001))
	assert.Equal(t, StateReady, cc.State())
	assert.NotNil(t, cc.Module(0x0001))
}

// S5 : a compressed module reports the flag and original size
func TestCompressedModule(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)

	feedTable(t, cc, sampleDSI(1))

	module := ModuleInfo{ModuleID: 0x0003, ModuleSize: 300, ModuleVersion: 1}
	require.NoError(t, module.Descs.AddPayload(&descriptors.DSMCCCompressedModule{
		CompressionMethod: 0x08,
		OriginalSize:      1000,
	}))
	feedTable(t, cc, sampleDII(1, module))
	feedTable(t, cc, sampleDDM(0x0003, 1, bytes.Repeat([]byte{0xCC}, 300)))

	require.Len(t, cl.modules, 1)
	completed := cl.modules[0]
	assert.True(t, completed.IsCompressed)
	assert.EqualValues(t, 1000, completed.OriginalSize)
	assert.Len(t, completed.Payload, 300)
}

// Duplicate DDBs never fire the completion twice
func TestCompletionFiresOnce(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)
	runMinimalCarousel(t, cc, cl)

	feedTable(t, cc, sampleDDM(0x0001, 3, bytes.Repeat([]byte{0xAA}, 1024)))
	assert.Len(t, cl.modules, 1)
}

// A DII exceeding the size budget is rejected wholesale
func TestSizeBudgetRejectsDII(t *testing.T) {
	cc := NewCarouselController()
	cc.SetSizeBudget(1000)
	feedTable(t, cc, sampleDSI(1))
	feedTable(t, cc, sampleDII(1,
		ModuleInfo{ModuleID: 1, ModuleSize: 600, ModuleVersion: 0},
		ModuleInfo{ModuleID: 2, ModuleSize: 600, ModuleVersion: 0}))
	assert.Nil(t, cc.Module(1))
	assert.Nil(t, cc.Module(2))
	assert.Equal(t, StateMounting, cc.State())
}

// Progress is monotonic until a version change
func TestProgressMonotonic(t *testing.T) {
	cc := NewCarouselController()
	feedTable(t, cc, sampleDSI(1))
	feedTable(t, cc, sampleDII(1, ModuleInfo{
		ModuleID:      1,
		ModuleSize:    3 * DefaultBlockSize,
		ModuleVersion: 0,
	}))

	ddm := sampleDDM(1, 0, bytes.Repeat([]byte{0}, 3*DefaultBlockSize))
	bt, err := ddm.Serialize()
	require.NoError(t, err)
	require.Equal(t, 3, bt.SectionCount())

	previous := 0
	for _, i := range []int{1, 0, 0, 2} { // duplicates included
		cc.HandleSection(nil, bt.SectionAt(i))
		count := cc.Module(1).CountReceived()
		assert.GreaterOrEqual(t, count, previous)
		previous = count
	}
	assert.Equal(t, 3, previous)
}

// A stale DDB for a superseded version is dropped
func TestStaleVersionDDBDropped(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)
	feedTable(t, cc, sampleDSI(1))
	feedTable(t, cc, sampleDII(1, ModuleInfo{ModuleID: 1, ModuleSize: 8, ModuleVersion: 5}))

	feedTable(t, cc, sampleDDM(1, 4, bytes.Repeat([]byte{1}, 8)))
	assert.Empty(t, cl.modules)
	assert.Equal(t, StatusPending, cc.Module(1).Status)
}

func TestListModules(t *testing.T) {
	cl := &completionLog{}
	cc := NewCarouselController()
	cc.SetModuleCompletedHandler(cl.handler)
	runMinimalCarousel(t, cc, cl)

	var out strings.Builder
	cc.ListModules(&out)
	listing := out.String()
	assert.Contains(t, listing, "ID: 0001")
	assert.Contains(t, listing, "COMPLETE")
}
