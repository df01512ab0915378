package dsmcc

import (
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"

	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/demux"
	"github.com/piotrserafin/gocarousel/pkg/descriptors"
	"github.com/piotrserafin/gocarousel/pkg/psi"
)

// State of the carousel acquisition state machine
type State uint8

const (
	// StateUnmounted : waiting for a DSI
	StateUnmounted State = iota
	// StateMounting : DSI seen, analyzing
	StateMounting
	// StateDiscovering : collecting DIIs
	StateDiscovering
	// StateLoading : at least one block of a known module received
	StateLoading
	// StateReady : every known module is complete
	StateReady
)

var stateNames = map[State]string{
	StateUnmounted:   "UNMOUNTED",
	StateMounting:    "MOUNTING",
	StateDiscovering: "DISCOVERING",
	StateLoading:     "LOADING",
	StateReady:       "READY",
}

func (s State) String() string {
	return stateNames[s]
}

// ModuleStatus of a single module context
type ModuleStatus uint8

const (
	// StatusUnknown : allocated but never announced
	StatusUnknown ModuleStatus = iota
	// StatusPending : announced by a DII, blocks outstanding
	StatusPending
	// StatusComplete : payload fully assembled
	StatusComplete
)

// ModuleContext is the per module state of the carousel : identity,
// block accounting and the assembled payload.
type ModuleContext struct {
	ModuleID      uint16
	ModuleVersion uint8
	ModuleSize    uint32
	BlockSize     uint16

	ExpectedBlocks int
	ReceivedBlocks []bool

	// Compressed_module_descriptor content from the DII
	IsCompressed bool
	OriginalSize uint32

	Payload []byte
	Status  ModuleStatus

	delivered bool
}

func (ctx *ModuleContext) setSize(size uint32, blockSize uint16) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	ctx.ModuleSize = size
	ctx.BlockSize = blockSize
	ctx.ExpectedBlocks = int((size + uint32(blockSize) - 1) / uint32(blockSize))
	ctx.ReceivedBlocks = make([]bool, ctx.ExpectedBlocks)
	ctx.Payload = nil
}

// CountReceived returns the number of blocks received so far
func (ctx *ModuleContext) CountReceived() int {
	count := 0
	for _, received := range ctx.ReceivedBlocks {
		if received {
			count++
		}
	}
	return count
}

// markBlockReceived records block arrival for progress reporting,
// returns true for a block not seen before
func (ctx *ModuleContext) markBlockReceived(blockNumber uint8) bool {
	if int(blockNumber) < len(ctx.ReceivedBlocks) && !ctx.ReceivedBlocks[blockNumber] {
		ctx.ReceivedBlocks[blockNumber] = true
		return true
	}
	return false
}

// IsComplete returns true once the payload is fully assembled
func (ctx *ModuleContext) IsComplete() bool {
	return ctx.Status == StatusComplete
}

// ModuleHandler is invoked exactly once per completed
// (module id, version) pair
type ModuleHandler func(*ModuleContext)

// DefaultSizeBudget bounds the sum of module sizes a single DII may
// announce, a DoS guard against hostile tables
const DefaultSizeBudget = 64 << 20

// CarouselController drives the object carousel state machine from
// the tables and sections of one PID. It implements both demux
// handler interfaces : tables deliver the protocol semantics,
// sections feed block level progress tracking.
type CarouselController struct {
	state            State
	modules          map[uint16]*ModuleContext
	transactionID    uint32
	dsiFound         bool
	ior              IOR
	sizeBudget       uint64
	onModuleComplete ModuleHandler
}

// NewCarouselController returns an unmounted controller with the
// default size budget
func NewCarouselController() *CarouselController {
	return &CarouselController{
		modules:    make(map[uint16]*ModuleContext),
		sizeBudget: DefaultSizeBudget,
	}
}

// SetModuleCompletedHandler installs the completion callback
func (cc *CarouselController) SetModuleCompletedHandler(handler ModuleHandler) {
	cc.onModuleComplete = handler
}

// SetSizeBudget changes the DII announcement budget, zero disables
// the guard
func (cc *CarouselController) SetSizeBudget(budget uint64) {
	cc.sizeBudget = budget
}

// State returns the current acquisition state
func (cc *CarouselController) State() State {
	return cc.state
}

// TransactionID returns the fingerprint of the mounted carousel
// instance, zero before the first DSI
func (cc *CarouselController) TransactionID() uint32 {
	return cc.transactionID
}

// Gateway returns the IOR observed in the DSI
func (cc *CarouselController) Gateway() *IOR {
	return &cc.ior
}

// Module returns the context of a known module, nil otherwise
func (cc *CarouselController) Module(moduleID uint16) *ModuleContext {
	return cc.modules[moduleID]
}

// Clear resets the controller to its unmounted state
func (cc *CarouselController) Clear() {
	cc.state = StateUnmounted
	cc.modules = make(map[uint16]*ModuleContext)
	cc.transactionID = 0
	cc.dsiFound = false
	cc.ior.Clear()
}

// HandleTable implements demux.TableHandler for DSI, DII and DDM
func (cc *CarouselController) HandleTable(_ *demux.Demux, bt *psi.BinaryTable) {
	switch bt.TableID() {
	case gocarousel.TIDDSMCCUNM:
		unm := NewUserToNetworkMessage()
		if err := unm.Deserialize(bt); err != nil {
			log.Debugf("[CAROUSEL] dropping malformed UNM : %v", err)
			return
		}
		if unm.IsDSI() {
			cc.processDSI(unm)
		} else if unm.IsDII() {
			cc.processDII(unm)
		}

	case gocarousel.TIDDSMCCDDM:
		ddm := NewDownloadDataMessage()
		if err := ddm.Deserialize(bt); err != nil {
			log.Debugf("[CAROUSEL] dropping malformed DDM : %v", err)
			return
		}
		cc.processDDB(ddm)
	}
}

// HandleSection implements demux.SectionHandler, tracking per block
// progress of DDM sections independently of table completion
func (cc *CarouselController) HandleSection(_ *demux.Demux, sec *psi.Section) {
	if sec.TableID() != gocarousel.TIDDSMCCDDM {
		return
	}
	ctx, known := cc.modules[sec.TableIDExtension()]
	if !known || ctx.Status == StatusComplete {
		return
	}
	if ctx.markBlockReceived(sec.SectionNumber()) {
		cc.setState(StateLoading)
		log.Debugf("[CAROUSEL] module x%04X progress : %d/%d blocks",
			ctx.ModuleID, ctx.CountReceived(), ctx.ExpectedBlocks)
	}
}

func (cc *CarouselController) setState(state State) {
	if state != cc.state {
		log.Infof("[CAROUSEL] state %v -> %v", cc.state, state)
		cc.state = state
	}
}

// processDSI mounts the carousel. A DSI with a different transaction
// id is a new carousel instance : all module contexts are cleared
// before anything else is processed.
func (cc *CarouselController) processDSI(unm *UserToNetworkMessage) {
	if cc.dsiFound && unm.Header.TransactionID == cc.transactionID {
		return
	}
	if cc.dsiFound {
		log.Infof("[CAROUSEL] transaction id changed x%08X -> x%08X, remounting",
			cc.transactionID, unm.Header.TransactionID)
		cc.Clear()
	} else {
		log.Infof("[CAROUSEL] new DSI, transaction id x%08X", unm.Header.TransactionID)
	}
	cc.dsiFound = true
	cc.transactionID = unm.Header.TransactionID
	cc.ior = unm.IOR
	cc.setState(StateMounting)
}

// processDII discovers modules. Known modules with an unchanged
// version are left alone, a version change resets the module to
// pending with a zeroed block vector.
func (cc *CarouselController) processDII(unm *UserToNetworkMessage) {
	if cc.sizeBudget > 0 {
		var total uint64
		for i := range unm.Modules {
			total += uint64(unm.Modules[i].ModuleSize)
		}
		if total > cc.sizeBudget {
			log.Warnf("[CAROUSEL] rejecting DII, announced %d bytes exceed budget %d",
				total, cc.sizeBudget)
			return
		}
	}

	for i := range unm.Modules {
		info := &unm.Modules[i]
		ctx, known := cc.modules[info.ModuleID]
		if known && ctx.Status != StatusUnknown && ctx.ModuleVersion == info.ModuleVersion {
			continue
		}
		if !known {
			ctx = &ModuleContext{ModuleID: info.ModuleID}
			cc.modules[info.ModuleID] = ctx
		}
		ctx.ModuleVersion = info.ModuleVersion
		ctx.setSize(info.ModuleSize, unm.BlockSize)
		ctx.Status = StatusPending
		ctx.IsCompressed = false
		ctx.OriginalSize = 0
		ctx.delivered = false

		index := info.Descs.Search(descriptors.DIDDSMCCCompressedModule)
		if index < info.Descs.Count() {
			decoded, ok := descriptors.Decode(info.Descs.At(index),
				descriptors.Context{TableID: gocarousel.TIDDSMCCUNM})
			if compressed, isCompressed := decoded.(*descriptors.DSMCCCompressedModule); ok && isCompressed {
				ctx.IsCompressed = true
				ctx.OriginalSize = compressed.OriginalSize
			}
		}

		log.Infof("[CAROUSEL] discovered module x%04X size %d version %d compressed %v",
			ctx.ModuleID, ctx.ModuleSize, ctx.ModuleVersion, ctx.IsCompressed)
	}

	cc.checkGlobalState()
}

// processDDB assembles a module. Blocks for unknown modules are
// dropped silently, the DII is expected to cycle.
func (cc *CarouselController) processDDB(ddm *DownloadDataMessage) {
	ctx, known := cc.modules[ddm.ModuleID]
	if !known {
		return
	}
	if ctx.ModuleVersion != ddm.ModuleVersion || ctx.Status == StatusComplete {
		return
	}

	if uint32(len(ddm.BlockData)) != ctx.ModuleSize {
		log.Warnf("[CAROUSEL] module x%04X delivered %d bytes, DII announced %d",
			ctx.ModuleID, len(ddm.BlockData), ctx.ModuleSize)
	}
	ctx.Payload = ddm.BlockData
	ctx.Status = StatusComplete
	for i := range ctx.ReceivedBlocks {
		ctx.ReceivedBlocks[i] = true
	}
	log.Infof("[CAROUSEL] module x%04X complete, %d bytes", ctx.ModuleID, len(ctx.Payload))

	if !ctx.delivered && cc.onModuleComplete != nil {
		ctx.delivered = true
		cc.onModuleComplete(ctx)
	}

	cc.checkGlobalState()
}

func (cc *CarouselController) checkGlobalState() {
	allComplete := len(cc.modules) > 0
	anyPending := false
	for _, ctx := range cc.modules {
		if !ctx.IsComplete() {
			allComplete = false
			if ctx.Status != StatusUnknown {
				anyPending = true
			}
		}
	}
	switch {
	case allComplete:
		cc.setState(StateReady)
	case anyPending:
		if cc.state != StateLoading {
			cc.setState(StateDiscovering)
		}
	case cc.dsiFound:
		cc.setState(StateMounting)
	}
}

// ListModules writes the status table of every known module
func (cc *CarouselController) ListModules(out io.Writer) {
	ids := make([]int, 0, len(cc.modules))
	for id := range cc.modules {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		ctx := cc.modules[uint16(id)]
		status := "PENDING"
		if ctx.IsComplete() {
			status = "COMPLETE"
		}
		fmt.Fprintf(out, "ID: %04X | Ver: %d | Size: %6d | Blocks: %3d/%3d | Status: %s\n",
			ctx.ModuleID, ctx.ModuleVersion, ctx.ModuleSize,
			ctx.CountReceived(), ctx.ExpectedBlocks, status)
	}
}
