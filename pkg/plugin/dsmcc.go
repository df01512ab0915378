package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	log "github.com/sirupsen/logrus"

	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/demux"
	"github.com/piotrserafin/gocarousel/pkg/dsmcc"
	"github.com/piotrserafin/gocarousel/pkg/psi"
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

var (
	ErrNoPID  = errors.New("no carousel PID selected")
	ErrBadPID = errors.New("PID out of range")
)

// DSMCCPlugin extracts the content of a DSM-CC object carousel.
// Completed modules are inflated when the DII announced compression
// and written to the output directory as module_XXXX.bin. A module
// whose payload did not change since the last write is skipped, the
// carousel repeats its content forever.
type DSMCCPlugin struct {
	// Options, set before GetOptions
	PID        uint16
	OutputDir  string
	SizeBudget uint64

	// StatusOut receives the module status table on Stop, default
	// stderr
	StatusOut io.Writer

	// XMLOut, when set, receives the XML representation of every
	// decoded table
	XMLOut io.Writer

	demux      *demux.Demux
	controller *dsmcc.CarouselController
	written    map[uint16]uint64
	abort      bool
}

// NewDSMCCPlugin returns a plugin with default options
func NewDSMCCPlugin() *DSMCCPlugin {
	return &DSMCCPlugin{
		PID:        gocarousel.PidNull,
		OutputDir:  ".",
		SizeBudget: dsmcc.DefaultSizeBudget,
		StatusOut:  os.Stderr,
	}
}

// GetOptions validates the configured options
func (p *DSMCCPlugin) GetOptions() error {
	if p.PID == gocarousel.PidNull {
		return ErrNoPID
	}
	if p.PID > gocarousel.PidMax {
		return ErrBadPID
	}
	if p.OutputDir == "" {
		p.OutputDir = "."
	}
	return nil
}

// Start allocates the demux and carousel controller
func (p *DSMCCPlugin) Start() error {
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return err
	}
	p.abort = false
	p.written = make(map[uint16]uint64)
	p.controller = dsmcc.NewCarouselController()
	p.controller.SetSizeBudget(p.SizeBudget)
	p.controller.SetModuleCompletedHandler(p.onModuleComplete)
	p.demux = demux.New(p, p)
	p.demux.AddPID(p.PID)
	log.Infof("[EXTRACT] watching PID x%X, writing to %v", p.PID, p.OutputDir)
	return nil
}

// Stop emits the module status table and releases the demux
func (p *DSMCCPlugin) Stop() error {
	if p.controller != nil && p.StatusOut != nil {
		p.controller.ListModules(p.StatusOut)
	}
	p.demux = nil
	p.controller = nil
	return nil
}

// ProcessPacket feeds one packet to the demux
func (p *DSMCCPlugin) ProcessPacket(pkt *gocarousel.Packet, _ *Metadata) Status {
	p.demux.FeedPacket(pkt)
	if p.abort {
		return StatusEnd
	}
	return StatusOK
}

// HandleTable dumps the decoded table when XML output is enabled and
// forwards it to the carousel controller
func (p *DSMCCPlugin) HandleTable(d *demux.Demux, bt *psi.BinaryTable) {
	if p.XMLOut != nil {
		p.dumpXML(bt)
	}
	p.controller.HandleTable(d, bt)
}

// HandleSection forwards block level progress to the controller
func (p *DSMCCPlugin) HandleSection(d *demux.Demux, sec *psi.Section) {
	p.controller.HandleSection(d, sec)
}

func (p *DSMCCPlugin) dumpXML(bt *psi.BinaryTable) {
	factory := psi.TableFactoryForID(bt.TableID())
	if factory == nil {
		return
	}
	table := factory()
	if err := table.Deserialize(bt); err != nil {
		return
	}
	root := xmlenc.NewElement(table.XMLName())
	table.BuildXML(root)
	data, err := xmlenc.Marshal(root)
	if err != nil {
		log.Warnf("[EXTRACT] could not marshal table x%X : %v", bt.TableID(), err)
		return
	}
	p.XMLOut.Write(data)
}

// onModuleComplete inflates and persists one module
func (p *DSMCCPlugin) onModuleComplete(ctx *dsmcc.ModuleContext) {
	data := ctx.Payload
	if ctx.IsCompressed {
		inflated, err := inflate(data)
		if err != nil {
			log.Warnf("[EXTRACT] module x%04X announced compressed but does not inflate : %v",
				ctx.ModuleID, err)
		} else {
			if ctx.OriginalSize != 0 && uint32(len(inflated)) != ctx.OriginalSize {
				log.Warnf("[EXTRACT] module x%04X inflated to %d bytes, descriptor announced %d",
					ctx.ModuleID, len(inflated), ctx.OriginalSize)
			}
			data = inflated
		}
	}

	digest := xxhash.Sum64(data)
	if previous, ok := p.written[ctx.ModuleID]; ok && previous == digest {
		log.Debugf("[EXTRACT] module x%04X unchanged, skipping rewrite", ctx.ModuleID)
		return
	}

	name := filepath.Join(p.OutputDir, fmt.Sprintf("module_%04X.bin", ctx.ModuleID))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		log.Errorf("[EXTRACT] writing %v : %v", name, err)
		p.abort = true
		return
	}
	p.written[ctx.ModuleID] = digest
	log.Infof("[EXTRACT] wrote %v (%d bytes, version %d)", name, len(data), ctx.ModuleVersion)
}

func inflate(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
