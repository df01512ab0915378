package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	gocarousel "github.com/piotrserafin/gocarousel"
	"github.com/piotrserafin/gocarousel/pkg/plugin"
)

func main() {
	pid := flag.Uint("pid", uint(gocarousel.PidNull), "PID carrying the DSM-CC object carousel")
	outputDir := flag.String("output-directory", "", "directory for extracted modules")
	input := flag.String("input", "", "transport stream file, stdin when empty")
	configPath := flag.String("config", "", "INI profile providing option defaults")
	budget := flag.Uint64("size-budget", 0, "maximum total bytes one DII may announce, 0 keeps the default")
	xmlDump := flag.Bool("xml", false, "write the XML form of every decoded table to stdout")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	p := plugin.NewDSMCCPlugin()

	// INI profile first, explicit flags override it
	if *configPath != "" {
		if err := applyProfile(p, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "could not load profile %v : %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if explicit["pid"] {
		if *pid > uint(gocarousel.PidMax) {
			fmt.Fprintf(os.Stderr, "invalid options : %v\n", plugin.ErrBadPID)
			os.Exit(1)
		}
		p.PID = uint16(*pid)
	}
	if explicit["output-directory"] {
		p.OutputDir = *outputDir
	}
	if explicit["size-budget"] && *budget != 0 {
		p.SizeBudget = *budget
	}
	if *xmlDump {
		p.XMLOut = os.Stdout
	}

	if err := p.GetOptions(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid options : %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	in := io.Reader(os.Stdin)
	if *input != "" {
		file, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not open input : %v\n", err)
			os.Exit(1)
		}
		defer file.Close()
		in = file
	}

	if err := p.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "could not start : %v\n", err)
		os.Exit(1)
	}

	reader := bufio.NewReaderSize(in, 64*gocarousel.PacketSize)
	meta := plugin.Metadata{}
	var pkt gocarousel.Packet
	for {
		err := readPacket(reader, &pkt)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Errorf("[EXTRACT] read error : %v", err)
			p.Stop()
			os.Exit(1)
		}
		status := p.ProcessPacket(&pkt, &meta)
		meta.PacketIndex++
		if status == plugin.StatusEnd {
			break
		}
	}

	if err := p.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error on stop : %v\n", err)
		os.Exit(1)
	}
}

// readPacket reads the next 188 byte packet, scanning forward to the
// next sync byte after a framing loss
func readPacket(reader *bufio.Reader, pkt *gocarousel.Packet) error {
	if _, err := io.ReadFull(reader, pkt[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return err
	}
	for !pkt.HasSync() {
		// Shift one byte at a time until a sync byte leads again
		copy(pkt[:], pkt[1:])
		b, err := reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return err
		}
		pkt[gocarousel.PacketSize-1] = b
	}
	return nil
}

// applyProfile loads plugin defaults from the dsmcc section of an INI
// file
func applyProfile(p *plugin.DSMCCPlugin, path string) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}
	section := cfg.Section("dsmcc")
	if key := section.Key("pid"); key.String() != "" {
		value, err := key.Uint()
		if err != nil || value > uint(gocarousel.PidMax) {
			return errors.New("invalid pid in profile")
		}
		p.PID = uint16(value)
	}
	if key := section.Key("output-directory"); key.String() != "" {
		p.OutputDir = key.String()
	}
	if key := section.Key("size-budget"); key.String() != "" {
		value, err := key.Uint64()
		if err != nil {
			return errors.New("invalid size-budget in profile")
		}
		p.SizeBudget = value
	}
	return nil
}
