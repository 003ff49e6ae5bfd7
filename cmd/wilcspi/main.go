// Command wilcspi reads Saleae digital captures of a WILC SPI bus and reports
// commands whose response took longer than a threshold, the condition the
// driver watchdog counts as a stalled command.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
	"github.com/soypat/wilc"
)

// WILC SPI command opcodes.
const (
	cmdDMAWrite      = 0xc1
	cmdDMARead       = 0xc2
	cmdInternalWrite = 0xc3
	cmdInternalRead  = 0xc4
	cmdTerminate     = 0xc5
	cmdRepeat        = 0xc6
	cmdDMAExtWrite   = 0xc7
	cmdDMAExtRead    = 0xc8
	cmdSingleWrite   = 0xc9
	cmdSingleRead    = 0xca
	cmdReset         = 0xcf
)

func cmdName(op byte) string {
	switch op {
	case cmdDMAWrite:
		return "dma-write"
	case cmdDMARead:
		return "dma-read"
	case cmdInternalWrite:
		return "internal-write"
	case cmdInternalRead:
		return "internal-read"
	case cmdTerminate:
		return "terminate"
	case cmdRepeat:
		return "repeat"
	case cmdDMAExtWrite:
		return "dma-ext-write"
	case cmdDMAExtRead:
		return "dma-ext-read"
	case cmdSingleWrite:
		return "single-write"
	case cmdSingleRead:
		return "single-read"
	case cmdReset:
		return "reset"
	}
	return ""
}

type command struct {
	Op    byte
	Addr  uint32
	Start float64
	Gap   time.Duration
}

func (c command) String() string {
	return fmt.Sprintf("t=%.6f %-14s addr=%#06x gap=%s", c.Start, cmdName(c.Op), c.Addr, c.Gap)
}

func main() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "wilcspi - Find stalled WILC SPI commands in Saleae digital captures.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI MOSI data.")
	miso := flag.String("f-miso", "digital_3.bin", "Input filename: SPI MISO data.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI CLK data.")
	threshold := flag.Duration("gap", 100*time.Millisecond, "Response gap reported as a stall.")
	flag.Parse()

	start := time.Now()
	cmds, err := scan(*mosi, *miso, *enable, *clk)
	if err != nil {
		log.Fatal(err)
	}
	stalls := 0
	for _, c := range cmds {
		if c.Gap < *threshold {
			continue
		}
		stalls++
		fmt.Println(c)
	}
	wd := wilc.DefaultWatchdogConfig()
	logger.Info("scan done",
		slog.Int("commands", len(cmds)),
		slog.Int("stalls", stalls),
		slog.Bool("recovery", stalls >= wd.Threshold),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// scan decodes the capture into commands. A command's gap is the time until
// the next transaction on the bus.
func scan(fmosi, fmiso, fenable, fclk string) ([]command, error) {
	var files [4]*saleae.DigitalFile
	for i, name := range []string{fmosi, fmiso, fenable, fclk} {
		df, err := opendigital(name)
		if err != nil {
			return nil, err
		}
		files[i] = df
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(files[3], files[2], files[0], files[1])
	var cmds []command
	for i, tx := range txs {
		if len(tx.SDO) == 0 || cmdName(tx.SDO[0]) == "" {
			continue
		}
		c := command{Op: tx.SDO[0], Start: tx.StartTime()}
		if len(tx.SDO) >= 4 {
			c.Addr = uint32(tx.SDO[1])<<16 | uint32(tx.SDO[2])<<8 | uint32(tx.SDO[3])
		}
		if i+1 < len(txs) {
			c.Gap = time.Duration((txs[i+1].StartTime() - c.Start) * float64(time.Second))
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return saleae.ReadDigitalFile(fp)
}
