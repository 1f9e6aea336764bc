package card

import (
	"bytes"
	"context"
	"encoding/hex"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"

	"github.com/robotalks/sdcard.go/pkg/cli/sh"
	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/sd"
)

// BlockData is the JSON form of blocks read.
type BlockData struct {
	Addr  uint32 `json:"addr"`
	Count uint32 `json:"count"`
	Data  []byte `json:"data"`
}

func printLines(c *ishell.Context, lines []string) {
	for _, line := range lines {
		c.Println(line)
	}
}

var (
	// InitCmd initializes the inserted card.
	InitCmd = ishell.Cmd{
		Name: "init",
		Help: "initialize the card",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			if err := s.InitCard(context.Background()); err != nil {
				c.Err(err)
				return
			}
			info := msgs.NewCardInfo("", s.Driver)
			sh.Output(c, info, func() { printLines(c, FormatInfo(info)) })
		},
	}

	// StepsCmd lists the init sequence.
	StepsCmd = ishell.Cmd{
		Name: "steps",
		Help: "list initialization steps",
		Func: func(c *ishell.Context) {
			steps := sd.InitSteps()
			sh.Output(c, steps, func() {
				for n, step := range steps {
					c.Printf("%2d. %s\n", n+1, step)
				}
			})
		},
	}

	// InfoCmd shows the card summary.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "show card information",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			info := msgs.NewCardInfo("", sh.ShellFrom(c).Driver)
			sh.Output(c, info, func() { printLines(c, FormatInfo(info)) })
		}),
	}

	// StatusCmd queries the card status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "query card status",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			st, err := sh.ShellFrom(c).Driver.Status()
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, st, func() { printLines(c, FormatStatus(st)) })
		}),
	}

	// CIDCmd shows the card identification.
	CIDCmd = ishell.Cmd{
		Name: "cid",
		Help: "show card identification",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			card := sh.ShellFrom(c).Driver.Card()
			cid, err := card.DecodedCID()
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, cid, func() { printLines(c, FormatCID(cid)) })
		}),
	}

	// CSDCmd shows the card specific data.
	CSDCmd = ishell.Cmd{
		Name: "csd",
		Help: "show card specific data",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			fields, err := DecodeCSDFields(sh.ShellFrom(c).Driver.Card())
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, fields, func() { printLines(c, FormatCSD(fields)) })
		}),
	}

	// SCRCmd shows the configuration register.
	SCRCmd = ishell.Cmd{
		Name: "scr",
		Help: "show SD configuration register",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			card := sh.ShellFrom(c).Driver.Card()
			scr, err := card.DecodedSCR()
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, scr, func() { printLines(c, FormatSCR(scr)) })
		}),
	}

	// SDStatusCmd shows the SD status.
	SDStatusCmd = ishell.Cmd{
		Name: "sdstatus",
		Help: "show SD status",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			card := sh.ShellFrom(c).Driver.Card()
			st, err := card.DecodedSDStatus()
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, st, func() { printLines(c, FormatSDStatus(st)) })
		}),
	}

	// CapacityCmd shows the card capacity.
	CapacityCmd = ishell.Cmd{
		Name:    "capacity",
		Aliases: []string{"cap"},
		Help:    "show card capacity",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			d := sh.ShellFrom(c).Driver
			size, err := d.CapacityBytes()
			if err != nil {
				c.Err(err)
				return
			}
			blocks, err := d.BlockCount()
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, map[string]uint64{"bytes": size, "blocks": blocks}, func() {
				c.Printf("%s (%d bytes, %d blocks)\n", FormatSize(size), size, blocks)
			})
		}),
	}

	// ReadCmd dumps blocks.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "ADDR [COUNT]",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			addr, count, err := ParseBlocks(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			buf := make([]byte, count*sd.BlockSize)
			if err := sh.ShellFrom(c).Driver.ReadBlocks(context.Background(), buf, addr, count); err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, &BlockData{Addr: addr, Count: count, Data: buf}, func() {
				c.Print(hex.Dump(buf))
			})
		}),
	}

	// FillCmd writes blocks filled with a byte.
	FillCmd = ishell.Cmd{
		Name: "fill",
		Help: "ADDR COUNT BYTE",
		Func: sh.MustBeReady(func(c *ishell.Context) {
			if len(c.Args) != 3 {
				c.Err(errors.New("ADDR COUNT BYTE expected"))
				return
			}
			addr, count, err := ParseBlocks(c.Args[:2])
			if err != nil {
				c.Err(err)
				return
			}
			val, err := strconv.ParseUint(c.Args[2], 0, 8)
			if err != nil {
				c.Err(errors.Wrap(err, "invalid byte"))
				return
			}
			buf := bytes.Repeat([]byte{byte(val)}, int(count*sd.BlockSize))
			if err := sh.ShellFrom(c).Driver.WriteBlocks(context.Background(), buf, addr, count); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

func init() {
	sh.AddCmds(
		&InitCmd,
		&StepsCmd,
		&InfoCmd,
		&StatusCmd,
		&CIDCmd,
		&CSDCmd,
		&SCRCmd,
		&SDStatusCmd,
		&CapacityCmd,
		&ReadCmd,
		&FillCmd,
	)
}
