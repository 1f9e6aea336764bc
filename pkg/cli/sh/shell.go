package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/sim"
)

// Shell provides ishell backed interactive shell operating a card slot.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell     *ishell.Shell
	SimConfig *sim.Config
	Config    *sd.Config
	Host      *sim.Host
	Driver    *sd.Driver

	ejected *sim.Card
}

const (
	shellKey    = "$shell"
	emptyPrompt = "[empty] > "
	cardPrompt  = "[card] > "
	readyPrompt = "[%04x] > "
)

// ErrCardNotReady is reported by commands requiring an initialized card.
var ErrCardNotReady = errors.New("card not initialized, run init first")

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&InsertCmd,
		&RemoveCmd,
	}
)

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	sd.SetupFlags()
	sim.SetupFlags()
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell with an emulated slot holding a card.
func New(simConf *sim.Config, conf *sd.Config) (*Shell, error) {
	host, err := simConf.NewHost()
	if err != nil {
		return nil, err
	}
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:     ishell.New(),
		SimConfig: simConf,
		Config:    conf,
		Host:      host,
		Driver:    conf.NewDriver(host),
	}
	if err := s.Driver.InitTransport(); err != nil {
		return nil, err
	}
	s.Driver.OnCardRemoved(func() {
		s.Driver.Eject()
		s.updatePrompt()
	})
	s.Driver.OnCardInserted(s.updatePrompt)
	s.Shell.Set(shellKey, s)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	s.updatePrompt()
	return s, nil
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) updatePrompt() {
	switch {
	case s.Driver.Ready():
		s.Shell.SetPrompt(fmt.Sprintf(readyPrompt, s.Driver.Card().RCA))
	case s.Driver.IsCardInserted():
		s.Shell.SetPrompt(cardPrompt)
	default:
		s.Shell.SetPrompt(emptyPrompt)
	}
}

// MustBeReady wraps command func requiring an initialized card.
func MustBeReady(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if !ShellFrom(c).Driver.Ready() {
			c.Err(ErrCardNotReady)
			return
		}
		fn(c)
	}
}

// Output prints v as JSON when requested, otherwise calls text.
func Output(c *ishell.Context, v interface{}, text func()) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	text()
}

// InitCard initializes the inserted card.
func (s *Shell) InitCard(ctx context.Context) error {
	defer s.updatePrompt()
	return s.Driver.InitCard(ctx)
}

// Insert inserts the removed card, or a new card if none was removed.
func (s *Shell) Insert() error {
	if s.Host.Card() != nil {
		return fmt.Errorf("slot is not empty")
	}
	card := s.ejected
	if card == nil {
		medium, err := s.SimConfig.NewMedium()
		if err != nil {
			return err
		}
		if card, err = sim.NewCard(medium, s.SimConfig); err != nil {
			return err
		}
	}
	s.ejected = nil
	s.Host.Insert(card)
	return nil
}

// Remove takes the card out of the slot.
func (s *Shell) Remove() error {
	card := s.Host.Remove()
	if card == nil {
		return fmt.Errorf("slot is empty")
	}
	s.ejected = card
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// InsertCmd inserts a card into the slot.
	InsertCmd = ishell.Cmd{
		Name: "insert",
		Help: "insert the card",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Insert(); err != nil {
				c.Err(err)
			}
		},
	}

	// RemoveCmd removes the card from the slot.
	RemoveCmd = ishell.Cmd{
		Name:    "remove",
		Aliases: []string{"eject"},
		Help:    "remove the card",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Remove(); err != nil {
				c.Err(err)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	s, err := New(sim.NewConfig(), sd.NewConfig())
	if err != nil {
		log.Fatalln(err)
	}
	s.Run(flag.Args()...)
}
