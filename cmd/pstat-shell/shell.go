package main

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/abiosoft/ishell"
	"github.com/tarm/serial"

	"potentiostat-go/hw"
	"potentiostat-go/platform"
	"potentiostat-go/x/conv"
)

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

// Shell is an interactive client for the instrument's command set, over a
// serial port to real hardware or TCP to the simulator.
type Shell struct {
	Shell  *ishell.Shell
	Config Config

	mu    sync.Mutex
	link  hw.FrameLink
	close func() error
	where string
}

func NewShell(conf Config) *Shell {
	s := &Shell{
		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands() {
		s.Shell.AddCmd(cmd)
	}
	return s
}

func shellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) connectTCP(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	s.setLink(platform.NewStreamLink(conn), conn.Close, addr)
	return nil
}

func (s *Shell) connectSerial(port string, baud int) error {
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return err
	}
	s.setLink(platform.NewStreamLink(p), p.Close, port)
	return nil
}

func (s *Shell) setLink(link hw.FrameLink, close func() error, where string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.close != nil {
		s.close()
	}
	s.link = link
	s.close = close
	s.where = where
	s.Shell.SetPrompt("[" + where + "] > ")
}

func (s *Shell) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.close != nil {
		s.close()
	}
	s.link = nil
	s.close = nil
	s.where = ""
	s.Shell.SetPrompt(unconnectedPrompt)
}

// send performs one command round trip and renders the reply: textual
// replies verbatim, raw records as hex.
func (s *Shell) send(cmd []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return "", fmt.Errorf("not connected")
	}
	if err := s.link.WriteFrame(cmd); err != nil {
		return "", err
	}
	buf := make([]byte, 255)
	n, err := s.link.ReadFrame(buf)
	if err != nil {
		return "", err
	}
	return renderReply(buf[:n]), nil
}

func renderReply(reply []byte) string {
	if textual(reply) {
		return string(reply)
	}
	return conv.HexString(reply)
}

func textual(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

// doCommand is the shared body of every instrument command: send, print
// reply or error.
func doCommand(c *ishell.Context, cmd string) {
	reply, err := shellFrom(c).send([]byte(cmd))
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(reply)
}

func mustBeRecord(c *ishell.Context, arg string) ([]byte, bool) {
	rec, ok := conv.ParseHex(arg)
	if !ok || len(rec) != 6 {
		c.Err(fmt.Errorf("want 12 hex digits, got %q", arg))
		return nil, false
	}
	return rec, true
}

func commands() []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name: "connect",
			Help: "connect <host:port | serial device>",
			Func: func(c *ishell.Context) {
				s := shellFrom(c)
				target := s.Config.Addr
				if len(c.Args) > 0 {
					target = c.Args[0]
				}
				var err error
				if strings.Contains(target, ":") {
					err = s.connectTCP(target)
				} else {
					err = s.connectSerial(target, s.Config.Baud)
				}
				if err != nil {
					c.Err(err)
					return
				}
				c.Println("connected to", target)
			},
		},
		{
			Name: "disconnect",
			Help: "close the instrument link",
			Func: func(c *ishell.Context) { shellFrom(c).disconnect() },
		},
		{
			Name: "cell",
			Help: "cell <on|off>",
			Func: func(c *ishell.Context) {
				switch strings.Join(c.Args, " ") {
				case "on":
					doCommand(c, "CELL ON")
				case "off":
					doCommand(c, "CELL OFF")
				default:
					c.Err(fmt.Errorf("usage: cell <on|off>"))
				}
			},
		},
		{
			Name: "mode",
			Help: "mode <pot|galv>",
			Func: func(c *ishell.Context) {
				switch strings.Join(c.Args, " ") {
				case "pot":
					doCommand(c, "POTENTIOSTATIC")
				case "galv":
					doCommand(c, "GALVANOSTATIC")
				default:
					c.Err(fmt.Errorf("usage: mode <pot|galv>"))
				}
			},
		},
		{
			Name: "range",
			Help: "range <1|2|3>",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 1 || len(c.Args[0]) != 1 || c.Args[0][0] < '1' || c.Args[0][0] > '3' {
					c.Err(fmt.Errorf("usage: range <1|2|3>"))
					return
				}
				doCommand(c, "RANGE "+c.Args[0])
			},
		},
		{
			Name: "dacset",
			Help: "dacset <6 hex digits>",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 1 {
					c.Err(fmt.Errorf("usage: dacset <6 hex digits>"))
					return
				}
				val, ok := conv.ParseHex(c.Args[0])
				if !ok || len(val) != 3 {
					c.Err(fmt.Errorf("want 6 hex digits, got %q", c.Args[0]))
					return
				}
				doCommand(c, "DACSET "+string(val))
			},
		},
		{
			Name: "daccal",
			Help: "run the DAC self-calibration (takes about half a second)",
			Func: func(c *ishell.Context) { doCommand(c, "DACCAL") },
		},
		{
			Name: "adcread",
			Help: "poll for a conversion result",
			Func: func(c *ishell.Context) { doCommand(c, "ADCREAD") },
		},
		{
			Name: "offset",
			Help: "offset read | offset save <12 hex digits>",
			Func: recordCmd("offset", "OFFSETREAD", "OFFSETSAVE "),
		},
		{
			Name: "daccalrec",
			Help: "daccalrec read | daccalrec save <12 hex digits>",
			Func: recordCmd("daccalrec", "DACCALGET", "DACCALSET "),
		},
		{
			Name: "shuntcal",
			Help: "shuntcal read | shuntcal save <12 hex digits>",
			Func: recordCmd("shuntcal", "SHUNTCALREAD", "SHUNTCALSAVE "),
		},
		{
			Name: "raw",
			Help: "raw <command text> — send a command verbatim",
			Func: func(c *ishell.Context) {
				doCommand(c, strings.Join(c.Args, " "))
			},
		},
	}
}

func recordCmd(name, readTok, saveTok string) func(*ishell.Context) {
	return func(c *ishell.Context) {
		switch {
		case len(c.Args) == 1 && c.Args[0] == "read":
			doCommand(c, readTok)
		case len(c.Args) == 2 && c.Args[0] == "save":
			rec, ok := mustBeRecord(c, c.Args[1])
			if !ok {
				return
			}
			doCommand(c, saveTok+string(rec))
		default:
			c.Err(fmt.Errorf("usage: %s read | %s save <12 hex digits>", name, name))
		}
	}
}
