// pstat-shell is an interactive console for the potentiostat: it speaks the
// instrument's ASCII command set over a USB serial port or over TCP to
// pstat-sim, with calibration records entered and shown as hex.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

var (
	configFileName = "pstat-shell.yml"
	k              = koanf.New(".")

	evalOnly bool
)

// Config selects the default connection target.
type Config struct {
	// Addr is the default connect target: host:port for TCP, otherwise a
	// serial device path.
	Addr string `koanf:"addr" yaml:"addr"`
	Baud int    `koanf:"baud" yaml:"baud"`
}

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluate the arguments as one command, no interactive shell.")
}

func setupconfig() Config {
	k.Load(structs.Provider(Config{
		Addr: "localhost:9750",
		Baud: 115200,
	}, "koanf"), nil)
	if err := k.Load(file.Provider(configFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			fmt.Fprintln(os.Stderr, "error loading config:", err)
			os.Exit(1)
		}
	}
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return c
}

func main() {
	flag.Parse()
	s := NewShell(setupconfig())

	if evalOnly {
		if err := s.Shell.Process(flag.Args()...); err != nil {
			os.Exit(1)
		}
		return
	}
	s.Shell.Println("pstat shell — 'help' lists commands, 'connect' opens the instrument link")
	s.Shell.Run()
}
