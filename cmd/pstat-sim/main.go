// pstat-sim runs the real potentiostat firmware core on a host: the actual
// dispatcher, state controller and calibration store, with the converters
// and relays replaced by models. Hosts connect over TCP with the same
// length-prefixed framing the hardware link uses, so client software can be
// developed without a board on the bench.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"

	"potentiostat-go/bus"
	"potentiostat-go/calstore"
	"potentiostat-go/platform"
	"potentiostat-go/services/bridge"
	"potentiostat-go/services/instrument"
)

var (
	// Version is typically injected via ldflags at build time.
	Version = "1"

	configFileName = "pstat-sim.yml"
	k              = koanf.New(".")
)

// Config is the YAML-file shape of the simulator's settings.
type Config struct {
	Addr             string `koanf:"addr" yaml:"addr"`
	Rows             int    `koanf:"rows" yaml:"rows"`
	RowSize          int    `koanf:"row_size" yaml:"row_size"`
	SampleIntervalMS int    `koanf:"sample_interval_ms" yaml:"sample_interval_ms"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:             ":9750",
		Rows:             24,
		RowSize:          16,
		SampleIntervalMS: 67,
	}, "koanf"), nil)
	if err := k.Load(file.Provider(configFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			glog.Exitf("error loading config: %v", err)
		}
	}
}

func root() {
	fmt.Println(`pstat-sim serves the potentiostat command set over TCP without hardware.

Usage:
	pstat-sim [flags] <command>

Commands:
	run
	mkconf
	conf
	version`)
}

func mkconf() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		glog.Exit(err)
	}
	f, err := os.Create(configFileName)
	if err != nil {
		glog.Exit(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		glog.Exit(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		glog.Exit(err)
	}
}

func run() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		glog.Exit(err)
	}

	mem := platform.NewMemRows(c.Rows, c.RowSize)
	store, err := calstore.Mount(mem)
	if err != nil {
		glog.Exitf("calstore mount: %v", err)
	}

	dac := newSimDAC()
	adc := newSimADC(dac, time.Duration(c.SampleIntervalMS)*time.Millisecond)
	relays := instrument.Pins{
		Mode:   platform.NewSimPin(10),
		Cell:   platform.NewSimPin(11),
		Range1: platform.NewSimPin(12),
		Range2: platform.NewSimPin(13),
		Range3: platform.NewSimPin(14),
	}

	ctx := context.Background()
	b := bus.NewBus(8)

	ctrl := instrument.NewController(relays, instrument.ControllerConfig{})
	svc := instrument.New(instrument.Config{}, ctrl, dac, adc, store)
	if err := svc.Start(ctx, b.NewConnection("instrument")); err != nil {
		glog.Exitf("instrument start: %v", err)
	}
	go logState(ctx, b.NewConnection("observer"))

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		glog.Exit(err)
	}
	glog.Infof("simulated instrument listening on %s", c.Addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			glog.Exit(err)
		}
		glog.Infof("host connected from %s", conn.RemoteAddr())
		go func(conn net.Conn) {
			defer conn.Close()
			bridge.Start(ctx, b.NewConnection("bridge-"+conn.RemoteAddr().String()),
				platform.NewStreamLink(conn), bridge.Config{})
			glog.Infof("host %s disconnected", conn.RemoteAddr())
		}(conn)
	}
}

// logState mirrors the retained instrument state into the log, the way an
// operator would watch the front-panel relays.
func logState(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(instrument.TopicState)
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			if st, ok := msg.Payload.(instrument.State); ok {
				glog.Infof("state: mode=%s cell=%v range=%d", st.Mode, st.Cell, st.Range)
			}
		}
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()
	if flag.NArg() == 0 {
		root()
		return
	}
	setupconfig()
	switch strings.ToLower(flag.Arg(0)) {
	case "run":
		run()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		fmt.Printf("pstat-sim version %v\n", Version)
	default:
		glog.Exit("unknown command")
	}
}
