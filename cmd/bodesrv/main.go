package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/bodesweep/bode"
	"github.com/nasa-jpl/bodesweep/sweep"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "bodesrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr: ":8000",
		Capture: CaptureSetup{
			Type:    "siglent",
			Channel: "C1"},
		Sweep: SweepSetup{
			StartHz:      10,
			StopHz:       100000,
			Points:       50,
			Spacing:      "logarithmic",
			AmplitudeVpp: 1,
			SettleS:      0.1,
			MaxRetries:   4}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `bodesrv measures the frequency response of a circuit with lab instruments
and serves the results over HTTP, enabling a server-client architecture
where clients can use the excellent HTTP libraries of any language.

Usage:
	bodesrv <command>

Commands:
	run
	sweep [output.csv]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `bodesrv is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

With Mock: true, the instruments are replaced by a simulated RC lowpass
bench and no hardware is needed.  This is useful to validate sweep
parameters and client code before going to the lab.

The "sweep" command runs one sweep with the configured parameters and
writes CSV to the named file, or stdout if none is given.  The "run"
command starts the HTTP server.

Capture instruments and matching "type" fields, case insensitive:
- Keysight
	> 34470A and other SCPI multimeters, "keysight-dmm", "dmm"
- Rigol
	> DS1000Z series oscilloscopes, "rigol"
- Siglent
	> SDS series oscilloscopes, "siglent"

The stimulus generator is an Agilent/Keysight 33500 series function
generator, connected over TCP or RS232 (Serial: true).`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("bodesrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux, err := BuildMux(c)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

// oneshot runs a single sweep with the configured parameters and writes CSV
// to outpath, or stdout when outpath is empty
func oneshot(outpath string) {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	spec, err := c.SweepSpec()
	if err != nil {
		log.Fatal(err)
	}
	stim, cap, _, err := buildInstruments(c)
	if err != nil {
		log.Fatal(err)
	}
	if err := powerOn(c); err != nil {
		log.Fatal(err)
	}
	eng := sweep.New(stim, cap)

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " sweep",
		SuffixAutoColon: true,
		StopCharacter:   "done",
		StopFailMessage: "sweep failed",
		Writer:          os.Stderr,
	})
	if err != nil {
		log.Fatal(err)
	}

	// ctrl-C stops after the in-flight point instead of leaving the
	// generator driving the DUT
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		eng.Cancel()
	}()

	type outcome struct {
		result bode.ResultSeries
		err    error
	}
	done := make(chan outcome, 1)
	spinner.Start()
	go func() {
		result, err := eng.Run(spec)
		done <- outcome{result, err}
	}()
	var oc outcome
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
poll:
	for {
		select {
		case oc = <-done:
			break poll
		case <-ticker.C:
			spinner.Message(eng.State().String())
		}
	}
	if oc.err != nil {
		spinner.StopFail()
		log.Fatal(oc.err)
	}
	spinner.Stop()

	out := os.Stdout
	if outpath != "" {
		out, err = os.Create(outpath)
		if err != nil {
			log.Fatal(err)
		}
		defer out.Close()
	}
	if err := oc.result.EncodeCSV(out); err != nil {
		log.Fatal(err)
	}
	if oc.result.Cancelled {
		log.Printf("sweep cancelled; %d of %d points recorded", len(oc.result.Points), spec.Points)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "sweep":
		outpath := ""
		if len(args) > 2 {
			outpath = args[2]
		}
		oneshot(outpath)
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
