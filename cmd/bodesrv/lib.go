package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"goji.io"

	"github.com/nasa-jpl/bodesweep/agilent"
	"github.com/nasa-jpl/bodesweep/generichttp/ascii"
	bodehttp "github.com/nasa-jpl/bodesweep/generichttp/bode"
	"github.com/nasa-jpl/bodesweep/generichttp/tmc"
	"github.com/nasa-jpl/bodesweep/keysight"
	"github.com/nasa-jpl/bodesweep/rigol"
	"github.com/nasa-jpl/bodesweep/server"
	"github.com/nasa-jpl/bodesweep/server/middleware/locker"
	"github.com/nasa-jpl/bodesweep/siglent"
	"github.com/nasa-jpl/bodesweep/sim"
	"github.com/nasa-jpl/bodesweep/sweep"
	"github.com/nasa-jpl/bodesweep/util"
)

// GeneratorSetup holds the connection parameters for the stimulus generator
type GeneratorSetup struct {
	// Addr holds the network or filesystem address of the device,
	// e.g. 192.168.100.123:5025, or /dev/ttyS4 for an RS232 device
	Addr string `yaml:"Addr"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial"`
}

// CaptureSetup holds the connection parameters for the response instrument
type CaptureSetup struct {
	// Type selects the capture driver, one of
	// "siglent", "rigol", "keysight-dmm"
	Type string `yaml:"Type"`

	Addr string `yaml:"Addr"`

	// Channel is the scope channel probing the circuit output, e.g. "C1"
	// for Siglent or "1" for Rigol.  Ignored for DMMs.
	Channel string `yaml:"Channel"`

	// InputChannel optionally probes the stimulus, enabling measured
	// input amplitude and phase
	InputChannel string `yaml:"InputChannel"`
}

// SupplySetup holds the parameters of an optional DUT power supply, brought
// up before a sweep.  Addr empty means no supply is used.
type SupplySetup struct {
	Addr string `yaml:"Addr"`

	Voltage float64 `yaml:"Voltage"`

	CurrentLimit float64 `yaml:"CurrentLimit"`
}

// SweepSetup holds the default sweep parameters, used by the one-shot sweep
// command and as defaults for HTTP requests
type SweepSetup struct {
	StartHz float64 `yaml:"StartHz"`

	StopHz float64 `yaml:"StopHz"`

	Points int `yaml:"Points"`

	// Spacing is "logarithmic" or "linear"
	Spacing string `yaml:"Spacing"`

	AmplitudeVpp float64 `yaml:"AmplitudeVpp"`

	SettleS float64 `yaml:"SettleS"`

	MaxRetries int `yaml:"MaxRetries"`

	MaxGain float64 `yaml:"MaxGain"`
}

// Config holds the initialization parameters for the server and the
// instruments it fronts.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock replaces the instruments with a simulated RC lowpass bench
	Mock bool `yaml:"Mock"`

	// MockCutoffHz is the corner frequency of the simulated circuit
	MockCutoffHz float64 `yaml:"MockCutoffHz"`

	Generator GeneratorSetup `yaml:"Generator"`

	Capture CaptureSetup `yaml:"Capture"`

	Supply SupplySetup `yaml:"Supply"`

	// AmplitudeMin/Max bound the stimulus amplitude to protect the DUT;
	// both zero means unbounded
	AmplitudeMin float64 `yaml:"AmplitudeMin"`
	AmplitudeMax float64 `yaml:"AmplitudeMax"`

	Sweep SweepSetup `yaml:"Sweep"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// SweepSpec converts the configured sweep parameters to an engine spec,
// enforcing the amplitude limit
func (c Config) SweepSpec() (sweep.Spec, error) {
	lim := util.Limiter{Min: c.AmplitudeMin, Max: c.AmplitudeMax}
	if !lim.Check(c.Sweep.AmplitudeVpp) {
		return sweep.Spec{}, fmt.Errorf("amplitude %G Vpp outside configured limit [%G, %G]",
			c.Sweep.AmplitudeVpp, c.AmplitudeMin, c.AmplitudeMax)
	}
	spacing, err := sweep.ParseSpacing(c.Sweep.Spacing)
	if err != nil {
		return sweep.Spec{}, err
	}
	return sweep.Spec{
		Start:      c.Sweep.StartHz,
		Stop:       c.Sweep.StopHz,
		Points:     c.Sweep.Points,
		Spacing:    spacing,
		Amplitude:  c.Sweep.AmplitudeVpp,
		Settle:     util.SecsToDuration(c.Sweep.SettleS),
		MaxRetries: c.Sweep.MaxRetries,
		MaxGain:    c.Sweep.MaxGain,
	}, nil
}

// buildInstruments creates the stimulus and capture sides from the config.
// The returned function generator serves the manual control HTTP routes and
// is nil only on error.
func buildInstruments(c Config) (sweep.Stimulus, sweep.Capture, tmc.FunctionGenerator, error) {
	if c.Mock {
		cutoff := c.MockCutoffHz
		if cutoff == 0 {
			cutoff = 1000
		}
		bench := sim.NewBench(sim.Circuit{CutoffHz: cutoff})
		stim := bench.Stimulus()
		return stim, bench.Capture(), stim, nil
	}
	var gen *agilent.FunctionGenerator
	if c.Generator.Serial {
		gen = agilent.NewFunctionGeneratorSerial(c.Generator.Addr)
	} else {
		gen = agilent.NewFunctionGenerator(c.Generator.Addr)
	}
	var cap sweep.Capture
	typ := strings.ToLower(c.Capture.Type)
	switch typ {
	case "siglent":
		scope := siglent.NewScope(c.Capture.Addr, c.Capture.Channel)
		scope.InputChannel = c.Capture.InputChannel
		cap = scope
	case "rigol":
		scope := rigol.NewScope(c.Capture.Addr, c.Capture.Channel)
		scope.InputChannel = c.Capture.InputChannel
		cap = scope
	case "keysight-dmm", "dmm":
		dmm := keysight.NewMultimeter(c.Capture.Addr)
		if err := dmm.ConfigureACVolts(); err != nil {
			return nil, nil, nil, err
		}
		cap = dmm
	default:
		return nil, nil, nil, fmt.Errorf("capture type %q not understood", c.Capture.Type)
	}
	return gen, cap, gen, nil
}

// powerOn brings up the DUT supply if one is configured
func powerOn(c Config) error {
	if c.Supply.Addr == "" {
		return nil
	}
	psu := keysight.NewPowerSupply(c.Supply.Addr)
	if err := psu.SetVoltage(c.Supply.Voltage); err != nil {
		return err
	}
	if err := psu.SetCurrentLimit(c.Supply.CurrentLimit); err != nil {
		return err
	}
	return psu.EnableOutput()
}

// subMuxSanitize prepares a URL stem for mounting, "generator" => "/generator"
func subMuxSanitize(stem string) string {
	if !strings.HasPrefix(stem, "/") {
		stem = "/" + stem
	}
	return strings.TrimSuffix(stem, "/")
}

// mount binds an HTTPer's route table to a goji submux and hangs it on root.
// middlewares wrap the whole node and see the full request path.
func mount(root chi.Router, stem string, httper server.HTTPer, supergraph map[string][]string, middlewares ...func(http.Handler) http.Handler) {
	stem = subMuxSanitize(stem)
	supergraph[stem] = httper.RT().Endpoints()
	mux := goji.NewMux()
	httper.RT().Bind(mux)
	// goji matches on URL.Path, so the mount prefix has to come off first
	var h http.Handler = http.StripPrefix(stem, mux)
	for _, mw := range middlewares {
		h = mw(h)
	}
	root.Mount(stem, h)
}

// BuildMux assembles the HTTP surface: the sweep runner, manual generator
// control behind a lock, prometheus metrics, and an endpoint graph
func BuildMux(c Config) (chi.Router, error) {
	stim, cap, gen, err := buildInstruments(c)
	if err != nil {
		return nil, err
	}
	if err := powerOn(c); err != nil {
		return nil, err
	}
	eng := sweep.New(stim, cap)
	prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem: "bode",
			Name:      "engine_state",
			Help:      "Sweep engine state as an enumeration, 0 is idle.",
		},
		func() float64 { return float64(eng.State()) },
	))

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	runner := bodehttp.NewRunner(eng)
	mount(root, "bode", runner, supergraph)

	// manual generator control is lockable so a client cannot disturb the
	// stimulus mid-sweep
	genHTTP := tmc.NewHTTPFunctionGenerator(gen)
	if raw, ok := gen.(ascii.RawCommunicator); ok {
		ascii.InjectRawComm(genHTTP, raw)
	}
	lock := locker.New()
	locker.Inject(genHTTP, lock)
	mount(root, "generator", genHTTP, supergraph, lock.Check)

	root.Method(http.MethodGet, "/metrics", promhttp.Handler())
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, nil
}
