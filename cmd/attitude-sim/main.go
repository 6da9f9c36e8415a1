// Command attitude-sim holds one device pose at a fixed station and steps
// simulated time forward, printing the attitude the pipeline reports in the
// requested frame at every tick. In the local-horizon and Earth-fixed frames
// the output is constant; in J2000 it traces Earth rotation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/earth"
	"github.com/signalsfoundry/device-attitude/internal/api"
	"github.com/signalsfoundry/device-attitude/internal/config"
	"github.com/signalsfoundry/device-attitude/model"
	"github.com/signalsfoundry/device-attitude/timectrl"
)

type sweepConfig struct {
	Start    time.Time
	Duration time.Duration
	Tick     time.Duration
	Mode     timectrl.Mode

	Station model.Station
	Sample  model.OrientationSample
	Frame   core.ReferenceFrame

	// TiltSequence and FlipElevationRad match the server's attitude settings.
	TiltSequence     core.TiltSequence
	FlipElevationRad float64
}

func main() {
	configPath := flag.String("config", "", "path to a YAML server config whose attitude settings the sweep reuses")
	tiltSequence := flag.String("tilt-sequence", "", "tilt axis order, e.g. 2-1-3 (overrides config)")
	flipElevation := flag.Float64("flip-elevation", 0, "top-edge elevation in degrees below which the north angle flips (overrides config)")
	start := flag.String("start", "", "RFC3339 start time (default: now)")
	duration := flag.Duration("duration", time.Hour, "total simulated duration")
	tick := flag.Duration("tick", 10*time.Minute, "tick interval")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	lat := flag.Float64("lat", 35.6812, "station latitude in degrees")
	lon := flag.Float64("lon", 139.7671, "station longitude in degrees")
	alt := flag.Float64("alt", 0.04, "station altitude in km")
	alpha := flag.Float64("alpha", 0, "device alpha angle in degrees")
	beta := flag.Float64("beta", 0, "device beta angle in degrees")
	gamma := flag.Float64("gamma", 0, "device gamma angle in degrees")
	compass := flag.Float64("compass", 0, "raw compass heading in degrees")
	declination := flag.Bool("declination", false, "remove modelled magnetic declination from the compass heading")
	frame := flag.String("frame", "j2000", "output frame: enu, itrf, or j2000")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attitude-sim: %v\n", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tilt-sequence":
			settings.Attitude.TiltSequence = *tiltSequence
		case "flip-elevation":
			settings.Attitude.FlipElevationDeg = *flipElevation
		case "declination":
			settings.Attitude.ApplyDeclination = *declination
		}
	})
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "attitude-sim: %v\n", err)
		os.Exit(2)
	}

	startTime := time.Now().UTC()
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "attitude-sim: bad -start: %v\n", err)
			os.Exit(2)
		}
		startTime = t.UTC()
	}
	f, err := core.ParseFrame(*frame)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attitude-sim: %v\n", err)
		os.Exit(2)
	}
	mode := timectrl.Accelerated
	if !*accelerated {
		mode = timectrl.RealTime
	}

	cfg := sweepConfig{
		Start:    startTime,
		Duration: *duration,
		Tick:     *tick,
		Mode:     mode,
		Station:  model.Station{LatitudeDeg: *lat, LongitudeDeg: *lon, AltitudeKm: *alt, UpdatedAt: startTime},
		Sample: model.OrientationSample{
			AlphaDeg:          *alpha,
			BetaDeg:           *beta,
			GammaDeg:          *gamma,
			CompassHeadingDeg: *compass,
			ApplyDeclination:  settings.Attitude.ApplyDeclination,
		},
		Frame:            f,
		TiltSequence:     settings.TiltSequence(),
		FlipElevationRad: settings.FlipElevationRad(),
	}

	fmt.Fprintf(os.Stderr, "Starting sweep: frame=%s sequence=%s duration=%s tick=%s\n", f, cfg.TiltSequence, *duration, *tick)
	n, err := sweep(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attitude-sim: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Sweep complete: %d results.\n", n)
}

// sweep drives a TimeController through cfg and writes one JSON line per
// tick. It returns the number of lines written.
func sweep(cfg sweepConfig, w io.Writer) (int, error) {
	if err := core.ValidateStation(cfg.Station); err != nil {
		return 0, err
	}
	tc := timectrl.NewTimeController(cfg.Start, cfg.Tick, cfg.Mode)

	earthModel := earth.Model{}
	pipeline, err := core.NewPipeline(earthModel,
		core.WithTiltSequence(cfg.TiltSequence),
		core.WithNorthAngleEstimator(core.NorthAngleEstimator{FlipElevation: cfg.FlipElevationRad}),
		core.WithDeclinationSource(earthModel),
		core.WithClock(tc),
	)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	written := 0
	var firstErr error

	tc.AddListener(func(simTime time.Time) {
		if firstErr != nil {
			return
		}
		station := cfg.Station
		res, err := pipeline.Compute(core.Request{
			Sample:  cfg.Sample,
			Station: &station,
			Frame:   cfg.Frame,
		})
		if err != nil {
			firstErr = fmt.Errorf("tick %s: %w", simTime.Format(time.RFC3339), err)
			return
		}
		if err := enc.Encode(api.ResultPayload(res)); err != nil {
			firstErr = err
			return
		}
		written++
	})

	<-tc.Start(cfg.Duration)
	return written, firstErr
}
