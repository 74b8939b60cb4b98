package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"receiptgate/pkg/gate"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// exit codes
const (
	exitAccept = 0
	exitReject = 1
	exitSetup  = 2
)

func main() {
	profileFlag := flag.String("profile", gate.ProfileGeometry, "profile to validate with")
	profilesPath := flag.String("profiles", os.Getenv("PROFILES_PATH"), "optional YAML profile overrides")
	refPath := flag.String("reference", "assets/reference.png", "reference template image")
	verbose := flag.Bool("verbose", false, "log stage diagnostics to stderr")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: validate [flags] <image>")
		flag.PrintDefaults()
	}
	flag.Parse()
	os.Exit(run(flag.Args(), *profileFlag, *profilesPath, *refPath, *verbose))
}

func run(args []string, profile, profilesPath, refPath string, verbose bool) int {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if len(args) != 1 {
		flag.Usage()
		return exitSetup
	}

	profiles, err := gate.LoadProfiles(profilesPath)
	if err != nil {
		log.Error().Err(err).Msg("invalid profiles")
		return exitSetup
	}
	cfg, ok := profiles[profile]
	if !ok {
		log.Error().Str("profile", profile).Msg("unknown profile")
		return exitSetup
	}
	var ref *gate.Reference
	if cfg.Strategy != gate.StrategyGeometry || cfg.Geometry.RelativeToReference {
		if ref, err = gate.LoadReference(refPath); err != nil {
			log.Error().Err(err).Msg("reference template unavailable")
			return exitSetup
		}
	}
	p := gate.New(ref, cfg)
	if err := p.Warm(); err != nil {
		log.Error().Err(err).Msg("pipeline setup failed")
		return exitSetup
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Error().Err(err).Msg("read image")
		return exitSetup
	}
	v := p.Check(data)
	out, _ := json.Marshal(v)
	fmt.Println(string(out))
	if !v.OK {
		return exitReject
	}
	return exitAccept
}
