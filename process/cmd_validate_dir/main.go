package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"receiptgate/pkg/gate"
	"receiptgate/process/batch"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	dirFlag := flag.String("dir", "public/uploads", "directory to scan for receipt images")
	profileFlag := flag.String("profile", gate.ProfileGeometry, "profile to validate with")
	profilesPath := flag.String("profiles", os.Getenv("PROFILES_PATH"), "optional YAML profile overrides")
	refPath := flag.String("reference", "assets/reference.png", "reference template image")
	watch := flag.Bool("watch", false, "keep watching the directory for new files")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	sortDir := flag.String("sort", "", "move validated files into <sort>/accepted and <sort>/rejected/<REASON>")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	profiles, err := gate.LoadProfiles(*profilesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid profiles")
	}
	cfg, ok := profiles[*profileFlag]
	if !ok {
		log.Fatal().Str("profile", *profileFlag).Msg("unknown profile")
	}
	var ref *gate.Reference
	if *refPath != "" {
		ref, err = gate.LoadReference(*refPath)
		if err != nil && cfg.Strategy != gate.StrategyGeometry {
			log.Fatal().Err(err).Msg("reference template unavailable")
		}
	}
	p := gate.New(ref, cfg)
	if err := p.Warm(); err != nil {
		log.Fatal().Err(err).Msg("pipeline setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := batch.New(*dirFlag, p, batch.Options{Workers: *workers, SortDir: *sortDir})
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if !*watch {
		sum, _, err := v.Scan(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("scan failed")
		}
		_ = enc.Encode(sum)
		return
	}

	sum, results, err := v.ScanAndWatch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("scan failed")
	}
	_ = enc.Encode(sum)
	for r := range results {
		_ = json.NewEncoder(os.Stdout).Encode(r)
	}
}
