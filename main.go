package main

import (
	"os"

	"receiptgate/pkg/gate"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := loadConfig()
	if err := setupLogging(cfg); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.LogDir).Msg("log setup failed")
	}

	// the reference is a hard startup requirement: no degraded serving
	ref, err := gate.LoadReference(cfg.ReferencePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ReferencePath).Msg("reference template unavailable")
	}
	profiles, err := gate.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ProfilesPath).Msg("invalid profiles")
	}
	set, err := gate.NewSet(ref, profiles, cfg.DefaultProfile)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline setup failed")
	}
	log.Info().
		Str("reference", ref.Source).
		Int("width", ref.W()).
		Int("height", ref.H()).
		Int("profiles", len(profiles)).
		Str("default", cfg.DefaultProfile).
		Msg("pipelines ready")

	r := newRouter(set, ref, cfg.MaxUploadMB)
	log.Info().Str("addr", cfg.addr()).Msg("listening")
	if err := r.Run(cfg.addr()); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func newRouter(set *gate.Set, ref *gate.Reference, maxUploadMB int64) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery(), cors.Default())
	r.MaxMultipartMemory = maxUploadMB << 20
	setupRoutes(r, set, ref, maxUploadMB<<20)
	return r
}
