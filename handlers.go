package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"receiptgate/pkg/gate"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// uploadField is the multipart field carrying the candidate image.
const uploadField = "image"

// multipartSlack is the body allowance above the file limit for boundaries
// and part headers.
const multipartSlack = 1 << 20

type server struct {
	set *gate.Set
	ref *gate.Reference
	// maxUpload bounds the image part in bytes.
	maxUpload int64
}

func setupRoutes(r *gin.Engine, set *gate.Set, ref *gate.Reference, maxUpload int64) {
	s := &server{set: set, ref: ref, maxUpload: maxUpload}
	r.GET("/health", s.healthHandler)
	r.GET("/profiles", s.listProfilesHandler)
	r.POST("/validate-format", s.validateHandler)
	r.POST("/validate-format/:profile", s.validateHandler)
}

func (s *server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"reference": gin.H{
			"width":  s.ref.W(),
			"height": s.ref.H(),
		},
	})
}

func (s *server) listProfilesHandler(c *gin.Context) {
	cfgs := s.set.Configs()
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]gate.Config, 0, len(names))
	for _, name := range names {
		out = append(out, cfgs[name])
	}
	c.JSON(http.StatusOK, gin.H{"default": s.set.Default, "profiles": out})
}

// validateHandler answers every upload with HTTP 200 and a verdict body;
// only an unknown profile in the path is a transport-level error.
func (s *server) validateHandler(c *gin.Context) {
	p, err := s.set.Get(c.Param("profile"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown profile"})
		return
	}
	profile := p.Config().Name

	data, err := s.readUpload(c)
	var v gate.Verdict
	if err != nil {
		v = gate.FromError(err)
	} else {
		v = p.Check(data)
	}

	evt := log.Info()
	if v.Reason == gate.ReasonSystemError {
		evt = log.Error().Str("msg", v.Msg)
	}
	evt.Str("profile", profile).
		Bool("ok", v.OK).
		Str("reason", string(v.Reason)).
		Interface("metrics", v.Metrics).
		Msg("verdict")
	c.JSON(http.StatusOK, v)
}

func (s *server) readUpload(c *gin.Context) ([]byte, error) {
	tooLarge := fmt.Errorf("%w: upload exceeds %d bytes", gate.ErrImageRead, s.maxUpload)
	if c.Request.ContentLength > s.maxUpload+multipartSlack {
		return nil, tooLarge
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartSlack)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, tooLarge
		}
		// a missing part, a non-multipart body and a malformed form all
		// leave the request without an image
		log.Debug().Err(err).Msg("no upload")
		return nil, fmt.Errorf("%w: %v", gate.ErrNoImage, err)
	}
	if fh.Size > s.maxUpload {
		return nil, tooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, s.maxUpload))
}
