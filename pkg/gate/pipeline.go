package gate

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Pipeline runs one profile against uploads. It holds no per-request state
// and is safe for concurrent use once constructed.
type Pipeline struct {
	cfg Config
	ref *Reference

	once    sync.Once
	prep    *prepared
	prepErr error
}

// prepared holds the reference-derived inputs of the content stages.
type prepared struct {
	refROI   *Grid
	refEdges *Grid
	tmpl     *matchTemplate
}

// New builds a pipeline for cfg. ref may be nil for profiles that neither
// compare content nor size against the reference.
func New(ref *Reference, cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, ref: ref}
}

// Config returns the profile this pipeline runs.
func (p *Pipeline) Config() Config { return p.cfg }

// Warm computes the reference-derived forms up front so a broken profile
// fails at startup rather than on the first request.
func (p *Pipeline) Warm() error {
	_, err := p.prepare()
	return err
}

func (p *Pipeline) needsReference() bool {
	return p.cfg.Strategy != StrategyGeometry || p.cfg.Geometry.needsReference()
}

func (p *Pipeline) prepare() (*prepared, error) {
	p.once.Do(func() {
		if !p.needsReference() {
			p.prep = &prepared{}
			return
		}
		if p.ref == nil {
			p.prepErr = fmt.Errorf("profile %s: %w", p.cfg.Name, ErrNoReference)
			return
		}
		prep := &prepared{}
		switch p.cfg.Strategy {
		case StrategyStructural:
			roi, err := p.cfg.ROI.Crop(p.ref.Blurred(p.cfg.BlurSigma))
			if err != nil {
				p.prepErr = fmt.Errorf("profile %s: reference roi: %w", p.cfg.Name, err)
				return
			}
			prep.refROI = roi
			prep.refEdges = Canny(roi, p.cfg.EdgeLow, p.cfg.EdgeHigh)
		case StrategyTemplate:
			prep.tmpl = newMatchTemplate(p.ref.Grid, p.cfg.MatchWidth)
		}
		p.prep = prep
	})
	return p.prep, p.prepErr
}

// Check decodes data and runs the profile. It never panics: unexpected
// failures in any stage come back as a SYSTEM_ERROR verdict.
func (p *Pipeline) Check(data []byte) (v Verdict) {
	defer p.recoverInto(&v)
	g, err := Decode(data, p.cfg.MaxPixels)
	if err != nil {
		return FromError(err)
	}
	return p.run(g)
}

// Run validates an already decoded grid.
func (p *Pipeline) Run(g *Grid) (v Verdict) {
	defer p.recoverInto(&v)
	if g.Empty() {
		return Reject(ReasonImageReadError, nil)
	}
	return p.run(g)
}

func (p *Pipeline) recoverInto(v *Verdict) {
	if r := recover(); r != nil {
		*v = SystemError(fmt.Errorf("%v", r))
		log.Error().Str("profile", p.cfg.Name).Str("msg", v.Msg).Msg("pipeline panic")
	}
}

func (p *Pipeline) run(g *Grid) Verdict {
	v, err := p.stages(g)
	if err != nil {
		log.Error().Err(err).Str("profile", p.cfg.Name).Msg("pipeline failure")
		return SystemError(err)
	}
	return v
}

func (p *Pipeline) stages(g *Grid) (Verdict, error) {
	prep, err := p.prepare()
	if err != nil {
		return Verdict{}, err
	}
	if reason := p.cfg.Geometry.Check(g, p.ref); reason != ReasonNone {
		return Reject(reason, nil), nil
	}

	switch p.cfg.Strategy {
	case StrategyGeometry:
		return Accept(Metrics{
			MetricWidth:  float64(g.W),
			MetricHeight: float64(g.H),
			MetricRatio:  round2(g.Ratio()),
		}), nil

	case StrategyStructural:
		candROI, err := normalizeCandidate(g, p.ref.W(), p.ref.H(), p.cfg.ROI, p.cfg.BlurSigma)
		if err != nil {
			return Verdict{}, err
		}
		if p.cfg.EdgeLimit > 0 {
			overlay, density := HasOverlay(candROI, p.cfg.EdgeLow, p.cfg.EdgeHigh, p.cfg.EdgeLimit)
			log.Debug().Float64("edge_density", density).Float64("limit", p.cfg.EdgeLimit).Msg("overlay check")
			if overlay {
				return Reject(ReasonOverlayDetected, nil), nil
			}
		}
		return compareEdges(prep.refROI, candROI, prep.refEdges, CompareOptions{
			DiffLimit:     p.cfg.DiffLimit,
			SSIMThreshold: p.cfg.SSIMThreshold,
			EdgeLow:       p.cfg.EdgeLow,
			EdgeHigh:      p.cfg.EdgeHigh,
			Window:        p.cfg.SSIMWindow,
		})

	case StrategyTemplate:
		return matchPrepared(g, p.ref, prep.tmpl, MatchOptions{
			Threshold:       p.cfg.MatchThreshold,
			HeightTolerance: p.cfg.Geometry.HeightTolerance,
			WorkWidth:       p.cfg.MatchWidth,
		})
	}
	return Verdict{}, fmt.Errorf("profile %s: unknown strategy %q", p.cfg.Name, p.cfg.Strategy)
}

// Set is the collection of pipelines the service can dispatch to.
type Set struct {
	Default   string
	pipelines map[string]*Pipeline
}

// NewSet builds and warms one pipeline per profile. defaultName must be one
// of the profiles.
func NewSet(ref *Reference, profiles map[string]Config, defaultName string) (*Set, error) {
	if _, ok := profiles[defaultName]; !ok {
		return nil, fmt.Errorf("default profile %q: %w", defaultName, ErrUnknownProfile)
	}
	s := &Set{Default: defaultName, pipelines: make(map[string]*Pipeline, len(profiles))}
	for name, cfg := range profiles {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		p := New(ref, cfg)
		if err := p.Warm(); err != nil {
			return nil, err
		}
		s.pipelines[name] = p
	}
	return s, nil
}

// Get returns the named pipeline; an empty name selects the default.
func (s *Set) Get(name string) (*Pipeline, error) {
	if name == "" {
		name = s.Default
	}
	p, ok := s.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Configs lists the configured profiles.
func (s *Set) Configs() map[string]Config {
	out := make(map[string]Config, len(s.pipelines))
	for name, p := range s.pipelines {
		out[name] = p.cfg
	}
	return out
}
