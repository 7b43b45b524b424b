package driver

import (
	"io"

	"github.com/fyrsmithlabs/worldmodel/internal/config"
)

// Option configures New.
type Option func(*options)

type options struct {
	render      bool
	output      io.Writer
	vectorMaker VectorMaker
	physMaker   PhysicsMaker
}

// WithRender turns on human rendering for a General driver.
func WithRender(on bool) Option {
	return func(o *options) { o.render = on }
}

// WithOutput sets the writer human rendering goes to.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithVectorMaker replaces the General backend constructor.
func WithVectorMaker(fn VectorMaker) Option {
	return func(o *options) { o.vectorMaker = fn }
}

// WithPhysicsMaker replaces the Physics backend constructor.
func WithPhysicsMaker(fn PhysicsMaker) Option {
	return func(o *options) { o.physMaker = fn }
}

// New returns a Physics driver when cfg.Env.Name is PhysicsEnvID and a
// General driver otherwise.
func New(cfg *config.Config, opts ...Option) (Driver, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Env.Name == PhysicsEnvID {
		p, err := NewPhysics(cfg, o.physMaker)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	g, err := NewGeneral(cfg, o.render, o.output, o.vectorMaker)
	if err != nil {
		return nil, err
	}
	return g, nil
}
