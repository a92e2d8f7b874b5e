package relay

import (
	"context"
	"fmt"

	"github.com/proctorline/relay/internal/app/config"
)

// Flow is a convenience builder that lets callers say Conf → Build/Run
// without touching the underlying wiring.
type Flow struct {
	cfg  *config.Config
	opts []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow
// builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *config.Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before
// building a runtime.
func (f *Flow) Config() *config.Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
	return f
}

// Build finishes the builder and returns a Runtime ready to run.
func (f *Flow) Build(opts ...RuntimeOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	f.Options(opts...)
	return NewRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for Build + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...RuntimeOption) error {
	rt, err := f.Build(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.Options(opts...)
		}
	}
}
