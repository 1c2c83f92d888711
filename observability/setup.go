package observability

import (
	"context"
	"errors"
	"time"
)

// Options selects what Setup exports and where.
type Options struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Insecure       bool
	SampleRate     float64
	Interval       time.Duration
}

// ShutdownFunc flushes and stops the providers installed by Setup.
type ShutdownFunc func(ctx context.Context) error

// Setup installs global tracer and meter providers exporting to opts.Endpoint.
// The returned ShutdownFunc must be called before exit to flush buffered data.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	tp, err := InitTracer(ctx, &TracerConfig{
		ServiceName:    opts.ServiceName,
		ServiceVersion: opts.ServiceVersion,
		Environment:    opts.Environment,
		Endpoint:       opts.Endpoint,
		Insecure:       opts.Insecure,
		SampleRate:     opts.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	mp, err := InitMeter(ctx, &MeterConfig{
		ServiceName:    opts.ServiceName,
		ServiceVersion: opts.ServiceVersion,
		Environment:    opts.Environment,
		Endpoint:       opts.Endpoint,
		Insecure:       opts.Insecure,
		Interval:       opts.Interval,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Noop is a ShutdownFunc for runs with export disabled.
func Noop(context.Context) error { return nil }
