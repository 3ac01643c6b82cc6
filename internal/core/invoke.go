package core

import (
	"context"
	"io"
	"os"

	"microservice/internal/invoke"
	"microservice/internal/metrics"
	"microservice/internal/router"
	"microservice/util"
)

// InvokeMode answers newline-delimited JSON events instead of serving
// sockets: one event per line on Stdin, one result per line on Stdout.
type InvokeMode struct {
	Handler router.Handler
	Logger  *util.Logger
	Metrics *metrics.Collector

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *InvokeMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *InvokeMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run serves events until the input ends or ctx is cancelled.  A read
// blocked on the input is abandoned on cancel.
func (m *InvokeMode) Run(ctx context.Context) error {
	h := router.Recover(m.Handler, func(err error) {
		m.Metrics.RecordError(metrics.ErrHandler, err.Error())
		m.Logger.Error("%v", err)
	})

	done := make(chan error, 1)
	go func() {
		done <- invoke.Serve(ctx, h, m.stdin(), m.stdout(), m.Logger)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}
