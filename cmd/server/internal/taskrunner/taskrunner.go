package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/taskrunner"

var tracer = otel.Tracer(name)

var ErrShutdownTimeout = errors.New("error shutting down in time")

// Called with the task name and the error of every failed task, including recovered panics.
type ErrorHandler func(ctx context.Context, task string, err error)

// Provides a wrapper around [sync.WaitGroup] that has [Shutdown] vs timeout racing functionality
type Client struct {
	running sync.WaitGroup
	onError ErrorHandler
}

func Create() *Client {
	return &Client{}
}

// Fire-and-forget tasks report failures here instead of to their caller.
func (c *Client) OnError(h ErrorHandler) {
	c.onError = h
}

// Invokes the provided function as a go routine while tracking its state.
// This allows for us to wait for our tasks to finish before terminating gracefully.
// This is only as safe as the forceful shutdown timeout.
func (c *Client) Run(ctx context.Context, task string, a func(context.Context) error) {
	c.running.Add(1)
	go func() {
		defer c.running.Done()

		//nolint:govet // shadow: intentionally shadow ctx to avoid using the incorrect one.
		ctx, span := tracer.Start(context.WithoutCancel(ctx), "Run")
		defer span.End()
		span.SetAttributes(attribute.String("task", task))

		err := safeCall(ctx, a)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "task failed")
			if c.onError != nil {
				c.onError(ctx, task, err)
			}
			return
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "ran task")
	}()
}

func safeCall(ctx context.Context, a func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return a(ctx)
}

// Will race waiting for all of the tasks finishing and `ctx` becoming "done"
func (c *Client) Shutdown(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Shutdown")
	defer span.End()

	done := make(chan struct{})
	go func() {
		// is this a leak... do we care
		c.running.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		span.AddEvent("hit_timeout")
		span.RecordError(ErrShutdownTimeout)
		span.SetStatus(codes.Error, "error shutting down in time")
		return ErrShutdownTimeout
	case <-done:
		span.AddEvent("done")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "finished shutting down")
		return nil
	}
}
