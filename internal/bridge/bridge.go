// Package bridge runs a blocking chat call on a background worker while the
// caller consumes incrementally generated tokens in the foreground.
package bridge

import (
	"context"
	"fmt"

	"github.com/seyyidi/ravenchat/internal/domain"
)

// Chatter performs the blocking "ask the model" operation. Implementations
// push token deltas into emit as a side effect while the call is in flight
// and return the final answer with its citations when done. emit reports a
// send failure (consumer gone, context cancelled); implementations should
// stop generating when it does.
type Chatter interface {
	Chat(ctx context.Context, prompt string, emit func(token string) error) (*domain.ChatResult, error)
}

// ChatterFunc adapts a function to the Chatter interface.
type ChatterFunc func(ctx context.Context, prompt string, emit func(token string) error) (*domain.ChatResult, error)

func (f ChatterFunc) Chat(ctx context.Context, prompt string, emit func(token string) error) (*domain.ChatResult, error) {
	return f(ctx, prompt, emit)
}

// Invocation is one in-flight chat call: a single background worker, a FIFO
// token channel, and a result slot populated before the worker exits. The
// token channel is always closed when the worker finishes, so consumers
// terminate even when the call produced no tokens or failed.
type Invocation struct {
	tokens chan string
	done   chan struct{}

	// written by the worker before done is closed, read after Wait
	result *domain.ChatResult
	err    error
}

// Start launches the background worker for one chat invocation. At most one
// worker exists per Invocation; callers must not pipeline invocations that
// share a display accumulator.
func Start(ctx context.Context, prompt string, chatter Chatter) *Invocation {
	inv := &Invocation{
		tokens: make(chan string, 64),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(inv.done)
		defer close(inv.tokens)

		if err := ctx.Err(); err != nil {
			inv.err = err
			return
		}

		emit := func(token string) error {
			// checked first: a live consumer could otherwise keep the send
			// case ready and starve the cancellation branch
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case inv.tokens <- token:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		res, err := chatter.Chat(ctx, prompt, emit)
		if err != nil {
			inv.err = err
			return
		}
		if res == nil {
			inv.err = fmt.Errorf("chat returned no result")
			return
		}
		inv.result = res
	}()

	return inv
}

// Tokens returns the FIFO stream of text fragments. The channel is closed
// once generation finishes, whether it succeeded, failed, or was cancelled.
func (inv *Invocation) Tokens() <-chan string {
	return inv.tokens
}

// Wait joins the background worker and returns the final result. It must be
// called after draining Tokens; the join guarantees the result slot is
// populated before it is read.
func (inv *Invocation) Wait() (*domain.ChatResult, error) {
	<-inv.done
	return inv.result, inv.err
}

// Drain consumes the token stream in order, invoking render with the
// accumulated text after every token, then joins the worker. It returns the
// accumulated stream text alongside the final result; the two may differ
// when the model's streaming callback and return value diverge, so both are
// preserved.
func (inv *Invocation) Drain(render func(accumulated string)) (string, *domain.ChatResult, error) {
	var accumulated string
	for token := range inv.tokens {
		accumulated += token
		if render != nil {
			render(accumulated)
		}
	}
	result, err := inv.Wait()
	return accumulated, result, err
}
