package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyyidi/ravenchat/internal/domain"
)

func tokenChatter(tokens []string, result *domain.ChatResult) Chatter {
	return ChatterFunc(func(ctx context.Context, prompt string, emit func(string) error) (*domain.ChatResult, error) {
		for _, tok := range tokens {
			if err := emit(tok); err != nil {
				return nil, err
			}
		}
		return result, nil
	})
}

func TestTokensArriveInOrder(t *testing.T) {
	tokens := []string{"The ", "raven ", "says ", "hello."}
	want := &domain.ChatResult{Answer: "The raven says hello."}

	inv := Start(context.Background(), "greet", tokenChatter(tokens, want))

	var renders []string
	accumulated, result, err := inv.Drain(func(acc string) {
		renders = append(renders, acc)
	})

	require.NoError(t, err)
	assert.Equal(t, "The raven says hello.", accumulated)
	assert.Equal(t, want, result)

	// render is called after every token with the growing accumulator
	require.Len(t, renders, len(tokens))
	assert.Equal(t, "The ", renders[0])
	assert.Equal(t, "The raven says hello.", renders[3])
	for i := 1; i < len(renders); i++ {
		assert.True(t, strings.HasPrefix(renders[i], renders[i-1]))
	}
}

func TestResultReadOnlyAfterJoin(t *testing.T) {
	// The chatter emits all tokens, then sleeps before producing the result.
	// If Wait did not join the worker, the result slot would still be nil
	// when the channel drains.
	slow := ChatterFunc(func(ctx context.Context, prompt string, emit func(string) error) (*domain.ChatResult, error) {
		if err := emit("token"); err != nil {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
		return &domain.ChatResult{
			Answer:    "final",
			Citations: []domain.Citation{{URL: "docs/a.pdf"}},
		}, nil
	})

	inv := Start(context.Background(), "p", slow)
	accumulated, result, err := inv.Drain(nil)

	require.NoError(t, err)
	assert.Equal(t, "token", accumulated)
	require.NotNil(t, result)
	assert.Equal(t, "final", result.Answer)
	assert.Len(t, result.Citations, 1)
}

func TestZeroTokensStillTerminates(t *testing.T) {
	want := &domain.ChatResult{Answer: "non-streamed answer"}
	inv := Start(context.Background(), "p", tokenChatter(nil, want))

	finished := make(chan struct{})
	var accumulated string
	var result *domain.ChatResult
	var err error
	go func() {
		defer close(finished)
		accumulated, result, err = inv.Drain(nil)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge deadlocked on a zero-token stream")
	}

	require.NoError(t, err)
	assert.Empty(t, accumulated)
	assert.Equal(t, want, result)
}

func TestFailingWorkerSurfacesError(t *testing.T) {
	boom := errors.New("provider outage")
	failing := ChatterFunc(func(ctx context.Context, prompt string, emit func(string) error) (*domain.ChatResult, error) {
		if err := emit("partial "); err != nil {
			return nil, err
		}
		return nil, boom
	})

	inv := Start(context.Background(), "p", failing)

	finished := make(chan struct{})
	var accumulated string
	var err error
	go func() {
		defer close(finished)
		accumulated, _, err = inv.Drain(nil)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge deadlocked on a failing worker")
	}

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "partial ", accumulated, "tokens emitted before the failure are preserved")
}

func TestNilResultIsAnError(t *testing.T) {
	inv := Start(context.Background(), "p", tokenChatter(nil, nil))
	_, result, err := inv.Drain(nil)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestCancellationUnblocksEmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Emits forever; only cancellation can stop it. The channel buffer fills
	// and emit blocks until the consumer or the context releases it.
	endless := ChatterFunc(func(ctx context.Context, prompt string, emit func(string) error) (*domain.ChatResult, error) {
		for {
			if err := emit("x"); err != nil {
				return nil, err
			}
		}
	})

	inv := Start(ctx, "p", endless)
	cancel()

	finished := make(chan struct{})
	var err error
	go func() {
		defer close(finished)
		_, _, err = inv.Drain(nil)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not unblock the worker")
	}
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	chatter := ChatterFunc(func(ctx context.Context, prompt string, emit func(string) error) (*domain.ChatResult, error) {
		called = true
		return &domain.ChatResult{}, nil
	})

	inv := Start(ctx, "p", chatter)
	_, _, err := inv.Drain(nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called, "worker must not invoke the model after cancellation")
}

func TestWaitWithoutDrain(t *testing.T) {
	// A caller that does not care about progressive rendering can go
	// straight to Wait; the buffered channel absorbs a short stream.
	want := &domain.ChatResult{Answer: "done"}
	inv := Start(context.Background(), "p", tokenChatter([]string{"a", "b"}, want))

	result, err := inv.Wait()
	require.NoError(t, err)
	assert.Equal(t, want, result)

	var tokens []string
	for tok := range inv.Tokens() {
		tokens = append(tokens, tok)
	}
	assert.Equal(t, []string{"a", "b"}, tokens)
}
