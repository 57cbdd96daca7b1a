package agent

import (
	"context"
	"errors"
	"fmt"
)

// Outcome is the tagged result of one handler invocation: either a payload
// or an error, never both.
type Outcome struct {
	Payload map[string]any
	Err     error
}

// Ok wraps a successful payload.
func Ok(payload map[string]any) Outcome {
	if payload == nil {
		payload = map[string]any{}
	}
	return Outcome{Payload: payload}
}

// Fail wraps a failure.
func Fail(err error) Outcome {
	if err == nil {
		err = errors.New("handler failed without an error")
	}
	return Outcome{Err: err}
}

// Succeeded reports whether the outcome carries a payload.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// ErrPanic marks outcomes produced by a handler panic.
var ErrPanic = errors.New("handler panicked")

// Call invokes h and folds every way it can end, including a panic, into an
// Outcome.
func Call(ctx context.Context, h Handler, input map[string]any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Fail(fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	payload, err := h.Invoke(ctx, input)
	if err != nil {
		return Fail(err)
	}
	return Ok(payload)
}
