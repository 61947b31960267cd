// Package arbiter talks to the external controller that decides, per
// intercepted message, whether it is forwarded as-is, forwarded mutated or
// dropped.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
)

// Action is the controller's verdict for one intercepted message.
type Action uint32

const (
	ActionForward Action = 0
	ActionMutate  Action = 1
	ActionDrop    Action = 2
)

// String returns the string representation of an Action.
func (a Action) String() string {
	switch a {
	case ActionForward:
		return "forward"
	case ActionMutate:
		return "mutate"
	case ActionDrop:
		return "drop"
	default:
		return fmt.Sprintf("action(%d)", uint32(a))
	}
}

// ParseAction parses "forward", "mutate" or "drop".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward":
		return ActionForward, nil
	case "mutate":
		return ActionMutate, nil
	case "drop":
		return ActionDrop, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// Request is an intercepted message submitted for arbitration.
type Request struct {
	Payload    []byte
	SourcePort uint32
	DestPort   uint32
}

// Decision is the controller's answer. Payload holds the bytes to forward
// for ActionMutate; for ActionForward the original payload is used.
type Decision struct {
	Action  Action
	Payload []byte
}

// Arbiter decides the fate of intercepted messages. Implementations must be
// safe for concurrent use by every relay loop.
type Arbiter interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Passthrough forwards every message unchanged. It is used when no
// controller is configured.
type Passthrough struct{}

// Decide always returns ActionForward.
func (Passthrough) Decide(_ context.Context, req Request) (Decision, error) {
	return Decision{Action: ActionForward, Payload: req.Payload}, nil
}

var (
	// ErrControllerUnavailable means the controller could not be reached or
	// did not answer in time.
	ErrControllerUnavailable = errors.New("controller unavailable")

	ErrEmptyPayload = errors.New("packet data is empty")
	ErrPortNotSet   = errors.New("port not set properly")
)

// ControllerError is a failure reported by a reachable controller.
type ControllerError struct {
	Method string
	Code   codes.Code
	Err    error
}

// Error returns the error message.
func (e *ControllerError) Error() string {
	return fmt.Sprintf("controller %s: %s: %v", e.Method, e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *ControllerError) Unwrap() error {
	return e.Err
}
