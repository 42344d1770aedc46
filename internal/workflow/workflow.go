// Package workflow implements the per-user multi-step chat workflows.
//
// Each workflow is a finite-state machine over the session's State field. One
// inbound text event advances the machine by exactly one transition; every
// transition returns the replies to send so the machines stay independent of
// any chat transport. Provider failures never escape a transition: they are
// converted to user-facing replies and a state change.
package workflow

import (
	"context"
	"time"

	"github.com/groupsum/GroupSum/internal/models"
	"github.com/groupsum/GroupSum/internal/session"
)

// DefaultProviderTimeout bounds every external provider call. The remote
// platform and the summarization API give no latency guarantees, so an
// unbounded call would hang the user's workflow step forever.
const DefaultProviderTimeout = 30 * time.Second

// Result is the outcome of one workflow transition.
type Result struct {
	// Replies are sent to the user in order.
	Replies []string
	// Done reports that the workflow reached a terminal state and must be
	// removed from the session.
	Done bool
}

// Flow is a workflow state machine bound to one WorkflowType.
type Flow interface {
	// Type identifies the workflow.
	Type() models.WorkflowType

	// Start enters the workflow on the given session, setting its initial
	// state and returning the entry prompt.
	Start(ctx context.Context, sess *session.Session) Result

	// HandleInput advances the workflow by one transition using the
	// inbound text event.
	HandleInput(ctx context.Context, sess *session.Session, input string) Result

	// Cancel ends the workflow from any non-terminal state, releasing
	// whatever the workflow holds.
	Cancel(sess *session.Session) Result
}

// reply builds a single-reply Result.
func reply(done bool, messages ...string) Result {
	return Result{Replies: messages, Done: done}
}

// callCtx derives a bounded context for one provider call.
func callCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
