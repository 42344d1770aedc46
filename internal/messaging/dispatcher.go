package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/groupsum/GroupSum/internal/models"
	"github.com/groupsum/GroupSum/internal/session"
	"github.com/groupsum/GroupSum/internal/workflow"
)

// Top-level chat commands, recognized regardless of the active workflow.
const (
	CommandStart  = "/start"
	CommandLogin  = "/login"
	CommandGroup  = "/group"
	CommandCancel = "/cancel"
)

// MsgGreeting is the stateless /start reply.
const MsgGreeting = "Hello! I summarize your group chats. Send /login to link an account, then /group to get a summary."

// Dispatcher routes inbound messages: entry commands (re)start workflows,
// everything else goes to the active workflow's current state handler or is
// silently ignored. Events for the same user are serialized through the
// session store's per-user lock; different users proceed concurrently.
type Dispatcher struct {
	sessions   *session.Store
	login      *workflow.LoginFlow
	digest     *workflow.DigestFlow
	msgService Service
}

// NewDispatcher creates a dispatcher over the given session store, workflows
// and outbound transport.
func NewDispatcher(sessions *session.Store, login *workflow.LoginFlow, digest *workflow.DigestFlow, msgService Service) *Dispatcher {
	return &Dispatcher{
		sessions:   sessions,
		login:      login,
		digest:     digest,
		msgService: msgService,
	}
}

// ProcessResponse handles one inbound message end to end: route, run the
// transition, send the replies. The per-user lock is held for the whole step
// so that a user's session state is never read mid-transition.
func (d *Dispatcher) ProcessResponse(ctx context.Context, response models.Response) error {
	from, err := d.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("Dispatcher sender validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	var replies []string
	d.sessions.WithLock(from, func(*session.Session) {
		replies = d.route(ctx, from, response.Body)
	})

	for _, reply := range replies {
		if err := d.msgService.SendMessage(ctx, from, reply); err != nil {
			slog.Error("Dispatcher failed to send reply", "error", err, "to", from)
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
	return nil
}

// route decides what consumes the message. Must run under the user's lock.
func (d *Dispatcher) route(ctx context.Context, userID, body string) []string {
	text := strings.TrimSpace(body)
	command := ""
	if strings.HasPrefix(text, "/") {
		command = strings.ToLower(strings.Fields(text)[0])
	}

	switch command {
	case CommandStart:
		slog.Debug("Dispatcher /start", "userID", userID)
		return []string{MsgGreeting}
	case CommandLogin:
		return d.startFlow(ctx, userID, d.login)
	case CommandGroup:
		return d.startFlow(ctx, userID, d.digest)
	case CommandCancel:
		return d.cancel(userID)
	}

	// Free text (including unknown commands) goes to the active workflow.
	sess, ok := d.sessions.Get(userID)
	if !ok || sess.Workflow == models.WorkflowTypeNone {
		slog.Debug("Dispatcher ignoring message with no active workflow", "userID", userID)
		return nil
	}

	flow := d.flowFor(sess.Workflow)
	if flow == nil {
		slog.Error("Dispatcher found session with unknown workflow", "userID", userID, "workflow", sess.Workflow)
		sess.ClearWorkflow()
		return nil
	}

	result := flow.HandleInput(ctx, sess, text)
	if result.Done || sess.State.IsTerminal() {
		slog.Debug("Dispatcher workflow finished", "userID", userID, "workflow", flow.Type(), "state", sess.State)
		sess.ClearWorkflow()
	}
	return result.Replies
}

// startFlow (re)starts a workflow, forcibly ending any active one first: at
// most one workflow may own a user's next inbound event.
func (d *Dispatcher) startFlow(ctx context.Context, userID string, flow workflow.Flow) []string {
	sess := d.sessions.CreateOrReplace(userID)
	if sess.Workflow != models.WorkflowTypeNone {
		slog.Info("Dispatcher ending active workflow for re-entry",
			"userID", userID, "previous", sess.Workflow, "next", flow.Type())
		d.abortActive(sess)
	}
	if flow.Type() == models.WorkflowTypeLogin {
		// A fresh login replaces whatever account link exists.
		sess.ReleaseClient()
		sess.Profile = nil
	}
	result := flow.Start(ctx, sess)
	return result.Replies
}

// abortActive silently ends the session's active workflow. A login aborted
// before success must not leak its half-open client.
func (d *Dispatcher) abortActive(sess *session.Session) {
	if sess.Workflow == models.WorkflowTypeLogin && sess.State != models.StateLoginSuccess {
		sess.ReleaseClient()
	}
	sess.ClearWorkflow()
}

// cancel handles /cancel. With no active workflow it is a silent no-op.
func (d *Dispatcher) cancel(userID string) []string {
	sess, ok := d.sessions.Get(userID)
	if !ok || sess.Workflow == models.WorkflowTypeNone {
		slog.Debug("Dispatcher /cancel with no active workflow", "userID", userID)
		return nil
	}

	flow := d.flowFor(sess.Workflow)
	if flow == nil {
		sess.ClearWorkflow()
		return nil
	}
	kind := sess.Workflow
	result := flow.Cancel(sess)
	sess.ClearWorkflow()
	if kind == models.WorkflowTypeDigest {
		// Cancelling the digest tears down the whole session, linked
		// account included.
		d.sessions.Clear(userID)
	}
	slog.Info("Dispatcher workflow cancelled", "userID", userID, "workflow", kind)
	return result.Replies
}

// flowFor maps a workflow type to its state machine.
func (d *Dispatcher) flowFor(kind models.WorkflowType) workflow.Flow {
	switch kind {
	case models.WorkflowTypeLogin:
		return d.login
	case models.WorkflowTypeDigest:
		return d.digest
	default:
		return nil
	}
}
