package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/groupsum/GroupSum/internal/models"
	"github.com/groupsum/GroupSum/internal/session"
)

// DefaultMessageLimit is how many recent group messages feed one summary.
const DefaultMessageLimit = 10

// SummaryInstruction is the fixed instruction given to the summarizer.
const SummaryInstruction = "Produce a concise summary of the following group chat messages. " +
	"Exclude the message identifiers from the summary and describe what is being discussed."

// User-facing messages for the digest workflow.
const (
	MsgGroupNamePrompt  = "Which group would you like me to summarize? Send its name."
	MsgGroupRetryPrompt = "Would you like to try another group? (yes/no)"
	MsgGroupAgainPrompt = "Okay! Send the name of the next group."
	MsgDigestClosing    = "Alright, we're done here. Send /group anytime for another summary."
	MsgAnswerYesOrNo    = "Please answer yes or no."
	MsgNotAMember       = "You are not a member of that group, so I can't summarize it."
	MsgNoRecentMessages = "That group has no recent messages to summarize."
)

// DigestFlow drives the group-summarize workflow:
// AWAITING_GROUP_NAME <-> CONTINUE_PROMPT -> END.
//
// All lookup and summarization failures are recoverable: the user is offered
// the yes/no retry prompt instead of losing the session.
type DigestFlow struct {
	summarizer models.Summarizer
	limit      int
	timeout    time.Duration
}

// NewDigestFlow creates the digest workflow. A limit of zero uses
// DefaultMessageLimit; a timeout of zero uses DefaultProviderTimeout.
func NewDigestFlow(summarizer models.Summarizer, limit int, timeout time.Duration) *DigestFlow {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &DigestFlow{summarizer: summarizer, limit: limit, timeout: timeout}
}

// Type identifies the workflow.
func (f *DigestFlow) Type() models.WorkflowType { return models.WorkflowTypeDigest }

// Start enters the workflow and prompts for a group name.
func (f *DigestFlow) Start(ctx context.Context, sess *session.Session) Result {
	slog.Debug("DigestFlow started", "userID", sess.UserID)
	sess.Workflow = models.WorkflowTypeDigest
	sess.State = models.StateDigestAwaitingGroupName
	return reply(false, MsgGroupNamePrompt)
}

// HandleInput advances the digest workflow by one transition.
func (f *DigestFlow) HandleInput(ctx context.Context, sess *session.Session, input string) Result {
	switch sess.State {
	case models.StateDigestAwaitingGroupName:
		return f.handleGroupName(ctx, sess, input)
	case models.StateDigestContinuePrompt:
		return f.handleContinue(sess, input)
	default:
		slog.Error("DigestFlow received input in unexpected state", "userID", sess.UserID, "state", sess.State)
		sess.State = models.StateDigestEnd
		return reply(true, MsgSessionExpired)
	}
}

// handleGroupName resolves the group, verifies membership, fetches recent
// messages and replies with their summary. Every failure branch lands on the
// retry prompt.
func (f *DigestFlow) handleGroupName(ctx context.Context, sess *session.Session, input string) Result {
	name := strings.TrimSpace(input)

	client := sess.RemoteClient
	if client == nil {
		// Without a linked account every lookup fails; degrade to the
		// not-found branch rather than terminating.
		slog.Warn("DigestFlow lookup without linked account", "userID", sess.UserID)
		return f.retry(sess, fmt.Sprintf("Could not find group %q: no linked account. Try /login first.", name))
	}

	cctx, cancel := callCtx(ctx, f.timeout)
	group, err := client.ResolveGroup(cctx, name)
	cancel()
	if err != nil {
		slog.Error("DigestFlow group lookup failed", "error", err, "userID", sess.UserID, "group", name)
		return f.retry(sess, fmt.Sprintf("Could not find group %q: %v", name, err))
	}

	cctx, cancel = callCtx(ctx, f.timeout)
	members, err := client.ListMembers(cctx, group)
	cancel()
	if err != nil {
		slog.Error("DigestFlow member listing failed", "error", err, "userID", sess.UserID, "group", group.Name)
		return f.retry(sess, fmt.Sprintf("Could not read the members of %q: %v", group.Name, err))
	}
	if !f.isMember(sess, members) {
		slog.Info("DigestFlow membership check failed", "userID", sess.UserID, "group", group.Name)
		return f.retry(sess, MsgNotAMember)
	}

	cctx, cancel = callCtx(ctx, f.timeout)
	messages, err := client.RecentMessages(cctx, group, f.limit)
	cancel()
	if err != nil {
		slog.Error("DigestFlow message fetch failed", "error", err, "userID", sess.UserID, "group", group.Name)
		return f.retry(sess, fmt.Sprintf("Could not read messages from %q: %v", group.Name, err))
	}
	if len(messages) == 0 {
		return f.retry(sess, MsgNoRecentMessages)
	}

	cctx, cancel = callCtx(ctx, f.timeout)
	summary, err := f.summarizer.Summarize(cctx, SummaryInstruction, formatMessages(messages))
	cancel()
	if err != nil {
		slog.Error("DigestFlow summarization failed", "error", err, "userID", sess.UserID, "group", group.Name)
		return f.retry(sess, fmt.Sprintf("Could not summarize %q: %v", group.Name, err))
	}

	slog.Info("DigestFlow summary produced", "userID", sess.UserID, "group", group.Name, "messages", len(messages))
	sess.State = models.StateDigestContinuePrompt
	return reply(false, summary, MsgGroupRetryPrompt)
}

// handleContinue interprets the yes/no retry answer. Unrecognized input
// re-prompts without advancing.
func (f *DigestFlow) handleContinue(sess *session.Session, input string) Result {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "yes", "y":
		sess.State = models.StateDigestAwaitingGroupName
		return reply(false, MsgGroupAgainPrompt)
	case "no", "n":
		sess.State = models.StateDigestEnd
		return reply(true, MsgDigestClosing)
	default:
		return reply(false, MsgAnswerYesOrNo)
	}
}

// Cancel ends the workflow, releasing the session's remote client entirely.
// Cancelling the digest ends the authenticated session too, so a later
// /group needs a fresh /login.
func (f *DigestFlow) Cancel(sess *session.Session) Result {
	slog.Info("DigestFlow cancelled", "userID", sess.UserID, "state", sess.State)
	sess.ReleaseClient()
	sess.State = models.StateDigestEnd
	return reply(true, "Canceled.")
}

// retry surfaces a recoverable failure and moves to the retry prompt.
func (f *DigestFlow) retry(sess *session.Session, message string) Result {
	sess.State = models.StateDigestContinuePrompt
	return reply(false, message, MsgGroupRetryPrompt)
}

// isMember reports whether the session's signed-in account appears in the
// member list. A missing profile or empty list counts as not a member.
func (f *DigestFlow) isMember(sess *session.Session, members []models.Member) bool {
	if sess.Profile == nil {
		return false
	}
	for _, m := range members {
		if m.JID == sess.Profile.ID {
			return true
		}
	}
	return false
}

// formatMessages concatenates the retrieved window, oldest first, each line
// prefixed with its message identifier.
func formatMessages(messages []models.GroupMessage) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.ID, m.Body)
	}
	return b.String()
}
