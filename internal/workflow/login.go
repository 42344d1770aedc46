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

// User-facing messages for the login workflow.
const (
	MsgLoginPhonePrompt = "Let's link your account. Please send the phone number of the account you want to connect (for example +15551234567)."
	MsgLoginCodePrompt  = "A login code has been sent to your device. Please send it back to me to finish signing in."
	MsgLoginCancelled   = "Login canceled."
	MsgSessionExpired   = "Your session has expired. Please send /login to start over."
)

// LoginFlow drives the account-link workflow:
// AWAITING_PHONE -> AWAITING_CODE -> {SUCCESS | CANCELLED}.
type LoginFlow struct {
	auth    models.Authenticator
	timeout time.Duration
}

// NewLoginFlow creates the login workflow backed by the given authenticator.
// A timeout of zero uses DefaultProviderTimeout.
func NewLoginFlow(auth models.Authenticator, timeout time.Duration) *LoginFlow {
	return &LoginFlow{auth: auth, timeout: timeout}
}

// Type identifies the workflow.
func (f *LoginFlow) Type() models.WorkflowType { return models.WorkflowTypeLogin }

// Start enters the workflow and prompts for the phone number.
func (f *LoginFlow) Start(ctx context.Context, sess *session.Session) Result {
	slog.Debug("LoginFlow started", "userID", sess.UserID)
	sess.Workflow = models.WorkflowTypeLogin
	sess.State = models.StateLoginAwaitingPhone
	return reply(false, MsgLoginPhonePrompt)
}

// HandleInput advances the login workflow by one transition.
func (f *LoginFlow) HandleInput(ctx context.Context, sess *session.Session, input string) Result {
	switch sess.State {
	case models.StateLoginAwaitingPhone:
		return f.handlePhone(ctx, sess, input)
	case models.StateLoginAwaitingCode:
		return f.handleCode(ctx, sess, input)
	default:
		slog.Error("LoginFlow received input in unexpected state", "userID", sess.UserID, "state", sess.State)
		return f.terminate(sess, MsgSessionExpired)
	}
}

// handlePhone opens the remote client and requests a login code. The input
// is taken verbatim as the phone number.
func (f *LoginFlow) handlePhone(ctx context.Context, sess *session.Session, input string) Result {
	phone := strings.TrimSpace(input)
	slog.Debug("LoginFlow connecting remote client", "userID", sess.UserID)

	cctx, cancel := callCtx(ctx, f.timeout)
	client, err := f.auth.Connect(cctx, sess.UserID)
	cancel()
	if err != nil {
		slog.Error("LoginFlow connect failed", "error", err, "userID", sess.UserID)
		return f.terminate(sess, fmt.Sprintf("Could not reach the messaging service: %v", err))
	}
	sess.RemoteClient = client

	cctx, cancel = callCtx(ctx, f.timeout)
	_, err = client.RequestCode(cctx, phone)
	cancel()
	if err != nil {
		slog.Error("LoginFlow code request failed", "error", err, "userID", sess.UserID)
		return f.terminate(sess, fmt.Sprintf("Could not request a login code: %v", err))
	}

	sess.SetData(models.DataKeyPhoneNumber, phone)
	sess.State = models.StateLoginAwaitingCode
	slog.Info("LoginFlow code requested", "userID", sess.UserID)
	return reply(false, MsgLoginCodePrompt)
}

// handleCode attempts sign-in with the stored phone and the entered code.
func (f *LoginFlow) handleCode(ctx context.Context, sess *session.Session, input string) Result {
	// The session may have been cleared externally between the two steps;
	// the client is the only thing the code can be checked against.
	if sess.RemoteClient == nil {
		slog.Warn("LoginFlow code step without remote client", "userID", sess.UserID)
		return f.terminate(sess, MsgSessionExpired)
	}

	phone := sess.GetData(models.DataKeyPhoneNumber)
	code := strings.TrimSpace(input)

	cctx, cancel := callCtx(ctx, f.timeout)
	profile, err := sess.RemoteClient.SignIn(cctx, phone, code)
	cancel()
	if err != nil {
		slog.Error("LoginFlow sign-in failed", "error", err, "userID", sess.UserID)
		return f.terminate(sess, fmt.Sprintf("Login failed: %v", err))
	}

	sess.Profile = profile
	sess.State = models.StateLoginSuccess
	slog.Info("LoginFlow sign-in succeeded", "userID", sess.UserID)

	name := profile.Name
	if name == "" {
		name = profile.Phone
	}
	// The remote client stays attached to the session for the digest
	// workflow to use.
	return reply(true, fmt.Sprintf("Welcome, %s! Your account is now linked. Send /group to summarize a group chat.", name))
}

// Cancel ends the workflow from AWAITING_PHONE or AWAITING_CODE, releasing
// the remote client.
func (f *LoginFlow) Cancel(sess *session.Session) Result {
	slog.Info("LoginFlow cancelled", "userID", sess.UserID, "state", sess.State)
	sess.ReleaseClient()
	sess.State = models.StateLoginCancelled
	return reply(true, MsgLoginCancelled)
}

// terminate moves to CANCELLED, guaranteeing the handle is released.
func (f *LoginFlow) terminate(sess *session.Session, message string) Result {
	sess.ReleaseClient()
	sess.State = models.StateLoginCancelled
	return reply(true, message)
}
