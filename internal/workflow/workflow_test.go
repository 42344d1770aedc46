package workflow

import (
	"context"

	"github.com/groupsum/GroupSum/internal/models"
	"github.com/groupsum/GroupSum/internal/session"
)

// fakeRemoteClient implements models.RemoteClient for workflow tests.
type fakeRemoteClient struct {
	pairingCode    string
	requestCodeErr error

	profile   *models.Profile
	signInErr error

	group      *models.Group
	resolveErr error

	members []models.Member
	listErr error

	messages  []models.GroupMessage
	recentErr error

	disconnects int
}

func (f *fakeRemoteClient) RequestCode(ctx context.Context, phone string) (string, error) {
	if f.requestCodeErr != nil {
		return "", f.requestCodeErr
	}
	if f.pairingCode == "" {
		f.pairingCode = "ABCD-1234"
	}
	return f.pairingCode, nil
}

func (f *fakeRemoteClient) SignIn(ctx context.Context, phone, code string) (*models.Profile, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.profile, nil
}

func (f *fakeRemoteClient) ResolveGroup(ctx context.Context, name string) (*models.Group, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.group, nil
}

func (f *fakeRemoteClient) ListMembers(ctx context.Context, group *models.Group) ([]models.Member, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.members, nil
}

func (f *fakeRemoteClient) RecentMessages(ctx context.Context, group *models.Group, limit int) ([]models.GroupMessage, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if limit > 0 && len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

func (f *fakeRemoteClient) Disconnect() {
	f.disconnects++
}

// fakeAuthenticator implements models.Authenticator for workflow tests.
type fakeAuthenticator struct {
	client     *fakeRemoteClient
	connectErr error
	connects   int
}

func (f *fakeAuthenticator) Connect(ctx context.Context, sessionKey string) (models.RemoteClient, error) {
	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.client, nil
}

// fakeSummarizer implements models.Summarizer for workflow tests.
type fakeSummarizer struct {
	summary        string
	err            error
	gotInstruction string
	gotText        string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, instruction, text string) (string, error) {
	f.gotInstruction = instruction
	f.gotText = text
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

// newTestSession builds a bare session for direct workflow tests.
func newTestSession(userID string) *session.Session {
	return &session.Session{UserID: userID}
}

// hangingAuthenticator never answers; Connect blocks until the call context
// is cancelled.
type hangingAuthenticator struct{}

func (hangingAuthenticator) Connect(ctx context.Context, sessionKey string) (models.RemoteClient, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// hangingSummarizer never answers; Summarize blocks until the call context
// is cancelled.
type hangingSummarizer struct{}

func (hangingSummarizer) Summarize(ctx context.Context, instruction, text string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
