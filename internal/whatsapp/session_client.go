package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/groupsum/GroupSum/internal/models"
	"github.com/groupsum/GroupSum/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// PairClientName is the client name shown on the linked phone.
const PairClientName = "Chrome (Linux)"

// Linker opens per-user session clients inside the shared device-store
// container. It implements models.Authenticator.
type Linker struct {
	container *sqlstore.Container
	messages  store.Store
}

// NewLinker creates an authenticator backed by the given device container
// and message-history store.
func NewLinker(container *sqlstore.Container, messages store.Store) *Linker {
	return &Linker{container: container, messages: messages}
}

// Connect creates a fresh device for the session and connects it to the
// platform. The returned client is owned by the caller's session.
func (l *Linker) Connect(ctx context.Context, sessionKey string) (models.RemoteClient, error) {
	device := l.container.NewDevice()
	cli := whatsmeow.NewClient(device, waLog.Stdout("Session-"+sessionKey, "INFO", true))

	sc := &SessionClient{
		cli:        cli,
		messages:   l.messages,
		sessionKey: sessionKey,
		linked:     make(chan struct{}),
	}
	sc.handlerID = cli.AddEventHandler(sc.handleEvent)

	if err := cli.Connect(); err != nil {
		cli.RemoveEventHandler(sc.handlerID)
		slog.Error("Session client connect failed", "error", err, "sessionKey", sessionKey)
		return nil, fmt.Errorf("failed to connect to messaging platform: %w", err)
	}

	slog.Info("Session client connected", "sessionKey", sessionKey)
	return sc, nil
}

// SessionClient is one user's connection to the messaging platform. It
// implements models.RemoteClient: pairing-code login, group lookup and
// recent-message retrieval. Incoming group messages on the linked account
// are recorded into the message-history store, which is what recent-message
// reads are served from.
type SessionClient struct {
	cli        *whatsmeow.Client
	messages   store.Store
	sessionKey string

	mu          sync.Mutex
	pairingCode string

	linked     chan struct{}
	linkedOnce sync.Once
	discOnce   sync.Once
	handlerID  uint32
}

// RequestCode asks the platform for a pairing code for the given phone
// number. The platform shows the code out of band on the user's device.
func (c *SessionClient) RequestCode(ctx context.Context, phone string) (string, error) {
	code, err := c.cli.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, PairClientName)
	if err != nil {
		slog.Error("Session client pairing code request failed", "error", err, "sessionKey", c.sessionKey)
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}

	c.mu.Lock()
	c.pairingCode = normalizeCode(code)
	c.mu.Unlock()

	slog.Info("Session client pairing code issued", "sessionKey", c.sessionKey)
	return code, nil
}

// SignIn verifies the code the user typed back and waits for the device link
// to complete, then returns the authenticated account's profile.
func (c *SessionClient) SignIn(ctx context.Context, phone, code string) (*models.Profile, error) {
	c.mu.Lock()
	expected := c.pairingCode
	c.mu.Unlock()

	if expected == "" {
		return nil, fmt.Errorf("no pairing code was requested")
	}
	if normalizeCode(code) != expected {
		slog.Warn("Session client code mismatch", "sessionKey", c.sessionKey)
		return nil, fmt.Errorf("the code does not match the one sent to your device")
	}

	select {
	case <-c.linked:
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out waiting for the device link to complete: %w", ctx.Err())
	}

	deviceID := c.cli.Store.ID
	if deviceID == nil {
		return nil, fmt.Errorf("device link did not complete")
	}

	profile := &models.Profile{
		ID:    deviceID.User,
		Name:  c.cli.Store.PushName,
		Phone: phone,
	}
	slog.Info("Session client signed in", "sessionKey", c.sessionKey, "account", profile.ID)
	return profile, nil
}

// ResolveGroup finds a joined group by name (case-insensitive) or JID.
func (c *SessionClient) ResolveGroup(ctx context.Context, name string) (*models.Group, error) {
	groups, err := c.cli.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list joined groups: %w", err)
	}
	for _, g := range groups {
		if strings.EqualFold(g.Name, name) || g.JID.String() == name || g.JID.User == name {
			return &models.Group{JID: g.JID.String(), Name: g.Name}, nil
		}
	}
	return nil, fmt.Errorf("group %q not found", name)
}

// ListMembers returns the group's current participants.
func (c *SessionClient) ListMembers(ctx context.Context, group *models.Group) ([]models.Member, error) {
	jid, err := types.ParseJID(group.JID)
	if err != nil {
		return nil, fmt.Errorf("invalid group JID %q: %w", group.JID, err)
	}
	info, err := c.cli.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("failed to get group info for %s: %w", group.Name, err)
	}
	members := make([]models.Member, 0, len(info.Participants))
	for _, p := range info.Participants {
		members = append(members, models.Member{JID: p.JID.User})
	}
	return members, nil
}

// RecentMessages returns up to limit recorded messages for the group,
// oldest of the window first.
func (c *SessionClient) RecentMessages(ctx context.Context, group *models.Group, limit int) ([]models.GroupMessage, error) {
	return c.messages.RecentGroupMessages(group.JID, limit)
}

// Disconnect removes the event handler and closes the connection.
// Best-effort and idempotent.
func (c *SessionClient) Disconnect() {
	c.discOnce.Do(func() {
		c.cli.RemoveEventHandler(c.handlerID)
		c.cli.Disconnect()
		slog.Debug("Session client disconnected", "sessionKey", c.sessionKey)
	})
}

// handleEvent tracks link completion and records group messages.
func (c *SessionClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		slog.Info("Session client pair success", "sessionKey", c.sessionKey, "account", v.ID.User)
	case *events.Connected:
		c.linkedOnce.Do(func() { close(c.linked) })
	case *events.Message:
		c.recordGroupMessage(v)
	}
}

// recordGroupMessage stores incoming group text messages for later digests.
func (c *SessionClient) recordGroupMessage(evt *events.Message) {
	if evt.Message == nil || !evt.Info.IsGroup {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		return
	}

	msg := models.GroupMessage{
		ID:     string(evt.Info.ID),
		Sender: evt.Info.Sender.User,
		Body:   text,
		SentAt: evt.Info.Timestamp,
	}
	if err := c.messages.AddGroupMessage(evt.Info.Chat.String(), msg); err != nil {
		slog.Error("Session client failed to record group message", "error", err, "group", evt.Info.Chat.String())
	}
}

// normalizeCode strips formatting from a pairing code for comparison.
func normalizeCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
