package session

import (
	"context"
	"sync"
	"testing"

	"github.com/groupsum/GroupSum/internal/models"
)

// countingClient tracks disconnects so tests can assert release-exactly-once.
type countingClient struct {
	mu          sync.Mutex
	disconnects int
}

func (c *countingClient) RequestCode(ctx context.Context, phone string) (string, error) {
	return "", nil
}
func (c *countingClient) SignIn(ctx context.Context, phone, code string) (*models.Profile, error) {
	return nil, nil
}
func (c *countingClient) ResolveGroup(ctx context.Context, name string) (*models.Group, error) {
	return nil, nil
}
func (c *countingClient) ListMembers(ctx context.Context, group *models.Group) ([]models.Member, error) {
	return nil, nil
}
func (c *countingClient) RecentMessages(ctx context.Context, group *models.Group, limit int) ([]models.GroupMessage, error) {
	return nil, nil
}
func (c *countingClient) Disconnect() {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *countingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func TestStore_CreateOrReplaceIsIdempotent(t *testing.T) {
	st := NewStore()

	first := st.CreateOrReplace("user1")
	client := &countingClient{}
	first.RemoteClient = client

	second := st.CreateOrReplace("user1")
	if second != first {
		t.Error("expected the same session instance on repeat create")
	}
	if second.RemoteClient != client {
		t.Error("expected existing remote client preserved")
	}
	if client.count() != 0 {
		t.Errorf("expected no disconnects, got %d", client.count())
	}
}

func TestStore_ClearReleasesClientExactlyOnce(t *testing.T) {
	st := NewStore()
	sess := st.CreateOrReplace("user1")
	client := &countingClient{}
	sess.RemoteClient = client

	st.Clear("user1")
	if client.count() != 1 {
		t.Errorf("expected one disconnect after Clear, got %d", client.count())
	}
	if _, ok := st.Get("user1"); ok {
		t.Error("expected session removed after Clear")
	}

	// Clearing again is a no-op.
	st.Clear("user1")
	if client.count() != 1 {
		t.Errorf("expected still one disconnect, got %d", client.count())
	}
}

func TestStore_ClearUnknownUserIsNoop(t *testing.T) {
	st := NewStore()
	st.Clear("nobody")
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", st.Len())
	}
}

func TestSession_ReleaseClientIsIdempotent(t *testing.T) {
	client := &countingClient{}
	sess := &Session{UserID: "user1", RemoteClient: client}

	sess.ReleaseClient()
	sess.ReleaseClient()
	if client.count() != 1 {
		t.Errorf("expected one disconnect, got %d", client.count())
	}
	if sess.RemoteClient != nil {
		t.Error("expected client detached")
	}
}

func TestSession_ClearWorkflowKeepsClient(t *testing.T) {
	client := &countingClient{}
	sess := &Session{UserID: "user1", RemoteClient: client, Workflow: models.WorkflowTypeLogin, State: models.StateLoginAwaitingCode}
	sess.SetData(models.DataKeyPhoneNumber, "+15551234567")

	sess.ClearWorkflow()
	if sess.Workflow != models.WorkflowTypeNone || sess.State != "" {
		t.Error("expected workflow fields reset")
	}
	if sess.GetData(models.DataKeyPhoneNumber) != "" {
		t.Error("expected scratch data cleared")
	}
	if sess.RemoteClient != client || client.count() != 0 {
		t.Error("expected client untouched by ClearWorkflow")
	}
}

func TestStore_WithLockSerializesPerUser(t *testing.T) {
	st := NewStore()
	st.CreateOrReplace("user1")

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			st.WithLock("user1", func(sess *Session) {
				counter++
			})
		}()
	}
	wg.Wait()
	if counter != workers {
		t.Errorf("expected %d serialized increments, got %d", workers, counter)
	}
}

func TestStore_ClearAllWaitsForActiveHandlers(t *testing.T) {
	st := NewStore()
	client := &countingClient{}
	st.CreateOrReplace("user1").RemoteClient = client

	// Hammer the session from per-user handlers while ClearAll tears it
	// down; the client must still be released exactly once and never be
	// touched mid-handler.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				st.WithLock("user1", func(sess *Session) {
					if sess != nil && sess.RemoteClient != nil {
						sess.GetData(models.DataKeyPhoneNumber)
					}
				})
			}
		}()
	}
	st.ClearAll()
	wg.Wait()

	if client.count() != 1 {
		t.Errorf("expected exactly one disconnect, got %d", client.count())
	}
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", st.Len())
	}
}

func TestStore_ClearAllReleasesEverything(t *testing.T) {
	st := NewStore()
	clients := make([]*countingClient, 3)
	for i, id := range []string{"a", "b", "c"} {
		clients[i] = &countingClient{}
		st.CreateOrReplace(id).RemoteClient = clients[i]
	}

	st.ClearAll()
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", st.Len())
	}
	for i, c := range clients {
		if c.count() != 1 {
			t.Errorf("client %d: expected one disconnect, got %d", i, c.count())
		}
	}
}
