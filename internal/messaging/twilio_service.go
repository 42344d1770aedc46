package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/groupsum/GroupSum/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// DefaultTwilioWebhookAddr is where the inbound-message webhook listens when
// no address is configured.
const DefaultTwilioWebhookAddr = ":8080"

// TwilioWebhookPath is the route Twilio must be pointed at for inbound
// messages.
const TwilioWebhookPath = "/webhook/twilio"

// TwilioOpts holds configuration for the Twilio-backed channel.
type TwilioOpts struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	WebhookAddr string
}

// TwilioOption configures the Twilio channel.
type TwilioOption func(*TwilioOpts)

// WithTwilioAccountSID sets the Twilio account SID.
func WithTwilioAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithTwilioAuthToken sets the Twilio auth token.
func WithTwilioAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithTwilioFromNumber sets the sending number.
func WithTwilioFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// WithTwilioWebhookAddr sets the listen address for the inbound webhook.
func WithTwilioWebhookAddr(addr string) TwilioOption {
	return func(o *TwilioOpts) { o.WebhookAddr = addr }
}

// TwilioService implements Service over the Twilio messages API. Twilio has
// no long-lived inbound socket, so Start runs a small HTTP server whose
// webhook handler feeds inbound messages into the responses channel.
type TwilioService struct {
	client      *twilio.RestClient
	from        string
	webhookAddr string
	responses   chan models.Response
	mu          sync.RWMutex
	stopped     bool
	httpServer  *http.Server
}

// NewTwilioService creates a Twilio-backed channel service. Credentials fall
// back to TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.WebhookAddr == "" {
		cfg.WebhookAddr = os.Getenv("TWILIO_WEBHOOK_ADDR")
	}
	if cfg.WebhookAddr == "" {
		cfg.WebhookAddr = DefaultTwilioWebhookAddr
	}
	slog.Debug("Twilio channel config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.FromNumber != "",
		"webhook_addr", cfg.WebhookAddr)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client:      client,
		from:        cfg.FromNumber,
		webhookAddr: cfg.WebhookAddr,
		responses:   make(chan models.Response, DefaultChannelBufferSize),
	}, nil
}

// ValidateAndCanonicalizeRecipient reduces a recipient to bare digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// Start launches the webhook HTTP server that receives inbound messages
// from Twilio.
func (s *TwilioService) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(TwilioWebhookPath, s.WebhookHandler)

	srv := &http.Server{
		Addr:    s.webhookAddr,
		Handler: mux,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	go func() {
		slog.Info("TwilioService webhook server listening", "addr", s.webhookAddr, "path", TwilioWebhookPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("TwilioService webhook server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts down the webhook server and closes the responses channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	srv := s.httpServer
	close(s.responses)
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("TwilioService webhook server shutdown error", "error", err)
		}
	}
	slog.Info("TwilioService stopped")
	return nil
}

// SendMessage sends a message through the Twilio API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+" + canonical)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMessage error", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("TwilioService message sent", "to", canonical, "body_length", len(body))
	return nil
}

// Responses returns the channel of incoming participant messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// Inject feeds an inbound message into the responses channel.
func (s *TwilioService) Inject(response models.Response) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrServiceStopped
	}
	select {
	case s.responses <- response:
		return nil
	case <-time.After(DefaultChannelTimeout):
		return fmt.Errorf("timeout injecting response from %s", response.From)
	}
}

// WebhookHandler handles inbound message callbacks from Twilio. It expects
// the standard Twilio form POST with From and Body fields.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService webhook parse error", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if err := s.Inject(models.Response{
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	}); err != nil {
		slog.Error("TwilioService webhook inject error", "error", err, "from", from)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	slog.Debug("TwilioService webhook message received", "from", from, "body_length", len(body))

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
