// Package bot wires the GroupSum modules together and runs the event loop.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groupsum/GroupSum/internal/genai"
	"github.com/groupsum/GroupSum/internal/lockfile"
	"github.com/groupsum/GroupSum/internal/messaging"
	"github.com/groupsum/GroupSum/internal/session"
	"github.com/groupsum/GroupSum/internal/store"
	"github.com/groupsum/GroupSum/internal/whatsapp"
	"github.com/groupsum/GroupSum/internal/workflow"
)

// Channel names selectable via configuration.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelTwilio   = "twilio"
)

// DefaultStateDir is the default directory for GroupSum state data.
const DefaultStateDir = "/var/lib/groupsum"

// Opts holds runtime configuration for the bot.
type Opts struct {
	StateDir        string
	Channel         string
	MessageLimit    int
	ProviderTimeout time.Duration
}

// Option defines a configuration option for the bot.
type Option func(*Opts)

// WithStateDir sets the state directory.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithChannel selects the chat transport ("whatsapp" or "twilio").
func WithChannel(channel string) Option {
	return func(o *Opts) { o.Channel = channel }
}

// WithMessageLimit sets how many recent messages feed one digest.
func WithMessageLimit(limit int) Option {
	return func(o *Opts) { o.MessageLimit = limit }
}

// WithProviderTimeout bounds each external provider call.
func WithProviderTimeout(timeout time.Duration) Option {
	return func(o *Opts) { o.ProviderTimeout = timeout }
}

// Run builds every module from the given options and processes inbound chat
// events until the process receives SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, twilioOpts []messaging.TwilioOption, botOpts []Option) error {
	cfg := Opts{
		StateDir:        DefaultStateDir,
		Channel:         ChannelWhatsApp,
		MessageLimit:    workflow.DefaultMessageLimit,
		ProviderTimeout: workflow.DefaultProviderTimeout,
	}
	for _, opt := range botOpts {
		opt(&cfg)
	}

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to acquire state directory lock: %w", err)
	}
	defer lock.Release()

	msgStore, err := openStore(storeOpts)
	if err != nil {
		return err
	}
	defer msgStore.Close()

	summarizer, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	svc, linker, cleanup, err := buildChannel(cfg, waOpts, twilioOpts, msgStore)
	if err != nil {
		return err
	}
	defer cleanup()

	sessions := session.NewStore()
	defer sessions.ClearAll()

	login := workflow.NewLoginFlow(linker, cfg.ProviderTimeout)
	digest := workflow.NewDigestFlow(summarizer, cfg.MessageLimit, cfg.ProviderTimeout)
	dispatcher := messaging.NewDispatcher(sessions, login, digest, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer svc.Stop()

	slog.Info("GroupSum running", "channel", cfg.Channel, "state_dir", cfg.StateDir)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received")
			return nil
		case response, ok := <-svc.Responses():
			if !ok {
				slog.Info("Responses channel closed")
				return nil
			}
			// Each event runs independently; same-user events are
			// serialized inside the dispatcher.
			go func() {
				if err := dispatcher.ProcessResponse(ctx, response); err != nil {
					slog.Error("Failed to process response", "error", err, "from", response.From)
				}
			}()
		}
	}
}

// openStore picks the message-history backend from the configured DSN.
func openStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Debug("No store DSN configured, using in-memory message store")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(cfg.DSN) == "postgres":
		st, err := store.NewPostgresStore(storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open Postgres store: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewSQLiteStore(storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		return st, nil
	}
}

// buildChannel constructs the chat transport and the account linker. The
// linker always needs the whatsmeow device container; the bot's own channel
// login only happens for the WhatsApp transport.
func buildChannel(cfg Opts, waOpts []whatsapp.Option, twilioOpts []messaging.TwilioOption, msgStore store.Store) (messaging.Service, *whatsapp.Linker, func(), error) {
	switch cfg.Channel {
	case ChannelTwilio:
		container, err := whatsapp.NewContainer(waOpts...)
		if err != nil {
			return nil, nil, nil, err
		}
		svc, err := messaging.NewTwilioService(twilioOpts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize Twilio channel: %w", err)
		}
		return svc, whatsapp.NewLinker(container, msgStore), func() {}, nil
	case ChannelWhatsApp, "":
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize WhatsApp channel: %w", err)
		}
		svc := messaging.NewWhatsAppService(client)
		return svc, whatsapp.NewLinker(client.Container(), msgStore), client.Disconnect, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown channel %q", cfg.Channel)
	}
}
