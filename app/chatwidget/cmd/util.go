package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/atotto/clipboard"

	"github.com/cchalm/chatwidget/internal/ai"
	"github.com/cchalm/chatwidget/internal/claude"
	"github.com/cchalm/chatwidget/internal/config"
	"github.com/cchalm/chatwidget/internal/gemini"
	"github.com/cchalm/chatwidget/internal/persist"
	"github.com/cchalm/chatwidget/internal/telemetry"
	"github.com/cchalm/chatwidget/internal/transport"
	"github.com/cchalm/chatwidget/internal/widget"
)

const sqliteFileName = "chatwidget.db"

func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		select {
		case <-interrupt:
		case <-ctx.Done():
			signal.Stop(interrupt)
			return
		}
		logger.Info().Msg("Interrupt signal detected, shutting down gracefully...")
		cancel()
		<-interrupt
		logger.Fatal().Msg("Forcing shutdown")
	}()

	return ctx, cancel
}

// app bundles everything a command needs to drive the widget
type app struct {
	dispatcher *widget.Dispatcher
	store      *persist.Store
	closers    []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("Cleanup failed")
		}
	}
}

// newApp builds storage, telemetry and the sender from the loaded configuration
func newApp(ctx context.Context, view widget.View) (*app, error) {
	a := &app{}

	kv, closeKV, err := openKV(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeKV)
	a.store = persist.NewStore(kv, componentLogger("persist"))

	tp, err := createTelemetryProvider(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })

	sender, closeSender, err := createSender(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeSender)

	a.dispatcher = widget.NewDispatcher(sender, a.store, view,
		widget.WithLogger(componentLogger("widget")),
		widget.WithClipboard(widget.ClipboardFunc(clipboard.WriteAll)),
		widget.WithSessionOptions(ai.WithTracer(tp.Tracer())),
	)
	return a, nil
}

// openStore opens only the transcript storage, for commands that never talk to a model
func openStore() (*persist.Store, func() error, error) {
	kv, closeKV, err := openKV(cfg)
	if err != nil {
		return nil, nil, err
	}
	return persist.NewStore(kv, componentLogger("persist")), closeKV, nil
}

func openKV(c config.Config) (persist.KV, func() error, error) {
	noop := func() error { return nil }
	switch c.Storage {
	case config.StorageMemory:
		return persist.NewMemoryKV(), noop, nil
	case config.StorageSQLite:
		if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		kv, err := persist.OpenSQLiteKV(filepath.Join(c.StateDir, sqliteFileName))
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	default:
		kv, err := persist.NewFileKV(c.StateDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, noop, nil
	}
}

// createSender returns a nil sender when no credential is configured; the session then reports every send as failed
func createSender(ctx context.Context, c config.Config) (ai.Sender, func() error, error) {
	noop := func() error { return nil }
	if !c.Configured() {
		logger.Warn().Str("provider", c.Provider).Msg("No API key configured")
		return nil, noop, nil
	}

	httpLogger := componentLogger("http")
	senderLogger := componentLogger(c.Provider)
	base := transport.WithLogging(http.DefaultTransport, httpLogger)

	switch c.Provider {
	case config.ProviderGeminiSDK:
		s, err := gemini.NewSDKSender(ctx, c.APIKey, c.ResolvedModel())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.ProviderAnthropic:
		client := anthropic.NewClient(
			anthropicoption.WithHTTPClient(&http.Client{Transport: base}),
			anthropicoption.WithAPIKey(c.APIKey),
			anthropicoption.WithMaxRetries(0),
		)
		s := claude.NewStreamingSender(client, c.ResolvedModel(), c.MaxOutputTokens, senderLogger)
		if c.SystemPrompt != "" {
			s = s.WithSystemPrompt(c.SystemPrompt)
		}
		return s, noop, nil
	default:
		var rt http.RoundTripper
		if c.AuthMode == config.AuthBearer {
			rt = transport.WithBearer(base, c.APIKey)
		} else {
			rt = transport.WithQueryKey(base, c.APIKey)
		}
		return gemini.NewRESTSender(c.Endpoint, c.ResolvedModel(), &http.Client{Transport: rt}, senderLogger), noop, nil
	}
}

func createTelemetryProvider(ctx context.Context) (*telemetry.Provider, error) {
	telemetryConfig := telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
		Version:  versionInfo.version,
	}
	return telemetry.NewProvider(ctx, telemetryConfig, componentLogger("telemetry"))
}
