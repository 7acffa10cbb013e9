package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"voice-relay-service/internal/agent"
	grpcapi "voice-relay-service/internal/api/grpc"
	"voice-relay-service/internal/channel"
	"voice-relay-service/internal/config"
	"voice-relay-service/internal/events"
	httpapi "voice-relay-service/internal/http"
	"voice-relay-service/internal/observability"
	"voice-relay-service/internal/observability/logging"
	"voice-relay-service/internal/observability/metrics"
	"voice-relay-service/internal/realtime"
	"voice-relay-service/internal/realtime/mock"
	"voice-relay-service/internal/service/relay"
	"voice-relay-service/internal/telephony"
	"voice-relay-service/internal/tools"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Relay     *relay.Relay
	Publisher *events.Publisher

	httpServer    *http.Server
	grpcServer    *grpcapi.Server
	observability *observability.Server
}

// New constructs every component from the provided configuration.
func New(cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}
	m := metrics.DefaultMetrics

	registry, err := tools.NewRegistry(tools.NewOrderBook(tools.DefaultOrders()).CheckOrderStatusTool())
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	transport := channel.Options{
		WriteTimeout:    cfg.Transport.WriteTimeout,
		MaxMessageBytes: cfg.Transport.MaxMessageBytes,
	}
	dialer, err := newDialer(cfg.Model, transport)
	if err != nil {
		return nil, err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicCalls:       cfg.Kafka.TopicCalls,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		Principal:        cfg.Kafka.Principal,
	})

	a.Relay, err = relay.New(relay.Config{
		Dialer: dialer,
		Session: agent.SessionConfig(agent.Options{
			Voice:       cfg.Model.Voice,
			AudioFormat: cfg.Telephony.AudioFormat(),
			Tools:       registry.Definitions(),
		}),
		Tools:   registry,
		Sink:    a.Publisher,
		Metrics: m,
		Limits: relay.Limits{
			StartTimeout: cfg.SessionLimits.StartTimeout,
			MaxDuration:  cfg.SessionLimits.MaxDuration,
			ToolTimeout:  cfg.SessionLimits.ToolTimeout,
		},
	})
	if err != nil {
		return nil, err
	}

	calls := telephony.NewClient(cfg.Telephony.APIBaseURL, cfg.Telephony.APIKey, nil)
	webhook := telephony.NewWebhookHandler(calls, telephony.WebhookConfig{
		PublicDomain: cfg.Service.PublicDomain,
		StreamTrack:  cfg.Telephony.StreamTrack,
		Codec:        cfg.Telephony.Codec,
	}, m)

	a.httpServer = &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Sessions:  a.Relay,
			Webhook:   webhook,
			Transport: transport,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.grpcServer = grpcapi.NewServer(m)
	a.observability = observability.NewServer(":" + cfg.Observability.MetricsPort)

	a.Logger.Info().
		Str("modelProvider", cfg.Model.Provider).
		Str("codec", cfg.Telephony.Codec).
		Int("tools", registry.Len()).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Msg("Voice relay application created")
	return a, nil
}

func newDialer(cfg config.ModelConfig, transport channel.Options) (realtime.Dialer, error) {
	switch cfg.Provider {
	case "mock":
		return mock.NewDialer(mock.DefaultOptions()), nil
	case "openai", "":
		d, err := realtime.NewWebSocketDialer(cfg.URL, cfg.Name, cfg.APIKey, transport)
		if err != nil {
			return nil, fmt.Errorf("model dialer: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// Start binds the listeners and serves in the background.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()

	grpcLis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	httpLis, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("http listen: %w", err)
	}

	a.observability.Start()

	go func() {
		if err := a.grpcServer.Serve(grpcLis); err != nil {
			a.Logger.Error().Err(err).Msg("gRPC server stopped")
		}
	}()
	go func() {
		a.Logger.Info().Str("addr", a.httpServer.Addr).Msg("HTTP server started")
		if err := a.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Voice relay service started")
	return nil
}

// Shutdown stops accepting calls, drains active sessions and releases
// every component.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Int64("activeSessions", a.Relay.ActiveSessions()).Msg("Voice relay service shutting down")

	a.observability.SetReady(false)
	a.grpcServer.SetServing(false)

	// Hijacked media connections are not tracked by http.Server; the relay drains them.
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if err := a.Relay.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Relay shutdown")
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Publisher close")
	}

	a.grpcServer.Stop(ctx)
	if err := a.observability.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Observability server shutdown")
	}
}
