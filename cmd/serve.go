package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/teemow/depobot/internal/config"
	"github.com/teemow/depobot/internal/deposition"
	"github.com/teemow/depobot/internal/httpclient"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/publish"
	"github.com/teemow/depobot/internal/recall"
	"github.com/teemow/depobot/internal/server"
	"github.com/teemow/depobot/internal/store"
	"github.com/teemow/depobot/internal/token"
	"github.com/teemow/depobot/internal/transcript"
	"github.com/teemow/depobot/internal/webhook"
	"github.com/teemow/depobot/internal/zoom"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	port       string
	debug      bool
	trustProxy bool
	rateLimit  float64
	rateBurst  int
	metrics    MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Zoom App HTTP server",
		Long: `Start the HTTP server. It receives Zoom meeting webhooks, runs the
bot and transcript pipeline, serves the OAuth install flow and answers the
Recall.ai token callback.

Configuration is read from the environment (see internal/config). A .env file
in the working directory is loaded unless APP_ENV=production.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					opts.metrics.Addr = addr
				}
			}
			if !cmd.Flags().Changed("metrics") && os.Getenv("METRICS_ENABLED") == "false" {
				opts.metrics.Enabled = false
			}
			return runServe(cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.port, "port", "", "HTTP listen port. Overrides the PORT env var.")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.trustProxy, "trust-proxy", false, "Use X-Forwarded-For for rate limiting. Only enable behind a proxy that sets it.")
	cmd.Flags().Float64Var(&opts.rateLimit, "rate-limit", server.DefaultRateLimit, "Requests per second allowed per client IP on public endpoints (0 disables)")
	cmd.Flags().IntVar(&opts.rateBurst, "rate-burst", server.DefaultRateBurst, "Burst size for the per-IP rate limit")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(stderr io.Writer, opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidatePipeline(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}

	logger, err := newLogger(stderr, cfg, opts.debug)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig, err := instrumentation.LoadConfig(os.Getenv)
	if err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	st, err := openStores(shutdownCtx, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	wired, err := buildApp(shutdownCtx, cfg, st, provider, logger)
	if err != nil {
		return err
	}

	var limiter *server.RateLimiter
	if opts.rateLimit > 0 {
		limiter = server.NewRateLimiter(opts.rateLimit, opts.rateBurst, opts.trustProxy)
	}
	health := server.NewHealthChecker(wired.serverContext)
	if st.ping != nil {
		health.AddCheck("store", st.ping)
	}
	srv := server.New(wired.serverContext, wired.webhook, limiter, health)

	errCh := make(chan error, 2)

	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metrics.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			logger.Warn("metrics server disabled", logging.Err(err))
			metricsServer = nil
		} else {
			go func() {
				if err := metricsServer.Start(); err != nil {
					errCh <- fmt.Errorf("metrics server: %w", err)
				}
			}()
		}
	}

	go func() {
		if err := srv.Start(":" + cfg.Port); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	logger.Info("depobot started",
		slog.String("version", version),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.Port),
		slog.String("store", cfg.Storage.Backend))

	var runErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server stopped", logging.Err(runErr))
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := wired.webhook.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline runs did not finish: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("unclean shutdown", logging.Err(err))
		return errors.Join(runErr, err)
	}

	logger.Info("shutdown complete")
	return runErr
}

func newLogger(w io.Writer, cfg *config.Config, debug bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.NewLogger(w, level, cfg.LogFormat), nil
}

// stores bundles the state backends selected by STORE_BACKEND.
type stores struct {
	credentials store.CredentialStore
	bots        store.BotRegistry
	claims      store.Guard

	ping  server.CheckFunc
	close func() error
}

func (s *stores) Close() {
	if s.close != nil {
		_ = s.close()
	}
}

// openStores builds the credential store, bot registry and claim guard.
// The file backend keeps a per-process claim set; the redis backend
// shares claims across replicas.
func openStores(ctx context.Context, cfg config.Storage) (*stores, error) {
	cipher, err := store.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid token encryption key: %w", err)
	}

	switch cfg.Backend {
	case config.BackendRedis:
		client, err := store.ConnectRedis(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return redisStores(client, cipher), nil

	case config.BackendFile, "":
		creds, err := store.NewFileCredentialStore(cfg.DataDir, cipher)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		bots, err := store.NewFileBotRegistry(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open bot registry: %w", err)
		}
		return &stores{
			credentials: creds,
			bots:        bots,
			claims:      store.NewMemoryGuard(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func redisStores(client redis.UniversalClient, cipher *store.Cipher) *stores {
	return &stores{
		credentials: store.NewRedisCredentialStore(client, cipher),
		bots:        store.NewRedisBotRegistry(client),
		claims:      store.NewRedisGuard(client),
		ping:        func(ctx context.Context) error { return client.Ping(ctx).Err() },
		close:       client.Close,
	}
}

// app holds the wired HTTP surface.
type app struct {
	serverContext *server.ServerContext
	webhook       *webhook.Handler
}

// buildApp constructs every client and hands them to the dispatcher and
// the HTTP handlers. Each upstream gets its own instrumented http.Client.
func buildApp(ctx context.Context, cfg *config.Config, st *stores, provider *instrumentation.Provider, logger *slog.Logger) (*app, error) {
	metrics := provider.Metrics()
	callTimeout := cfg.Pipeline.HTTPCallTimeout
	httpFor := func(service string) *http.Client {
		return httpclient.New(service, callTimeout, metrics, logger)
	}

	zoomClient, err := zoom.NewClient(zoom.Config{
		Host:         cfg.Zoom.Host,
		ClientID:     cfg.Zoom.ClientID,
		ClientSecret: cfg.Zoom.ClientSecret,
		RedirectURL:  cfg.Zoom.RedirectURL,
	}, httpFor(instrumentation.ServiceZoom), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create zoom client: %w", err)
	}

	tokens := token.NewManager(st.credentials, zoomClient,
		token.WithMetrics(metrics),
		token.WithLogger(logger))

	recallClient := recall.NewClient(cfg.Recall.APIBase, cfg.Recall.APIKey,
		httpFor(instrumentation.ServiceRecall), logger)

	transcripts := transcript.NewStore(cfg.Storage.DataDir)
	publisher, err := publish.NewS3Publisher(publish.Config{
		Bucket:          cfg.AWS.Bucket,
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	}, transcripts.Root(), httpFor(instrumentation.ServiceS3), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 publisher: %w", err)
	}

	codes, err := codeSource(cfg.Deposition)
	if err != nil {
		return nil, err
	}
	depositions := deposition.NewClient(cfg.Deposition.APIBaseURL, codes,
		httpFor(instrumentation.ServiceDeposition),
		deposition.WithMetrics(metrics),
		deposition.WithLogger(logger))

	dispatcher, err := webhook.NewDispatcher(webhook.Deps{
		Bots:        recallClient,
		Registry:    st.bots,
		Claims:      st.claims,
		Downloader:  transcript.NewDownloader(cfg.Recall.APIKey, httpFor(instrumentation.ServiceTranscript)),
		Transcripts: transcripts,
		Publisher:   publisher,
		Depositions: depositions,
	}, webhook.Settings{
		CaseID:      cfg.Deposition.CaseID,
		UserID:      cfg.Deposition.UserID,
		PageSize:    cfg.Pipeline.PageSize,
		CallTimeout: callTimeout,
	},
		webhook.WithLogger(logger),
		webhook.WithMetrics(metrics),
		webhook.WithAudit(provider.Audit()))
	if err != nil {
		return nil, err
	}

	if cfg.Zoom.WebhookSecret == "" {
		logger.Warn("ZM_WEBHOOK_SECRET is not set: webhook signatures are not verified")
	}
	hook := webhook.NewHandler(dispatcher, webhook.HandlerConfig{
		Secret:          cfg.Zoom.WebhookSecret,
		PipelineTimeout: cfg.Pipeline.PipelineTimeout,
		Logger:          logger,
		Metrics:         metrics,
	})

	sc, err := server.NewServerContext(ctx, server.Deps{
		Zoom:             zoomClient,
		Tokens:           tokens,
		Sessions:         server.NewSessions(cfg.SessionSecret),
		Recall:           recallClient,
		RecallOAuthAppID: cfg.Recall.OAuthAppID,
		RecallAuthToken:  cfg.Recall.AuthToken,
		CallbackBase:     cfg.Recall.CallbackBase,
		Logger:           logger,
		Metrics:          metrics,
	})
	if err != nil {
		return nil, err
	}

	return &app{serverContext: sc, webhook: hook}, nil
}

// codeSource prefers the external command when both are configured.
func codeSource(cfg config.Deposition) (deposition.CodeSource, error) {
	switch {
	case cfg.TOTPCommand != "":
		src, err := deposition.NewCommandSource(cfg.TOTPCommand)
		if err != nil {
			return nil, fmt.Errorf("invalid TOTP_COMMAND: %w", err)
		}
		return src, nil
	case cfg.TOTPSecret != "":
		return deposition.NewTOTPSource(cfg.TOTPSecret), nil
	default:
		return nil, errors.New("one of TOTP_SECRET or TOTP_COMMAND is required")
	}
}
