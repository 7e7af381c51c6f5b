package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sungwon/wa-commerce/internal/ai"
	"github.com/sungwon/wa-commerce/internal/api"
	"github.com/sungwon/wa-commerce/internal/auth"
	"github.com/sungwon/wa-commerce/internal/bootstrap"
	"github.com/sungwon/wa-commerce/internal/config"
	"github.com/sungwon/wa-commerce/internal/delivery"
	"github.com/sungwon/wa-commerce/internal/deposit"
	"github.com/sungwon/wa-commerce/internal/gateway"
	"github.com/sungwon/wa-commerce/internal/invoice"
	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/mediastore"
	"github.com/sungwon/wa-commerce/internal/orchestrator"
	"github.com/sungwon/wa-commerce/internal/orderflow"
	"github.com/sungwon/wa-commerce/internal/poller"
	"github.com/sungwon/wa-commerce/internal/queue"
	"github.com/sungwon/wa-commerce/internal/session"
	"github.com/sungwon/wa-commerce/internal/storage"
	"github.com/sungwon/wa-commerce/internal/worker"
)

const (
	shutdownTimeout   = 30 * time.Second
	poolStatsInterval = 15 * time.Second
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxFiles:   cfg.Logging.MaxFiles,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	log.Info().Msg("starting commerce bot")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	if cfg.Database.Migrate {
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		log.Info().Msg("database migrations applied")
	}
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	store := storage.NewStore(db)
	log.Info().Msg("database connection established")

	if err := bootstrap.SeedMerchant(ctx, store, log, bootstrap.Merchant{
		Name:              cfg.Bootstrap.MerchantName,
		Phone:             cfg.Bootstrap.MerchantPhone,
		AccountName:       cfg.Bootstrap.AccountName,
		AccountCredential: cfg.Bootstrap.AccountCredential,
	}); err != nil {
		return err
	}

	// Optional Redis for the inbound seen-cache and dead letters.
	var (
		seen          poller.SeenCache
		deadLetters   queue.DeadLetterSink
		deadLetterAPI api.DeadLetterLister
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()

		seen = poller.NewRedisSeenCache(rdb, cfg.Poller.SeenTTL)
		letters := queue.NewRedisDeadLetters(rdb, 0)
		deadLetters, deadLetterAPI = letters, letters
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connection established")
	} else {
		log.Warn().Msg("redis not configured; seen-cache and dead-letter list disabled")
	}

	media, err := mediastore.New(ctx, mediastore.Config{
		Type:       cfg.MediaStore.Type,
		Path:       cfg.MediaStore.Path,
		S3Bucket:   cfg.MediaStore.S3Bucket,
		S3Prefix:   cfg.MediaStore.S3Prefix,
		S3Endpoint: cfg.MediaStore.S3Endpoint,
		S3Region:   cfg.MediaStore.S3Region,
	}, log)
	if err != nil {
		return fmt.Errorf("create media store: %w", err)
	}

	// Outbound delivery
	gw := gateway.New(cfg.Gateway.BaseURL, gateway.NewHTTPClient(cfg.Gateway.Timeout))
	q := queue.New(worker.NewHandler(gw, media, log), deadLetters, queue.Config{
		MinInterval: cfg.Queue.MinInterval,
		MaxRetries:  cfg.Queue.MaxRetries,
		SendTimeout: cfg.Queue.SendTimeout,
	}, log)
	replies := delivery.NewService(q, log)

	assistant, err := newAIGateway(cfg.AI, log)
	if err != nil {
		return err
	}

	// Conversation flows
	sessions := session.NewStore(cfg.Session.TTL, log)
	renderer := invoice.NewHTTPRenderer(store, store, media,
		gateway.NewHTTPClient(cfg.Invoice.Timeout), cfg.Invoice.RenderURL, log)
	engine := orderflow.NewEngine(orderflow.Deps{
		Catalog:   store,
		Carts:     store,
		Addresses: store,
		Shipping:  store,
		Orders:    store,
		Invoices:  renderer,
		AI:        assistant,
		Replies:   replies,
	}, cfg.Invoice.Timeout, log)
	deposits := deposit.NewPipeline(assistant, store, store, gw, media, replies, log)
	router := orchestrator.NewRouter(orchestrator.Deps{
		Users:    store,
		FAQs:     store,
		AI:       assistant,
		Sessions: sessions,
		Orders:   engine,
		Deposits: deposits,
		Replies:  replies,
	}, log)

	pollerCfg := poller.DefaultConfig()
	pollerCfg.Interval = cfg.Poller.Interval
	pollerCfg.FetchTimeout = cfg.Poller.FetchTimeout
	pollerCfg.MaxConcurrency = cfg.Poller.MaxConcurrency
	pollerCfg.MaxPages = cfg.Poller.MaxPages
	p := poller.New(store, gw, store, seen, router, pollerCfg, log)

	// Admin API
	if cfg.Auth.SigningKey == "" || cfg.Auth.SigningKey == "change-me-in-production-use-a-strong-secret" {
		log.Warn().Msg("JWT signing key is not set or using default value; set WACOMMERCE_AUTH_SIGNING_KEY in production")
	}
	jwtService := auth.NewJWTService(jwtConfig(cfg, cfg.Auth.AccessTokenExpiry))
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Deps{
			DB:          db,
			Accounts:    store,
			Queue:       q,
			DeadLetters: deadLetterAPI,
			AI:          assistant,
			Deposits:    deposits,
		}, jwtService, log),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	var background sync.WaitGroup
	background.Add(3)
	go func() {
		defer background.Done()
		sessions.Run(ctx, cfg.Session.SweepInterval)
	}()
	go func() {
		defer background.Done()
		db.ReportStats(ctx, poolStatsInterval)
	}()
	go func() {
		defer background.Done()
		p.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down commerce bot")
	case err := <-serveErr:
		log.Error().Err(err).Msg("admin API failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin API forced to shutdown")
	}
	background.Wait()
	engine.Wait()
	if err := q.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("delivery queue did not drain")
	}

	log.Info().Msg("commerce bot stopped")
	return nil
}

// newAIGateway builds every provider that has credentials and selects the
// configured one as active.
func newAIGateway(cfg config.AIConfig, log zerolog.Logger) (*ai.Gateway, error) {
	candidates := []struct {
		name string
		cfg  config.AIProviderConfig
	}{
		{"openai", cfg.OpenAI},
		{"compat", cfg.Compat},
	}

	var providers []ai.Provider
	for _, c := range candidates {
		if c.cfg.APIKey == "" {
			continue
		}
		provider, err := ai.NewProvider(c.name, ai.ProviderConfig{
			APIKey:      c.cfg.APIKey,
			BaseURL:     c.cfg.BaseURL,
			Model:       c.cfg.Model,
			VisionModel: c.cfg.VisionModel,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create ai provider %s: %w", c.name, err)
		}
		providers = append(providers, provider)
		log.Info().Str("provider", c.name).Str("model", c.cfg.Model).Msg("ai provider configured")
	}

	g, err := ai.NewGateway(providers, cfg.Active, log)
	if err != nil {
		return nil, fmt.Errorf("create ai gateway: %w", err)
	}
	return g, nil
}
