package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/book-exchange/internal/config"
	"github.com/iliyamo/book-exchange/internal/database"
	"github.com/iliyamo/book-exchange/internal/handler"
	"github.com/iliyamo/book-exchange/internal/mail"
	"github.com/iliyamo/book-exchange/internal/middleware"
	"github.com/iliyamo/book-exchange/internal/queue"
	"github.com/iliyamo/book-exchange/internal/repository"
	"github.com/iliyamo/book-exchange/internal/repository/memstore"
	"github.com/iliyamo/book-exchange/internal/router"
	"github.com/iliyamo/book-exchange/internal/service"
	"github.com/iliyamo/book-exchange/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	users     service.UserStore
	books     service.BookStore
	exchanges service.ExchangeStore
	db        *sql.DB // nil for the memory driver
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using the in-memory store; data is lost on restart")
		st := memstore.New()
		return stores{users: st.Users(), books: st.Books(), exchanges: st.Exchanges()}, nil
	}
	db, err := database.Open(ctx, dbOptions(cfg))
	if err != nil {
		return stores{}, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	return stores{
		users:     repository.NewUserRepo(db),
		books:     repository.NewBookRepo(db),
		exchanges: repository.NewExchangeRepo(db),
		db:        db,
	}, nil
}

func newMailer(cfg config.Config, log *zap.Logger) mail.Sender {
	if cfg.SMTPHost == "" {
		log.Info("SMTP_HOST not set; outgoing mail is logged only")
		return mail.NewLogSender(log)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("store init failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	mailer := newMailer(cfg, log)

	var (
		events    service.Publisher
		publisher *queue.Publisher
	)
	if cfg.AMQPURL != "" {
		publisher = queue.NewPublisher(cfg.AMQPURL, log)
		events = publisher
	} else {
		log.Info("RABBITMQ_URL not set; exchange notifications disabled")
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	auth := service.NewAuthService(st.users, mailer, service.AuthConfig{
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, log)
	catalog := service.NewCatalogService(st.books, st.users, log)
	exchanges := service.NewExchangeService(st.exchanges, st.books, events, log)
	profile := service.NewProfileService(st.users, st.books, st.exchanges,
		storage.NewLocalImages(cfg.UploadDir, cfg.UploadMaxBytes), log)

	e := router.New(router.Handlers{
		Auth:      handler.NewAuthHandler(auth, log),
		Books:     handler.NewBookHandler(catalog, log),
		Users:     handler.NewUserHandler(profile, auth, log),
		Exchanges: handler.NewExchangeHandler(exchanges, log),
	}, router.Options{
		JWTSecret:  cfg.JWTSecret,
		CORSOrigin: cfg.CORSOrigin,
		BodyLimit:  "6M",
		UploadDir:  cfg.UploadDir,
		ClientDir:  cfg.ClientDir,
		RateLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		BookCache:  middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
		Log:        log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if publisher != nil {
		g.Go(func() error {
			if err := publisher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("publisher stopped", zap.Error(err))
			}
			return nil
		})
	}
	if cfg.AMQPURL != "" {
		n := &queue.Notifier{Users: st.users, Mailer: mailer, Log: log}
		g.Go(func() error {
			if err := n.Run(gctx, cfg.AMQPURL); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notifier stopped", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}
