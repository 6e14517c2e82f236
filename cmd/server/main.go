package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiquiz/app/internal/article"
	"wikiquiz/app/internal/config"
	appdb "wikiquiz/app/internal/db"
	apphttp "wikiquiz/app/internal/http"
	"wikiquiz/app/internal/llm"
	applog "wikiquiz/app/internal/log"
	"wikiquiz/app/internal/quiz"
)

const version = "1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "failure loading configuration")
	}

	logger, err := applog.NewLogger(cfg.LogLevel)
	if err != nil {
		return eris.Wrap(err, "failure initialising logger")
	}

	sentryHub, flush, err := applog.InitSentry(logger, applog.SentrySettings{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     "wikiquiz@" + version,
		Tags: map[string]string{
			"db_driver":  cfg.DBDriver,
			"quiz_model": cfg.QuizModel(),
		},
	})
	if err != nil {
		return eris.Wrap(err, "failure initialising sentry")
	}
	defer flush()

	promptTemplate, err := quiz.LoadPromptTemplate(cfg.QuizPromptPath)
	if err != nil {
		return eris.Wrap(err, "loading quiz prompt template")
	}

	prompts, err := quiz.NewPromptBuilder(promptTemplate)
	if err != nil {
		return eris.Wrap(err, "building quiz prompts")
	}

	dbConn, err := appdb.Open(appdb.Options{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DatabaseURL,
	})
	if err != nil {
		return eris.Wrap(err, "opening database")
	}
	defer func() {
		if closeErr := appdb.Close(dbConn); closeErr != nil {
			logger.WithError(closeErr).Error("closing database")
		}
	}()

	if err := quiz.Migrate(ctx, dbConn, logger); err != nil {
		return eris.Wrap(err, "running migrations")
	}

	repository, err := quiz.NewRepository(dbConn, logger)
	if err != nil {
		return eris.Wrap(err, "building quiz repository")
	}

	client, err := llm.NewClient(llm.ClientOptions{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMEndpoint,
		Logger:  logger,
	})
	if err != nil {
		return eris.Wrap(err, "creating llm client")
	}

	quizCompleter, err := llm.NewCompleter(llm.CompleterOptions{
		Client:  client,
		Model:   cfg.QuizModel(),
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		return eris.Wrap(err, "initialising quiz completer")
	}

	topicsCompleter, err := llm.NewCompleter(llm.CompleterOptions{
		Client:  client,
		Model:   cfg.TopicsModel(),
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		return eris.Wrap(err, "initialising topics completer")
	}

	quizService, err := quiz.NewService(quiz.ServiceOptions{
		Repository:      repository,
		Fetcher:         article.NewFetcher(article.FetcherOptions{Timeout: cfg.FetchTimeout, Logger: logger}),
		Extractor:       article.NewExtractor(logger),
		Prompts:         prompts,
		QuizCompleter:   quizCompleter,
		TopicsCompleter: topicsCompleter,
		Logger:          logger,
		SentryHub:       sentryHub,
		StoreRawHTML:    cfg.StoreRawHTML,
	})
	if err != nil {
		return eris.Wrap(err, "creating quiz service")
	}

	transport, err := apphttp.NewServer(apphttp.Options{
		QuizService: quizService,
		Database:    dbConn,
		Logger:      logger,
		SentryHub:   sentryHub,
		Version:     version,
		RateLimiter: apphttp.RateLimiterSettings{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
			ClientTTL:         cfg.RateLimitClientTTL,
		},
	})
	if err != nil {
		return eris.Wrap(err, "initialising http transport")
	}
	defer transport.Close()

	httpServer := &stdhttp.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.ServerPort),
		Handler: transport.Handler(),
	}

	serverLog := applog.Component(logger, "server")
	serverLog.WithFields(logrus.Fields{
		"addr":         httpServer.Addr,
		"db_driver":    cfg.DBDriver,
		"llm_endpoint": client.BaseURL(),
		"quiz_model":   cfg.QuizModel(),
		"topics_model": cfg.TopicsModel(),
	}).Info("starting http server")

	serverErrCh := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		serverLog.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			return eris.Wrap(err, "http server error")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "shutting down http server")
	}

	serverLog.Info("http server shut down cleanly")
	return nil
}
