package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"realestate-bot/handler"
	"realestate-bot/internal/debounce"
	"realestate-bot/internal/history"
	"realestate-bot/internal/inbound"
	"realestate-bot/internal/integrations/evolution"
	"realestate-bot/internal/integrations/openai"
	"realestate-bot/internal/usecase"
)

const (
	shutdownTimeout = 15 * time.Second
	drainTimeout    = 2 * time.Minute
)

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	al := &awsLoader{}

	// ---- Configuration ----
	cfg, err := loadConfig(ctx, al)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---- Clients ----
	cache, err := newListingCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create listing cache: %w", err)
	}
	llm, err := openai.NewClient(cfg.OpenAIKey,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithTranscriptionModel(cfg.TranscriptionModel),
		openai.WithLanguage(cfg.TranscriptionLanguage),
	)
	if err != nil {
		return fmt.Errorf("create OpenAI client: %w", err)
	}
	gateway, err := evolution.NewClient(cfg.EvolutionURL, cfg.EvolutionKey, cfg.EvolutionInstance)
	if err != nil {
		return fmt.Errorf("create Evolution client: %w", err)
	}

	// ---- Core ----
	hist := history.New(history.WithLimit(cfg.HistoryLimit), history.WithIdle(cfg.HistoryIdle))
	defer hist.Stop()

	opts := []usecase.Option{usecase.WithPacer(rate.NewLimiter(rate.Every(cfg.PhotoInterval), 1))}
	if cfg.TurnLogTable != "" {
		archive, err := newTurnArchive(ctx, al, cfg.TurnLogTable)
		if err != nil {
			return fmt.Errorf("create turn archive: %w", err)
		}
		opts = append(opts, usecase.WithArchive(archive))
	}
	resolver, err := usecase.NewResolver(cache, hist, llm, gateway, usecase.Config{
		Model:       cfg.OpenAIModel,
		AgencyName:  cfg.AgencyName,
		WebURL:      cfg.WebURL,
		TurnTimeout: cfg.TurnTimeout,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create resolver: %w", err)
	}

	buf, err := debounce.New(resolver.Handle, debounce.WithWait(cfg.DebounceWait))
	if err != nil {
		return fmt.Errorf("create debounce buffer: %w", err)
	}

	router, err := inbound.NewRouter(buf, gateway, llm)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	h, err := handler.NewHandler(router, cache, cfg.WebhookSecret)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	if props, err := cache.Listings(ctx); err != nil {
		slog.Warn("listing warm-up failed", "err", err)
	} else {
		slog.Info("listing warm-up complete", "count", len(props))
	}

	// ---- Server ----
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr, "agency", cfg.AgencyName, "debounce", cfg.DebounceWait)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		shutdownErr := srv.Shutdown(sctx)

		flushed := buf.Close()
		slog.Info("pending turns flushed", "turns", flushed)

		dctx, dcancel := context.WithTimeout(context.WithoutCancel(gctx), drainTimeout)
		defer dcancel()
		if err := buf.Wait(dctx); err != nil {
			slog.Warn("in-flight turns still running at exit", "timeout", drainTimeout)
		}
		return shutdownErr
	})
	return g.Wait()
}
