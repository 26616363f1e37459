// Command server runs the HTTP API and the NATS ingestion subscriber in one
// process. They must share a process: the vector index snapshot is local, and
// queries need to see upserts as soon as processing finishes.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/policy-qa/internal/adapters/http"
	"github.com/kirillkom/policy-qa/internal/bootstrap"
	"github.com/kirillkom/policy-qa/internal/config"
	"github.com/kirillkom/policy-qa/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.NewJSONLogger("policy-qa", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	limiter := httpadapter.NewRateLimiter(cfg.APIRateLimitRPS, cfg.APIRateLimitBurst)
	router := httpadapter.NewRouter(app.IngestUC, app.IngestUC, app.AnswerUC, app.Metrics, limiter, cfg.RetrievalTopK).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ingestion subscriber started", "subject", cfg.NATSSubject)
		err := app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
			defer cancel()

			start := time.Now()
			processErr := app.ProcessUC.ProcessByID(processCtx, documentID)
			app.Metrics.FinishDocument("policy-qa", time.Since(start), processErr)
			app.Metrics.SetIndexedVectors(app.Index.Len())
			return processErr
		})
		if err != nil {
			logger.Error("subscriber error", "error", err)
		}
	}()

	go func() {
		logger.Info("api listening", "port", cfg.APIPort, "llm_backend", cfg.LLMBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
