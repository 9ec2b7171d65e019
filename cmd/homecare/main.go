package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/config"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/http-server/handlers/api/applications"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/http-server/handlers/api/events"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/http-server/handlers/api/ping"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/http-server/handlers/api/requests"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/metrics"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/notify"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/reconciler"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/storage/postgres"
)

func main() {

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := godotenv.Load()
	if err != nil {
		log.Error("Failed to load .env", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
		os.Exit(1)
	}

	storage, err := postgres.New(cfg.PostgresConn)
	if err != nil {
		log.Error("Failed to connect to postgresql", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
		os.Exit(1)
	}

	hub := notify.NewHub()
	publisher := notify.Tee(hub, notify.NewLog(log))

	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	for _, kind := range []request.Kind{request.KindService, request.KindMaterial} {
		store, err := storage.BidStore(kind)
		if err != nil {
			log.Error("Failed to build bid store", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
			os.Exit(1)
		}
		rec := reconciler.New(string(kind), store, publisher, cfg.ReconcileInterval, log)
		go rec.Run(loopCtx)
	}

	router := chi.NewRouter()

	router.Handle("/metrics", metrics.Handler())
	router.Route("/api", func(r chi.Router) {
		r.Get("/ping", ping.New(log))
		r.Get("/events", events.New(log, hub))
		r.Route("/requests", func(r chi.Router) {
			r.Post("/new", requests.NewPostRequest(log, storage))
			r.Get("/", requests.NewGetRequests(log, storage))
			r.Get("/my", requests.NewGetMyRequests(log, storage))
			r.Get("/{requestId}/status", requests.NewGetRequestStatus(log, storage))
			r.Put("/{requestId}/status", requests.NewPutRequestStatus(log, storage))
		})
		r.Route("/applications", func(r chi.Router) {
			r.Post("/new", applications.NewPostApplication(log, storage, publisher))
			r.Get("/my", applications.NewGetMyApplications(log, storage))
			r.Get("/{requestId}/list", applications.NewGetRequestApplications(log, storage))
			r.Get("/{applicationId}/status", applications.NewGetApplicationStatus(log, storage))
			r.Put("/{applicationId}/decision", applications.NewPutApplicationDecision(log, storage, publisher))
		})
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start the server")
		}
	}()

	log.Info("starting server", slog.String("addr", cfg.HTTPAddr))
	<-done

	// Stop scheduling new reconciliation ticks, then drain the HTTP server.
	stopLoops()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down the server", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
	}

	log.Info("server stopped")
}
