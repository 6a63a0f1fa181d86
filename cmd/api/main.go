package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chromium7/shoe-wear-tracker/internal/api"
	"github.com/chromium7/shoe-wear-tracker/internal/auth"
	"github.com/chromium7/shoe-wear-tracker/internal/config"
	"github.com/chromium7/shoe-wear-tracker/internal/domain"
	"github.com/chromium7/shoe-wear-tracker/internal/events"
	persistence "github.com/chromium7/shoe-wear-tracker/internal/persistence/postgres"
	"github.com/chromium7/shoe-wear-tracker/internal/strava"
	httptransport "github.com/chromium7/shoe-wear-tracker/internal/transport/http"
	"github.com/chromium7/shoe-wear-tracker/internal/webhook"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	oauth := strava.NewOAuthClient(strava.OAuthConfig{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
	})
	tokens := strava.NewTokenManager(repo, oauth)
	client := strava.NewClient(tokens)
	authorizer := strava.NewAuthorizer(oauth, repo, repo, strava.AuthorizerConfig{
		ClientID:    cfg.StravaClientID,
		RedirectURL: mustJoinURL(cfg.HostURL, "/v1/strava/authorized"),
	})

	service := domain.NewService(repo, client)

	webhookOpts := []webhook.Option{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		webhookOpts = append(webhookOpts, webhook.WithNotifier(events.NewPublisher(producer, cfg.SyncEventTopic)))
	}

	mux := http.NewServeMux()
	api.NewHandler(service, authorizer, repo).RegisterRoutes(mux)
	webhook.NewHandler(cfg.StravaVerifyToken, repo, service, webhookOpts...).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	// The webhook endpoint and OAuth callback are reached by Strava and the
	// user's browser; they carry no bearer token.
	skipper := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/metrics", "/v1/strava/webhook", "/v1/strava/authorized":
			return true
		}
		return false
	}
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, skipper)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("shoe-wear-tracker listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func mustJoinURL(base, path string) string {
	joined, err := url.JoinPath(base, path)
	if err != nil {
		log.Fatalf("invalid host url %q: %v", base, err)
	}
	return joined
}
