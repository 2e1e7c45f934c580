// Command journeyctl is a debug and local-integration harness for the
// journey engine: it loads configuration, wires a store backend and the
// host collaborator adapters, and exposes a small HTTP surface for
// inspecting and driving the orchestrator by hand.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"

	"github.com/ignite/journey-engine/internal/adapters"
	"github.com/ignite/journey-engine/internal/adapters/httpprofile"
	"github.com/ignite/journey-engine/internal/adapters/sqsevents"
	"github.com/ignite/journey-engine/internal/config"
	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journeystore"
	"github.com/ignite/journey-engine/internal/journeysvc"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("journeyctl: load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := buildStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("journeyctl: build store: %v", err)
	}

	var events adapters.EventService
	if cfg.Events.SQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("journeyctl: load aws config: %v", err)
		}
		events = sqsevents.New(sqs.NewFromConfig(awsCfg), cfg.Events.SQSQueueURL, cfg.Events.RemoteURL)
	}

	var profile *httpprofile.Service
	if cfg.Profile.BaseURL != "" {
		profile = httpprofile.New(httpprofile.Config{
			BaseURL:      cfg.Profile.BaseURL,
			ClientID:     cfg.Profile.ClientID,
			ClientSecret: cfg.Profile.ClientSecret,
			TokenURL:     cfg.Profile.TokenURL,
			Timeout:      cfg.Profile.Timeout(),
		})
	}
	_ = profile // reserved for a future identity/segment bootstrap wiring pass

	svc := journeysvc.New(journeysvc.Deps{
		Store:  store,
		Clock:  adapters.SystemClock{},
		Events: events,
		Executor: executor.Deps{
			Events: events,
		},
	})

	if err := svc.LoadPersisted(ctx); err != nil {
		log.Fatalf("journeyctl: load persisted journeys: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port),
		Handler: newRouter(svc),
	}

	go func() {
		log.Printf("journeyctl: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("journeyctl: serve: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("journeyctl: shutdown: %v", err)
	}
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (journeystore.Store, error) {
	switch cfg.Backend {
	case config.StoreBackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return journeystore.NewPgStore(db), nil

	case config.StoreBackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return journeystore.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), cfg.DynamoTable, cfg.ArchiveBucket), nil

	default:
		dir := cfg.FileDir
		if dir == "" {
			dir = "./data/journeys"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create file store dir: %w", err)
		}
		return journeystore.NewFileStore(dir)
	}
}

// newRouter builds the debug HTTP surface: an overview of the in-memory
// registry, manual journey starts, and event ingestion. Mirrors the
// middleware stack and CORS posture of the corpus's own API server.
func newRouter(svc *journeysvc.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/overview", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, svc.Overview())
	})

	r.Post("/campaigns/{campaignID}/start", func(w http.ResponseWriter, req *http.Request) {
		campaignID := chi.URLParam(req, "campaignID")
		distinctID := req.URL.Query().Get("distinctId")
		if distinctID == "" {
			http.Error(w, "distinctId is required", http.StatusBadRequest)
			return
		}
		j, started, err := svc.StartJourney(req.Context(), campaignID, distinctID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"started": started, "journey": j})
	})

	r.Post("/events", func(w http.ResponseWriter, req *http.Request) {
		var wire struct {
			DistinctID string         `json:"distinctId"`
			Name       string         `json:"name"`
			Properties map[string]any `json:"properties"`
		}
		if err := json.NewDecoder(req.Body).Decode(&wire); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ev := ir.Event{
			Name:       wire.Name,
			Timestamp:  time.Now(),
			DistinctID: wire.DistinctID,
			Properties: wire.Properties,
		}
		if err := svc.HandleEvent(req.Context(), wire.DistinctID, ev); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("journeyctl: encode response: %v", err)
	}
}
