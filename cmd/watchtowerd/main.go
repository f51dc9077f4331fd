// Command watchtowerd runs the face-recognition pipeline core as a
// standalone process: it opens the store, rebuilds the embedding index,
// starts a task graph per enabled camera, runs the Storage Janitor, and
// serves the Event Bus over WebSocket plus Prometheus metrics. There is
// no profile/camera CRUD surface here — that REST layer is explicitly
// out of scope (spec.md §1); operators manage cameras and identities
// directly against the store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/config"
	"github.com/watchtower-nvr/core/debounce"
	"github.com/watchtower-nvr/core/detect/dnndetect"
	"github.com/watchtower-nvr/core/embedder/arcface"
	"github.com/watchtower-nvr/core/embedding"
	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/events/mqttfanout"
	"github.com/watchtower-nvr/core/index"
	"github.com/watchtower-nvr/core/janitor"
	"github.com/watchtower-nvr/core/match"
	"github.com/watchtower-nvr/core/objectstore/localstore"
	"github.com/watchtower-nvr/core/pipeline"
	"github.com/watchtower-nvr/core/realtime"
	"github.com/watchtower-nvr/core/store/sqlitestore"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	if err := godotenv.Load(); err != nil {
		log.Infow("no .env file found or error loading it, continuing on process env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}
	if cfg.EmbeddingDim != embedding.Dim {
		log.Fatalw("EMBEDDING_DIM does not match the built-in embedding dimension", "configured", cfg.EmbeddingDim, "built_in", embedding.Dim)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalw("failed to create data directory", "path", cfg.DataDir, "error", err)
	}

	db, err := sqlitestore.Open(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalw("failed to open store", "error", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalw("failed to get underlying sql.DB", "error", err)
	}
	defer sqlDB.Close()

	cameras := sqlitestore.NewCameraRepo(db)
	identities := sqlitestore.NewIdentityRepo(db)
	sightings := sqlitestore.NewSightingRepo(db)
	recordings := sqlitestore.NewRecordingRepo(db)
	settings := sqlitestore.NewSettingsRepo(db)

	var settingsCount int64
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM settings").Scan(&settingsCount); err != nil {
		log.Fatalw("failed to check settings table", "error", err)
	}
	if settingsCount == 0 {
		if err := settings.Save(cfg.DefaultSettings); err != nil {
			log.Fatalw("failed to seed default settings", "error", err)
		}
		log.Infow("seeded default settings from environment")
	}

	objects, err := localstore.New(cfg.DataDir, log)
	if err != nil {
		log.Fatalw("failed to open object store", "error", err)
	}

	loaded, err := settings.Load()
	if err != nil {
		log.Fatalw("failed to load settings", "error", err)
	}

	idx := index.NewFlat(loaded.Detection.AnnThreshold, log)
	active, err := identities.AllActive()
	if err != nil {
		log.Fatalw("failed to list active identities", "error", err)
	}
	for _, ident := range active {
		emb, err := embedding.FromBytes(ident.Embedding)
		if err != nil {
			log.Warnw("skipping identity with malformed embedding", "identity_id", ident.ID, "error", err)
			continue
		}
		idx.Add(ident.ID, emb, ident.FirstSeenAt)
	}
	log.Infow("rebuilt embedding index", "identities", idx.Len())

	detector, err := dnndetect.NewSSD(cfg.DetectorConfigPath, cfg.DetectorModelPath, log)
	if err != nil {
		log.Fatalw("failed to load detector model", "error", err)
	}
	defer detector.Close()

	embedModel, err := arcface.New(cfg.EmbedderModelPath, cfg.EmbedderModelName, log)
	if err != nil {
		log.Fatalw("failed to load embedder model", "error", err)
	}
	defer embedModel.Close()

	bus := events.NewBus(log)

	debouncer := debounce.New(time.Duration(loaded.Detection.SightingCooldownSecs) * time.Second)
	matcher := match.New(idx, identities, sightings, objects, settings, debouncer, bus, log)

	supervisor := pipeline.NewSupervisor(pipeline.Deps{
		Cameras:    cameras,
		Recordings: recordings,
		Objects:    objects,
		Detector:   detector,
		Embedder:   embedModel,
		Matcher:    matcher,
		Settings:   settings,
		Bus:        bus,
		Log:        log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := supervisor.Start(ctx); err != nil {
		log.Fatalw("failed to start pipeline supervisor", "error", err)
	}
	defer supervisor.Shutdown()

	j := janitor.New(sqlDB, recordings, objects, settings, bus, log)
	go j.Run(ctx, cfg.JanitorIntervalSecs, time.Now)

	const debouncePruneInterval = 5 * time.Minute
	go debouncer.RunPruneLoop(ctx, debouncePruneInterval, time.Now)

	var forwarder *mqttfanout.Forwarder
	if cfg.MQTTBrokerURL != "" {
		forwarder, err = mqttfanout.Connect(mqttfanout.Config{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: "watchtower/events",
			QoS:         1,
		}, log)
		if err != nil {
			log.Errorw("failed to connect to mqtt broker, continuing without fanout", "error", err)
		} else {
			go forwarder.Run(ctx, bus, "mqtt-fanout")
			defer forwarder.Close()
			log.Infow("mqtt fanout connected", "broker", cfg.MQTTBrokerURL)
		}
	}

	hub := realtime.NewHub(bus, log)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})

	appRouter := chi.NewRouter()
	appRouter.Use(middleware.RequestID)
	appRouter.Use(middleware.RealIP)
	appRouter.Use(middleware.Logger)
	appRouter.Use(middleware.Recoverer)
	appRouter.Use(corsHandler.Handler)
	appRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	wsRouter := chi.NewRouter()
	wsRouter.Use(middleware.RequestID)
	wsRouter.Use(middleware.Recoverer)
	wsRouter.Use(corsHandler.Handler)
	wsRouter.Get("/ws", hub.ServeWS)

	metricsRouter := chi.NewRouter()
	metricsRouter.Use(middleware.Recoverer)
	metricsRouter.Handle("/metrics", promhttp.Handler())

	appServer := &http.Server{Addr: cfg.HTTPAddr, Handler: appRouter, ReadTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}
	wsServer := &http.Server{Addr: cfg.WSAddr, Handler: wsRouter, ReadTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsRouter, ReadTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}

	listeners := []struct {
		name   string
		server *http.Server
	}{
		{"http", appServer},
		{"websocket", wsServer},
		{"metrics", metricsServer},
	}
	for _, l := range listeners {
		l := l
		go func() {
			log.Infow("listener starting", "server", l.name, "addr", l.server.Addr)
			if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("listener failed", "server", l.name, "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, l := range listeners {
		if err := l.server.Shutdown(shutdownCtx); err != nil {
			log.Warnw("listener shutdown error", "server", l.name, "error", err)
		}
	}
}
