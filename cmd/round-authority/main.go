package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/fastround-platform/pkg/contracts/events"

	"github.com/radieske/fastround-platform/internal/round-authority/audit"
	httpapi "github.com/radieske/fastround-platform/internal/round-authority/http"
	"github.com/radieske/fastround-platform/internal/round-authority/rounds"
	"github.com/radieske/fastround-platform/internal/round-authority/store"
	"github.com/radieske/fastround-platform/internal/round-authority/ws"
	"github.com/radieske/fastround-platform/internal/shared/config"
	"github.com/radieske/fastround-platform/internal/shared/db"
	"github.com/radieske/fastround-platform/internal/shared/logger"
	"github.com/radieske/fastround-platform/internal/shared/metrics"
)

func main() {
	_ = godotenv.Load()
	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", "round-authority")
	}
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cat, err := config.LoadCatalogue(cfg.GamesFile)
	if err != nil {
		log.Fatal("load games catalogue", zap.Error(err))
	}
	initial, err := decimal.NewFromString(cfg.InitialBalance)
	if err != nil {
		log.Fatal("invalid INITIAL_BALANCE", zap.Error(err))
	}

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Store: memória (dev) ou Postgres
	var st store.Store
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()
		ps := store.NewPostgres(pg, initial)
		if err := ps.Migrate(ctx); err != nil {
			log.Fatal("postgres migrate", zap.Error(err))
		}
		st = ps
		log.Info("postgres store ready")
	default:
		st = store.NewMemory(initial)
		log.Info("memory store ready")
	}

	// Métricas Prometheus
	wsConnections := prometheus.NewGauge(prometheus.GaugeOpts{Name: "authority_ws_connections", Help: "Conexões WebSocket abertas"})
	wsSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "authority_ws_frames_sent_total", Help: "Frames enviados"})
	wsDropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "authority_ws_frames_dropped_total", Help: "Frames descartados por fila cheia"})
	betsAccepted := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "authority_bets_accepted_total", Help: "Apostas aceitas"}, []string{"game"})
	betsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "authority_bets_rejected_total", Help: "Apostas recusadas"}, []string{"game", "reason"})
	roundsSettled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "authority_rounds_settled_total", Help: "Rodadas liquidadas"}, []string{"game", "mode"})
	auditBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "authority_audit_events_total", Help: "Eventos de auditoria por resultado"}, []string{"topic", "result"})
	prometheus.MustRegister(wsConnections, wsSent, wsDropped, betsAccepted, betsRejected, roundsSettled, auditBy)

	hub := ws.NewHub(func(r *http.Request) bool { return true }, ws.Hooks{
		OnConnect:    wsConnections.Inc,
		OnDisconnect: wsConnections.Dec,
		OnSent:       wsSent.Inc,
		OnDropped:    wsDropped.Inc,
	}, log)

	// Auditoria Kafka é opcional
	var auditor rounds.Auditor = audit.Nop{}
	var pub *audit.Publisher
	if cfg.KafkaBrokers != "" {
		pub = audit.NewFromConfig(cfg, audit.Hooks{
			OnPublished: func(topic string) { auditBy.WithLabelValues(topic, "ok").Inc() },
			OnFailed:    func(topic string) { auditBy.WithLabelValues(topic, "error").Inc() },
			OnDropped:   func(topic string) { auditBy.WithLabelValues(topic, "dropped").Inc() },
		}, log)
		defer pub.Close()
		auditor = pub
		log.Info("kafka audit enabled", zap.String("brokers", cfg.KafkaBrokers))
	}

	auth, err := rounds.NewAuthority(cat, rounds.Deps{
		Store: st,
		Out:   hub,
		Audit: auditor,
		Clock: clockwork.NewRealClock(),
		Rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		Log:   log,
		Hooks: rounds.Hooks{
			OnBetAccepted: func(game string) { betsAccepted.WithLabelValues(game).Inc() },
			OnBetRejected: func(game, reason string) { betsRejected.WithLabelValues(game, reason).Inc() },
			OnSettled: func(game string, mode events.Mode, _ int) {
				roundsSettled.WithLabelValues(game, string(mode)).Inc()
			},
		},
	})
	if err != nil {
		log.Fatal("build round tables", zap.Error(err))
	}

	api := httpapi.NewServer(log, st, hub.Handler(auth))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, st.Ping, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		auth.Run(gctx)
		return nil
	})
	if pub != nil {
		g.Go(func() error {
			pub.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("round authority listening",
			zap.String("addr", srv.Addr),
			zap.String("paths", "/ws,/v1/rounds,/v1/bets,/v1/wallet"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = msrv.Shutdown(sctx)
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("round authority stopped with error", zap.Error(err))
		return
	}
	log.Info("round authority stopped")
}
