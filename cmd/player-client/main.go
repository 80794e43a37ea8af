package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/player-client/balance"
	"github.com/radieske/fastround-platform/internal/player-client/bot"
	"github.com/radieske/fastround-platform/internal/player-client/composer"
	"github.com/radieske/fastround-platform/internal/player-client/engine"
	"github.com/radieske/fastround-platform/internal/player-client/history"
	"github.com/radieske/fastround-platform/internal/player-client/pushchannel"
	sharedcache "github.com/radieske/fastround-platform/internal/shared/cache"
	"github.com/radieske/fastround-platform/internal/shared/config"
	"github.com/radieske/fastround-platform/internal/shared/logger"
	"github.com/radieske/fastround-platform/internal/shared/metrics"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

func main() {
	_ = godotenv.Load()
	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", "player-client")
	}
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log = log.With(zap.String("user_id", cfg.UserID), zap.String("game", cfg.Game))

	cat, err := config.LoadCatalogue(cfg.GamesFile)
	if err != nil {
		log.Fatal("load games catalogue", zap.Error(err))
	}
	variant, err := games.Lookup(cfg.Game)
	if err != nil {
		log.Fatal("unknown game", zap.Error(err))
	}
	amount, err := decimal.NewFromString(cfg.StakeAmount)
	if err != nil {
		log.Fatal("invalid STAKE_AMOUNT", zap.Error(err))
	}
	var selections []composer.Selection
	for _, part := range strings.Split(cfg.StakeSelection, ",") {
		sel, err := composer.ParseSelection(strings.TrimSpace(part))
		if err != nil {
			log.Fatal("invalid STAKE_SELECTION", zap.String("selection", part), zap.Error(err))
		}
		selections = append(selections, sel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Histórico via REST, opcionalmente com cache Redis na frente
	var reader history.Reader = history.New(cfg.AuthorityHTTPURL)
	var invalidator engine.HistoryInvalidator
	if cfg.HistoryUseRedis {
		rdb, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		cached := history.NewCached(reader, rdb, cfg.HistoryCacheTTL)
		reader, invalidator = cached, cached
		log.Info("history cache enabled", zap.Duration("ttl", cfg.HistoryCacheTTL))
	}

	initial, err := reader.Balance(ctx, cfg.UserID)
	if err != nil {
		log.Warn("initial balance unavailable, starting at zero", zap.Error(err))
		initial = decimal.Zero
	}
	wallet := balance.New(initial)

	// Métricas Prometheus alimentadas pelos hooks do engine
	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "player_ticks_total", Help: "Ticks aplicados"}, []string{"mode"})
	rollovers := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "player_rollovers_total", Help: "Trocas de rodada"}, []string{"mode"})
	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "player_bets_submitted_total", Help: "Apostas enviadas"}, []string{"mode"})
	localRejections := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "player_local_rejections_total", Help: "Recusas locais"}, []string{"reason"})
	serverRejections := prometheus.NewCounter(prometheus.CounterOpts{Name: "player_server_rejections_total", Help: "Rejeições da autoridade"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "player_bets_settled_total", Help: "Apostas liquidadas"}, []string{"won"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "player_duplicates_total", Help: "Entregas repetidas ignoradas"}, []string{"kind"})
	decodeErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "player_decode_errors_total", Help: "Frames inválidos descartados"})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{Name: "player_push_connected", Help: "1 quando o canal de push está conectado"})
	prometheus.MustRegister(ticks, rollovers, submitted, localRejections, serverRejections, settled, duplicates, decodeErrors, connected)

	var loop *engine.Loop
	push := pushchannel.New(pushchannel.Options{
		URL:    cfg.AuthorityWSURL,
		Game:   cfg.Game,
		UserID: cfg.UserID,
		OnFrame: func(env events.Envelope) {
			loop.Frame(env)
		},
		OnState: func(s pushchannel.State) {
			if s == pushchannel.Connected {
				connected.Set(1)
			} else {
				connected.Set(0)
			}
			loop.ConnectionChanged(s)
		},
	}, log)

	eng := engine.New(variant, push, wallet, engine.Options{
		UserID:    cfg.UserID,
		Catalogue: cat,
		Clock:     clockwork.NewRealClock(),
		Hooks: engine.Hooks{
			OnTick:           func(m events.Mode) { ticks.WithLabelValues(string(m)).Inc() },
			OnRollover:       func(m events.Mode) { rollovers.WithLabelValues(string(m)).Inc() },
			OnSubmitted:      func(m events.Mode) { submitted.WithLabelValues(string(m)).Inc() },
			OnLocalRejection: func(reason string) { localRejections.WithLabelValues(reason).Inc() },
			OnServerRejected: serverRejections.Inc,
			OnSettled: func(won bool) {
				if won {
					settled.WithLabelValues("true").Inc()
				} else {
					settled.WithLabelValues("false").Inc()
				}
			},
			OnDuplicate:   func(kind string) { duplicates.WithLabelValues(kind).Inc() },
			OnDecodeError: decodeErrors.Inc,
		},
	}, log)
	loop = engine.NewLoop(ctx, eng, engine.LoopOptions{
		UserID:  cfg.UserID,
		Fetcher: reader,
		History: invalidator,
	}, log)
	defer loop.Close()

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error {
		if !push.Connected() {
			return errors.New("push channel disconnected")
		}
		return nil
	}, log)

	notices, err := loop.Subscribe(ctx)
	if err != nil {
		log.Fatal("subscribe notices", zap.Error(err))
	}
	go bot.Watch(ctx, notices, log)

	b := bot.New(loop, bot.Options{
		Modes:      cfg.Modes,
		Selections: selections,
		Amount:     amount,
	}, log)
	if err := b.Start(ctx); err != nil {
		log.Fatal("enter modes", zap.Error(err))
	}

	push.Connect(ctx)
	log.Info("player client started",
		zap.String("authority", cfg.AuthorityWSURL),
		zap.Int("modes", len(cfg.Modes)),
		zap.String("balance", initial.String()))

	b.Run(ctx)

	push.Disconnect()
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	_ = msrv.Shutdown(sctx)
	log.Info("player client stopped")
}
