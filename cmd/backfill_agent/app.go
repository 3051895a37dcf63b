package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/backfill"
	"github.com/jonathan/shift-backfill/internal/comms"
	"github.com/jonathan/shift-backfill/internal/config"
	"github.com/jonathan/shift-backfill/internal/db"
	"github.com/jonathan/shift-backfill/internal/demo"
	"github.com/jonathan/shift-backfill/internal/llm"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/memstore"
	"github.com/jonathan/shift-backfill/internal/metrics"
	"github.com/jonathan/shift-backfill/internal/outreach"
	"github.com/jonathan/shift-backfill/internal/ranking"
	"github.com/jonathan/shift-backfill/internal/server"
	"github.com/jonathan/shift-backfill/internal/signals"
)

// appStore is what the commands need from a datastore.
type appStore interface {
	backfill.Store
	backfill.ShiftCanceller
	server.Store
}

var (
	_ appStore = (*db.DB)(nil)
	_ appStore = (*memstore.Store)(nil)
)

// app holds the wired components for one process.
type app struct {
	cfg        *config.Config
	log        logging.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	store      appStore
	db         *db.DB
	redis      *redis.Client
	llm        llm.Client
	oracle     *ranking.Oracle
	audit      *audit.Writer
	controller *backfill.Controller
	orch       *backfill.Orchestrator
	canceller  *backfill.Canceller
	bus        *signals.Bus
	emitter    signals.Emitter
}

// newApp loads configuration and wires every component. Close releases them.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if memoryMode {
		store := memstore.New()
		store.Seed(demo.Data(time.Now().UTC()))
		a.store = store
		a.log.Info("using in-memory store with demo data")
		return nil
	}
	if a.cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required (or pass --memory)")
	}
	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.db = database
	a.store = database
	return nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	a.audit = audit.NewWriter(a.store, a.log, a.metrics)

	if cfg.OracleConfigured() {
		provider, err := llm.ParseProvider(cfg.LLM.Provider)
		if err != nil {
			return err
		}
		llmCfg := llm.DefaultConfig(provider)
		if cfg.LLM.Model != "" {
			llmCfg = llmCfg.WithModel(llm.TierStandard, cfg.LLM.Model)
		}
		client, err := llm.NewClient(ctx, llmCfg, cfg.LLM.APIKey)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.llm = client
		a.oracle = ranking.NewOracle(client)
		a.log.Info("ranking oracle enabled", logging.String("provider", string(provider)))
	}

	var sms comms.SMSSender
	if cfg.SMSConfigured() {
		twilio, err := comms.NewTwilioSMS(comms.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
		})
		if err != nil {
			return err
		}
		sms = twilio
	} else {
		sms = comms.NewSimulatedSMS(a.log)
		a.log.Warn("twilio not configured; outbound texts are simulated")
	}

	var voice comms.VoiceCaller
	if cfg.VoiceConfigured() {
		caller, err := comms.NewVapiCaller(comms.VapiConfig{
			APIKey:        cfg.Vapi.APIKey,
			PhoneNumberID: cfg.Vapi.PhoneNumberID,
			AssistantID:   cfg.Vapi.AssistantID,
			BaseURL:       cfg.Vapi.BaseURL,
		}, nil)
		if err != nil {
			return err
		}
		voice = caller
	}

	a.controller = backfill.NewController(a.store, cfg.Backfill.Deadline, a.audit, a.log, a.metrics)
	a.orch = backfill.NewOrchestrator(backfill.Deps{
		Store:       a.store,
		Controller:  a.controller,
		Ranker:      ranking.NewEngine(a.oracle, a.audit, a.log, a.metrics),
		Dispatcher:  outreach.NewDispatcher(a.store, outreach.SelectChannel(voice, sms), a.audit, a.log, a.metrics),
		Escalator:   backfill.NewEscalator(a.store, a.controller, sms, cfg.ManagerPhone, a.audit, a.log),
		Audit:       a.audit,
		Log:         a.log,
		RadiusMiles: cfg.Backfill.RadiusMiles,
	})

	if cfg.BusConfigured() {
		client, err := signals.Connect(ctx, signals.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.redis = client
		a.bus, err = signals.NewBus(client, signals.BusConfig{ConsumerID: consumerID()}, a.log, a.metrics)
		if err != nil {
			return err
		}
		a.emitter = a.bus
	} else {
		a.emitter = signals.Inline{Handler: a.orch}
	}
	a.canceller = backfill.NewCanceller(a.store, a.emitter, a.audit)
	return nil
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "backfill"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Close stops timers and releases connections.
func (a *app) Close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
