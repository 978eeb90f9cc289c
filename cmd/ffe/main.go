package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fatigue-fusion-engine/internal/biometric"
	"fatigue-fusion-engine/internal/bus"
	"fatigue-fusion-engine/internal/clock"
	"fatigue-fusion-engine/internal/config"
	"fatigue-fusion-engine/internal/evaluation"
	"fatigue-fusion-engine/internal/fusion"
	"fatigue-fusion-engine/internal/ingress"
	"fatigue-fusion-engine/internal/model"
	"fatigue-fusion-engine/internal/notify"
	"fatigue-fusion-engine/internal/repository"
	"fatigue-fusion-engine/internal/stage"
	"fatigue-fusion-engine/internal/state"
	"fatigue-fusion-engine/internal/vision"
	"fatigue-fusion-engine/pkg/logger"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "ffe")
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	defer log.Sync()

	db, err := sql.Open("postgres", dsn(cfg.Database))
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	redisClient := bus.NewClient(bus.RedisConnConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := bus.NewStore(redisClient)

	mqttPublisher, err := notify.NewPublisher(cfg.MQTT, log)
	if err != nil {
		log.Fatal("failed to connect to mqtt broker", zap.Error(err))
	}
	defer mqttPublisher.Disconnect()

	pilotRepo := repository.NewPilotProfileRepository(db, log)
	historyRepo := repository.NewStateHistoryRepository(db, log)

	oracle := clock.New(clock.Real{})
	visionExtract := vision.New(oracle, cfg.VisionMaxAgeS)
	bioExtract := biometric.New(oracle, biometric.MaxAgeS)

	fusionCore := fusion.New(fusion.Config{
		WindowSize:      cfg.WindowSize,
		TrendWindowSize: cfg.TrendWindowSize,
		EMAWeights:      cfg.EMAWeights,
	})

	classifier := stage.New(stage.Config{
		ThresholdMild:          cfg.ThresholdMild,
		ThresholdModerate:      cfg.ThresholdModerate,
		ThresholdSevere:        cfg.ThresholdSevere,
		Hysteresis:             cfg.Hysteresis,
		MinStageDurationS:      cfg.MinStageDurationS,
		MaxCriticalAlertRateS:  cfg.MaxCriticalAlertRateS,
		SensitivityMultipliers: cfg.SensitivityMultipliers,
	})

	manager := state.New(state.Config{
		HistoryLimit:           cfg.StateHistoryLimit,
		AlcoholOverrideWindowS: cfg.AlcoholOverrideWindowS,
	}, oracle, log)

	// Mirror every committed transition to the durable audit log. A
	// persistence failure here is logged, not propagated — the in-memory
	// Manager remains authoritative for the running process.
	manager.Subscribe(func(snap model.StateSnapshot) {
		if err := historyRepo.Append(snap); err != nil {
			log.Warn("failed to persist state history", zap.Error(err))
		}
	})

	ttl := time.Duration(cfg.RedisTTLS) * time.Second
	sink := bus.NewSink(store, mqttPublisher, ttl, log)

	loop := evaluation.New(oracle, visionExtract, bioExtract, fusionCore, classifier, manager, sink, log)
	loop.SetPilotPersister(pilotRepo)

	adapter := ingress.NewRedisAdapter(store, loop, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	go adapter.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	cancel()

	log.Info("fatigue fusion engine stopped")
}

func dsn(db config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.Database, db.SSLMode)
}
