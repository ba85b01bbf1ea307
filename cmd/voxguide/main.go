package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/voxguide"
	"github.com/snarg/voxguide/internal/api"
	"github.com/snarg/voxguide/internal/bridge"
	"github.com/snarg/voxguide/internal/catalog"
	"github.com/snarg/voxguide/internal/config"
	"github.com/snarg/voxguide/internal/events"
	"github.com/snarg/voxguide/internal/metrics"
	"github.com/snarg/voxguide/internal/mqttclient"
	"github.com/snarg/voxguide/internal/pipeline"
	"github.com/snarg/voxguide/internal/playback"
	"github.com/snarg/voxguide/internal/relay"
	"github.com/snarg/voxguide/internal/translate"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address (env HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (env LOG_LEVEL)")
	flag.StringVar(&overrides.CatalogFile, "catalog", "", "catalog override file (env CATALOG_FILE)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt", "", "MQTT broker URL (env MQTT_BROKER_URL)")
	flag.StringVar(&overrides.TranslateURL, "translate-url", "", "translation service base URL (env TRANSLATE_URL)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}
	log = log.With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("voxguide starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(cfg.EventRingSize)

	// Catalog
	catLog := log.With().Str("component", "catalog").Logger()
	store, err := catalog.NewStore(cfg.CatalogFile, catLog)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogFile).Msg("failed to load catalog")
	}
	store.OnReload(func(c *catalog.Catalog) {
		bus.Publish(events.Data{
			Type:    events.TypeCatalog,
			SubType: "reloaded",
			Payload: map[string]any{"reloads": store.Reloads(), "cities": len(c.Cities())},
		})
	})
	if err := store.Watch(); err != nil {
		catLog.Warn().Err(err).Msg("catalog watch disabled")
	}
	defer store.Close()

	// Translation
	provider := translate.NewMyMemoryClient(cfg.TranslateURL, cfg.TranslateEmail, cfg.TranslateTimeout)
	client := translate.NewClient(provider, cfg.SourceLanguage, log.With().Str("component", "translate").Logger())

	// Pipeline
	host := pipeline.NewHost(ctx, pipeline.StationConfig{
		SourceLang:        cfg.SourceLanguage,
		RecognitionLocale: cfg.RecognitionLocale,
		Voice: playback.Voice{
			Rate:   cfg.SpeechRate,
			Pitch:  cfg.SpeechPitch,
			Volume: cfg.SpeechVolume,
		},
		Debounce:  cfg.DebounceDelay,
		Client:    client,
		Catalog:   store,
		Publisher: bus,
		Log:       log.With().Str("component", "pipeline").Logger(),
	}, bus, cfg.DefaultTargets)
	defer host.Close()

	hub := bridge.NewHub(host, bus, cfg.CORSOrigins, log.With().Str("component", "bridge").Logger())
	defer hub.Close()

	prometheus.MustRegister(metrics.NewCollector(host))

	// Relay sinks
	relayLog := log.With().Str("component", "relay").Logger()
	var sinks []relay.Sink
	var broker api.BrokerStatus

	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		mqtt.SetCommandHandler(relay.NewCommands(host, relayLog).Handle)
		sinks = append(sinks, relay.NewMQTTSink(mqtt))
		broker = mqtt
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, relay.NewKafkaSink(relay.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka relay enabled")
	}

	relayDone := make(chan struct{})
	rl := relay.New(events.Filter{Types: cfg.RelayEventTypes}, relayLog, sinks...)
	if rl.Len() > 0 {
		go func() {
			defer close(relayDone)
			rl.Run(ctx, bus)
		}()
	} else {
		close(relayDone)
	}

	// HTTP Server
	srv := api.NewServer(api.ServerOptions{
		Config:     cfg,
		Host:       host,
		Bridge:     hub,
		Bus:        bus,
		Catalog:    store,
		MQTT:       broker,
		WebFiles:   voxguide.WebFiles(),
		Translator: provider.Name(),
		Version:    version,
		StartTime:  startTime,
		Log:        log.With().Str("component", "http").Logger(),
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
		stop()
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		relayLog.Warn().Msg("relay did not stop before shutdown deadline")
	}

	log.Info().Msg("voxguide stopped")
}
