package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"depthview/internal/book"
	"depthview/internal/config"
	"depthview/internal/feed/hyperliquid"
	"depthview/internal/logger"
	"depthview/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to yaml config file")
		symbol     = flag.String("symbol", "", "Override default symbol")
		listen     = flag.String("listen", "", "Override ui server listen address")
	)
	flag.Parse()

	// Optional; the defaults run without any environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(config.LoggingConfig{}).Fatalf("config: %v", err)
	}
	if *symbol != "" {
		cfg.Book.Symbol = *symbol
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		logger.New(cfg.Logging).Fatalf("config: %v", err)
	}

	log := logger.New(cfg.Logging)
	log.WithField("network", cfg.Network).Info("starting depthview")

	network := hyperliquid.Network(cfg.Network)
	norm := hyperliquid.NewNormalizer(cfg.Symbols)

	client := hyperliquid.NewClient(norm, hyperliquid.Options{
		Network:      network,
		Logger:       log,
		ReconnectMin: cfg.Stream.ReconnectMin,
		ReconnectMax: cfg.Stream.ReconnectMax,
	})

	engine := book.NewEngine(client, book.Options{
		Symbol:   cfg.Book.Symbol,
		SigFigs:  cfg.Book.SigFigs,
		Currency: book.Currency(cfg.Book.Currency),
		Logger:   log,
	})
	engine.Start()
	client.Connect()

	if cfg.Stream.PrimeViaRest {
		go primeView(engine, network, norm, cfg, log)
	}

	ui := server.New(engine, cfg, log)
	go func() {
		if err := ui.Start(); err != nil {
			log.WithError(err).Fatal("ui server failed")
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ui.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("ui shutdown")
	}
	engine.Stop()
	client.Disconnect()
	log.Info("goodbye")
}

// primeView fetches one REST snapshot so the ladder has levels before the
// first websocket frame. Failure is logged and ignored.
func primeView(engine *book.Engine, network hyperliquid.Network, norm *hyperliquid.Normalizer, cfg config.Config, log *logrus.Logger) {
	info := hyperliquid.NewInfoClient(network, norm)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sigFigs := cfg.Book.SigFigs
	snap, err := info.L2Book(ctx, cfg.Book.Symbol, &sigFigs)
	if err != nil {
		log.Warnf("snapshot priming failed: %v", err)
		return
	}
	engine.ApplySnapshot(snap)
}
