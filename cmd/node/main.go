package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/common"
	"github.com/meta-node-blockchain/benor/pkg/config"
	"github.com/meta-node-blockchain/benor/pkg/journal"
	"github.com/meta-node-blockchain/benor/pkg/logger"
	"github.com/meta-node-blockchain/benor/pkg/loggerfile"
	"github.com/meta-node-blockchain/benor/pkg/network"
	"github.com/meta-node-blockchain/benor/pkg/node"
	"github.com/meta-node-blockchain/benor/pkg/storage"
)

func main() {
	configFile := flag.String("config", "config.json", "Configuration file name")
	logLevel := flag.String("log-level", "info", "trace, debug, info, warn, error or none")
	autoStart := flag.Bool("start", false, "Start consensus as soon as every peer answers")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Error parsing log level: %v", err)
	}
	logger.SetFlag(level)

	cfg, err := config.LoadConfigFromFile(*configFile)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	engineCfg, err := cfg.Engine()
	if err != nil {
		log.Fatalf("Error building engine config: %v", err)
	}
	codec, err := binaryagreement.CodecByName(cfg.Codec)
	if err != nil {
		log.Fatalf("Error selecting codec: %v", err)
	}

	var opts []node.Option
	var traceDB storage.Storage
	if cfg.Trace.Type != "" {
		traceDB, err = storage.LoadDb(cfg.Trace.Path, cfg.Trace.Type)
		if err != nil {
			log.Fatalf("Error opening trace store: %v", err)
		}
		j := journal.New(traceDB, "")
		logger.Info("Node %d journaling run %s to %s", cfg.ID, j.RunID(), cfg.Trace.Type)
		opts = append(opts, node.WithObserver(j))
	}
	if cfg.LogDir != "" {
		loggerfile.SetGlobalLogDir(cfg.LogDir)
		fl, err := loggerfile.NewFileLogger(loggerfile.NodeLogFile(cfg.ID))
		if err != nil {
			log.Fatalf("Error opening node log: %v", err)
		}
		opts = append(opts, node.WithTraceLog(fl))
	}

	peers := cfg.PeerAddresses()
	n, err := node.New(engineCfg, network.NewHTTPChannel(peers, codec, 0), opts...)
	if err != nil {
		log.Fatalf("Error creating node: %v", err)
	}

	limits := map[string]int{}
	if cfg.MessageRateLimit > 0 {
		limits[common.CmdMessage] = cfg.MessageRateLimit
	}
	srv := network.NewServer(cfg.ConnectionAddress, network.NewHandler(n.CommandHandlers(), limits))
	if err := srv.Listen(); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
	logger.Info("Node %d (%s) serving on %s with %d peers", cfg.ID, n.HealthCheck(), srv.Addr(), len(peers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := network.WaitForPeers(ctx, peers, 0); err != nil {
			logger.Warn("Node %d stopped waiting for peers: %v", cfg.ID, err)
			return
		}
		n.SetReady(true)
		logger.Info("Node %d: all %d peers reachable", cfg.ID, len(peers))
		if !*autoStart {
			return
		}
		if err := n.Start(); err != nil {
			logger.Warn("Node %d did not start: %v", cfg.ID, err)
		}
	}()

	<-ctx.Done()
	logger.Info("Node %d shutting down", cfg.ID)

	n.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Node %d: server shutdown: %v", cfg.ID, err)
	}
	if traceDB != nil {
		if err := traceDB.Close(); err != nil {
			logger.Error("Node %d: closing trace store: %v", cfg.ID, err)
		}
	}
}
