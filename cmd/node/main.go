package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/params"
	"github.com/uhyunpark/secret-orderbook/pkg/api"
	"github.com/uhyunpark/secret-orderbook/pkg/app/book"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/auth"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/relay"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
	"github.com/uhyunpark/secret-orderbook/pkg/telemetry"
	"github.com/uhyunpark/secret-orderbook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("invalid_config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var store *storage.Store
	if cfg.Node.InMemory {
		store, err = storage.OpenMem()
	} else {
		store, err = storage.Open(cfg.Node.DBPath)
	}
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	metrics := telemetry.New()
	reg := cfg.Registration
	factory := common.HexToAddress(reg.FactoryAddress)

	// ---- View-key registry ----
	var registry auth.Registry
	var local *auth.LocalRegistry
	switch cfg.Registry.Mode {
	case "http":
		registry = auth.NewHTTPRegistry(cfg.Registry.URL, cfg.Registry.Timeout)
	default:
		local = auth.NewLocalRegistry(factory, reg.FactoryKey)
		registry = local
	}
	gate := auth.NewGateway(registry, logger)

	// ---- Outbound dispatch ----
	self := msg.ContractInfo{
		Address:  common.HexToAddress(cfg.Node.ContractAddress),
		CodeHash: cfg.Node.ContractCodeHash,
	}
	remote, closeRemote, err := newDispatcher(ctx, cfg.Dispatch, self.Address.Hex(), sugar)
	if err != nil {
		sugar.Fatalw("dispatcher_init_failed", "mode", cfg.Dispatch.Mode, "err", err)
	}
	defer closeRemote()

	router := relay.NewRouter(remote)
	if local != nil {
		// standalone: the factory lives in-process
		router.Register(factory, local)
	}
	async := relay.NewAsyncDispatcher(router, cfg.Dispatch.Buffer, sugar)
	async.OnError = metrics.DispatchFailed
	defer async.Close()

	node := book.NewNode(store, gate, book.NodeConfig{
		Self:       self,
		Dispatcher: async,
		Metrics:    metrics,
		Logger:     sugar,
	})

	ok, err := node.Initialized()
	if err != nil {
		sugar.Fatalw("store_read_failed", "err", err)
	}
	if !ok {
		resp, err := node.Instantiate(ctx, common.HexToAddress(cfg.Node.Deployer), msg.InitMsg{
			FactoryAddress: factory,
			FactoryHash:    reg.FactoryCodeHash,
			FactoryKey:     reg.FactoryKey,
			Token1Address:  common.HexToAddress(reg.Token1Address),
			Token1CodeHash: reg.Token1CodeHash,
			Token2Address:  common.HexToAddress(reg.Token2Address),
			Token2CodeHash: reg.Token2CodeHash,
		})
		if err != nil {
			sugar.Fatalw("init_failed", "err", err)
		}
		sugar.Infow("orderbook_initialized", "contract", self.Address.Hex(), "messages", len(resp.Messages))
	}

	sugar.Infow("node_starting",
		"contract", self.Address.Hex(),
		"registry_mode", cfg.Registry.Mode,
		"dispatch_mode", cfg.Dispatch.Mode,
		"in_memory", cfg.Node.InMemory)

	// ---- API Server ----
	opts := api.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		Metrics:        metrics,
		Logger:         sugar,
	}
	if local != nil {
		// participants create their view keys here
		opts.Factory = local
	}
	apiServer := api.NewServer(node, opts)
	if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

func newDispatcher(ctx context.Context, cfg params.Dispatch, source string, log *zap.SugaredLogger) (relay.Dispatcher, func(), error) {
	switch cfg.Mode {
	case "kafka":
		d, err := relay.NewKafkaDispatcher(relay.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Source:  source,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	case "pubsub":
		d, err := relay.NewPubSubDispatcher(ctx, relay.PubSubConfig{
			ListenAddr: cfg.P2PListen,
			Bootstrap:  cfg.P2PBootstrap,
			Topic:      cfg.P2PTopic,
			Source:     source,
			Logger:     log,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	default:
		return relay.NewLogDispatcher(log), func() {}, nil
	}
}
