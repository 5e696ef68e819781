// Package main is the entry point of the EscrowLane service.
// It initializes the Kratos application with the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"EscrowLane/internal/biz"
	"EscrowLane/internal/conf"
	"EscrowLane/pkg/crypto"
	zapLogger "EscrowLane/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name string
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, hs *http.Server, monitor *biz.ThresholdMonitor, events biz.EventBus) *kratos.App {
	cronJob := StartWindowSnapshotCron(monitor, events, logger)

	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
		kratos.BeforeStop(func(ctx context.Context) error {
			if cronJob != nil {
				cronJob.Stop()
			}
			return nil
		}),
	)
}

// newCryptoService creates the AES crypto service from config. Signer
// authentication cannot run without a key, so a missing one fails startup.
func newCryptoService(auth *conf.Auth) (*crypto.AESCrypto, error) {
	if auth == nil || auth.Encryption == nil || auth.Encryption.Key == "" {
		return nil, fmt.Errorf("auth.encryption.key is not configured")
	}
	return crypto.NewAESCrypto([]byte(auth.Encryption.Key))
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable and CLI flag support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	// Add context fields to logger
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	// Log startup configuration
	log.NewHelper(logger).Infow(
		"msg", "EscrowLane service starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.output_file", bc.Log.OutputFile,
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Auth, bc.Thresholds, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
