// clearingd runs the batch clearing engine behind a vsock or TCP listener for
// the host routing layer. In enclave deployments settlement reports are signed
// by the Nitro Security Module; elsewhere an ephemeral local key signs them.
package main

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/cloudx-io/batchclear/core"
	"github.com/cloudx-io/batchclear/ecies"
)

const (
	defaultListen = "vsock:5000"
	defaultSigner = "local"
)

func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}
	return intValue, nil
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func newSigner(mode string, log *zap.Logger) (ReportSigner, error) {
	switch mode {
	case "nsm":
		return newNitroSigner()
	case "local":
		signer, err := newLocalSigner()
		if err != nil {
			return nil, err
		}
		// Publish the verification key so reports from this process can be
		// checked off-host.
		der, err := x509.MarshalPKIXPublicKey(signer.Public())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal signing public key: %w", err)
		}
		log.Info("local report signer initialized",
			zap.String("public_key", base64.StdEncoding.EncodeToString(der)))
		return signer, nil
	default:
		return nil, fmt.Errorf("unsupported signer mode %q (want nsm or local)", mode)
	}
}

func run() error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	maxWorkers, err := getRequiredEnvInt("CLEARINGD_MAX_WORKERS")
	if err != nil {
		return fmt.Errorf("failed to get max workers config: %w", err)
	}
	listen := getEnvDefault("CLEARINGD_LISTEN", defaultListen)

	signer, err := newSigner(getEnvDefault("CLEARINGD_SIGNER", defaultSigner), log)
	if err != nil {
		return fmt.Errorf("failed to initialize report signer: %w", err)
	}

	house := core.NewAuctionHouse(ecies.Scheme{}, core.WithLogger(log.Named("core")))

	return NewServer(house, signer, log, listen, maxWorkers).Start()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clearingd: %v\n", err)
		os.Exit(1)
	}
}
