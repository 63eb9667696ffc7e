package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	handler "github.com/raid-guild/erc20-paymaster-go/api"
	"github.com/raid-guild/erc20-paymaster-go/clients"
	"github.com/raid-guild/erc20-paymaster-go/config"
	"github.com/raid-guild/erc20-paymaster-go/core"
	"github.com/raid-guild/erc20-paymaster-go/ledger"
	"github.com/raid-guild/erc20-paymaster-go/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v\n", err)
	}

	// Initialize logger first
	logger.InitLogger(logger.StageFromGinMode(os.Getenv("GIN_MODE")))
	defer logger.Sync()

	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}

	// Build the paymaster
	paymaster, err := buildPaymaster(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to build paymaster", zap.Error(err))
	}

	// Initialize router
	router := newRouter(handler.New(paymaster))

	// Configure server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.Port),
			zap.String("paymaster", paymaster.Address().Hex()),
			zap.String("verifier", paymaster.Verifier().Hex()),
			zap.String("scheme", string(paymaster.Scheme())),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

// buildPaymaster wires the ledger and fee policy selected by cfg into a paymaster.
func buildPaymaster(cfg config.Config) (*core.Paymaster, error) {
	var client clients.EthClientInterface
	if cfg.RPCURL != "" {
		var err error
		client, err = clients.NewEthClient(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial rpc: %v", err)
		}
	}

	// Get the token ledger
	var tokenLedger core.TokenLedger
	var nativeReader core.NativeBalanceReader
	paymasterAddress := cfg.PaymasterAddress
	switch cfg.LedgerBackend {
	case config.LedgerBackendERC20:
		erc20, err := ledger.NewERC20(client, ledger.ERC20Config{
			ChainID:        cfg.ChainID,
			PrivateKey:     cfg.PrivateKey,
			ReceiptTimeout: cfg.ReceiptTimeout,
		})
		if err != nil {
			return nil, err
		}
		// The paymaster is the account the private key signs for
		if paymasterAddress != (common.Address{}) && paymasterAddress != erc20.Address() {
			return nil, fmt.Errorf("PAYMASTER_ADDRESS %s does not match the private key address %s", paymasterAddress.Hex(), erc20.Address().Hex())
		}
		paymasterAddress = erc20.Address()
		tokenLedger, nativeReader = erc20, erc20
	case config.LedgerBackendMemory:
		// Balances start empty and there is no native funding to check
		tokenLedger = ledger.NewMemory(paymasterAddress)
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND %q is not supported", cfg.LedgerBackend)
	}

	// Get the exchange policy
	var policy core.ExchangePolicy
	switch cfg.FeePolicy {
	case config.FeePolicyFixedRate:
		policy = core.FixedRate{Numerator: cfg.FeeRateNumerator, Denominator: cfg.FeeRateDenominator}
	case config.FeePolicyFlat:
		policy = core.FlatFee{Amount: cfg.FlatFee}
	case config.FeePolicyOracle:
		oracle, err := clients.NewPriceOracle(client, cfg.PriceOracleAddress)
		if err != nil {
			return nil, err
		}
		policy = core.OracleRate{Source: oracle, Scale: cfg.PriceOracleScale}
	default:
		return nil, fmt.Errorf("FEE_POLICY %q is not supported", cfg.FeePolicy)
	}

	return core.New(core.Config{
		Verifier:       cfg.VerifierAddress,
		Paymaster:      paymasterAddress,
		ChainID:        cfg.ChainID,
		Scheme:         cfg.AuthScheme,
		DomainName:     cfg.AuthDomainName,
		DomainVersion:  cfg.AuthDomainVersion,
		ChargePolicy:   cfg.ChargePolicy,
		AcceptedTokens: cfg.AcceptedTokens,
	}, tokenLedger, core.NewQuoter(policy),
		core.WithLogger(logger.Log),
		core.WithNativeBalanceReader(nativeReader),
	)
}
