package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raid-guild/erc20-paymaster-go/types"
)

// FeePolicy selects how gas cost is converted to token units.
type FeePolicy string

const (
	FeePolicyFixedRate FeePolicy = "fixed_rate"
	FeePolicyFlat      FeePolicy = "flat"
	FeePolicyOracle    FeePolicy = "oracle"
)

// LedgerBackend selects the token ledger implementation.
type LedgerBackend string

const (
	LedgerBackendERC20  LedgerBackend = "erc20"
	LedgerBackendMemory LedgerBackend = "memory"
)

// Config is the paymaster daemon configuration.
type Config struct {
	PaymasterAddress common.Address
	VerifierAddress  common.Address
	ChainID          int64

	AuthScheme        types.AuthScheme
	AuthDomainName    string
	AuthDomainVersion string
	ChargePolicy      types.ChargePolicy

	FeePolicy          FeePolicy
	FeeRateNumerator   *big.Int
	FeeRateDenominator *big.Int
	FlatFee            *big.Int
	PriceOracleAddress common.Address
	PriceOracleScale   *big.Int

	AcceptedTokens []common.Address

	LedgerBackend  LedgerBackend
	RPCURL         string
	PrivateKey     string
	ReceiptTimeout time.Duration

	Port string
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	c := Config{
		AuthDomainName:    getEnvWithDefault("AUTH_DOMAIN_NAME", "ERC20Paymaster"),
		AuthDomainVersion: getEnvWithDefault("AUTH_DOMAIN_VERSION", "1"),
		AuthScheme:        types.AuthScheme(getEnvWithDefault("AUTH_SCHEME", string(types.AuthSchemeEIP712))),
		ChargePolicy:      types.ChargePolicy(getEnvWithDefault("CHARGE_POLICY", string(types.ChargePolicyGasLimit))),
		FeePolicy:         FeePolicy(getEnvWithDefault("FEE_POLICY", string(FeePolicyFixedRate))),
		LedgerBackend:     LedgerBackend(getEnvWithDefault("LEDGER_BACKEND", string(LedgerBackendERC20))),
		RPCURL:            os.Getenv("RPC_URL"),
		PrivateKey:        os.Getenv("PRIVATE_KEY"),
		Port:              getEnvWithDefault("PORT", "8000"),
	}

	var err error

	// Get the verifier address
	if c.VerifierAddress, err = requireAddress("VERIFIER_ADDRESS"); err != nil {
		return Config{}, err
	}

	// Get the chain ID
	if c.ChainID, err = parseInt("CHAIN_ID", "0"); err != nil {
		return Config{}, err
	}

	// Verify the authorization scheme
	switch c.AuthScheme {
	case types.AuthSchemeEIP712, types.AuthSchemeTokenOnly:
	default:
		return Config{}, fmt.Errorf("AUTH_SCHEME %q is not supported", c.AuthScheme)
	}
	// Typed data and signed transactions are both bound to a chain
	if (c.AuthScheme == types.AuthSchemeEIP712 || c.LedgerBackend == LedgerBackendERC20) && c.ChainID <= 0 {
		return Config{}, fmt.Errorf("CHAIN_ID environment variable is not set")
	}

	// Verify the charge policy
	switch c.ChargePolicy {
	case types.ChargePolicyGasLimit, types.ChargePolicyMinimalAllowance:
	default:
		return Config{}, fmt.Errorf("CHARGE_POLICY %q is not supported", c.ChargePolicy)
	}

	// Get the fee policy parameters
	switch c.FeePolicy {
	case FeePolicyFixedRate:
		if c.FeeRateNumerator, err = parseBig("FEE_RATE_NUMERATOR", "1"); err != nil {
			return Config{}, err
		}
		if c.FeeRateDenominator, err = parseBig("FEE_RATE_DENOMINATOR", "1"); err != nil {
			return Config{}, err
		}
		if c.FeeRateDenominator.Sign() <= 0 {
			return Config{}, fmt.Errorf("FEE_RATE_DENOMINATOR must be positive")
		}
	case FeePolicyFlat:
		if c.FlatFee, err = parseBig("FLAT_FEE", ""); err != nil {
			return Config{}, err
		}
	case FeePolicyOracle:
		if c.PriceOracleAddress, err = requireAddress("PRICE_ORACLE_ADDRESS"); err != nil {
			return Config{}, err
		}
		if c.PriceOracleScale, err = parseBig("PRICE_ORACLE_SCALE", "1000000000000000000"); err != nil {
			return Config{}, err
		}
		if c.PriceOracleScale.Sign() <= 0 {
			return Config{}, fmt.Errorf("PRICE_ORACLE_SCALE must be positive")
		}
	default:
		return Config{}, fmt.Errorf("FEE_POLICY %q is not supported", c.FeePolicy)
	}

	// Get the accepted tokens
	if c.AcceptedTokens, err = parseAddressList("ACCEPTED_TOKENS"); err != nil {
		return Config{}, err
	}

	// Get the ledger backend parameters
	switch c.LedgerBackend {
	case LedgerBackendERC20:
		if c.RPCURL == "" {
			return Config{}, fmt.Errorf("RPC_URL environment variable is not set")
		}
		if c.PrivateKey == "" {
			return Config{}, fmt.Errorf("PRIVATE_KEY environment variable is not set")
		}
		timeout, err := parseInt("RECEIPT_TIMEOUT_SECONDS", "60")
		if err != nil {
			return Config{}, err
		}
		c.ReceiptTimeout = time.Duration(timeout) * time.Second
	case LedgerBackendMemory:
		// The memory ledger has no key to derive the paymaster from
		if os.Getenv("PAYMASTER_ADDRESS") == "" {
			return Config{}, fmt.Errorf("PAYMASTER_ADDRESS environment variable is not set")
		}
	default:
		return Config{}, fmt.Errorf("LEDGER_BACKEND %q is not supported", c.LedgerBackend)
	}

	// The oracle is read over RPC
	if c.FeePolicy == FeePolicyOracle && c.RPCURL == "" {
		return Config{}, fmt.Errorf("RPC_URL environment variable is not set")
	}

	// Get the paymaster address, otherwise it is derived from the private key
	if os.Getenv("PAYMASTER_ADDRESS") != "" {
		if c.PaymasterAddress, err = requireAddress("PAYMASTER_ADDRESS"); err != nil {
			return Config{}, err
		}
	}

	return c, nil
}

// getEnvWithDefault returns environment variable value or default
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func requireAddress(key string) (common.Address, error) {
	value := os.Getenv(key)
	if value == "" {
		return common.Address{}, fmt.Errorf("%s environment variable is not set", key)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s %q is not a valid address", key, value)
	}
	return common.HexToAddress(value), nil
}

func parseAddressList(key string) ([]common.Address, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}

	var addresses []common.Address
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !common.IsHexAddress(item) {
			return nil, fmt.Errorf("%s entry %q is not a valid address", key, item)
		}
		addresses = append(addresses, common.HexToAddress(item))
	}
	return addresses, nil
}

func parseInt(key, defaultValue string) (int64, error) {
	value := getEnvWithDefault(key, defaultValue)
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", key, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be non-negative", key)
	}
	return n, nil
}

func parseBig(key, defaultValue string) (*big.Int, error) {
	value := getEnvWithDefault(key, defaultValue)
	if value == "" {
		return nil, fmt.Errorf("%s environment variable is not set", key)
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s %q is not an integer", key, value)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%s must be non-negative", key)
	}
	return n, nil
}
