package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/raid-guild/erc20-paymaster-go/clients"
)

// erc20JSON is the raw JSON ABI for the ERC-20 calls the paymaster makes.
const erc20JSON = `[
	{
		"type": "function",
		"name": "balanceOf",
		"inputs": [{"name": "owner", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "allowance",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "transferFrom",
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "transfer",
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable"
	}
]`

// DefaultReceiptTimeout bounds how long a transfer waits to be mined.
const DefaultReceiptTimeout = 60 * time.Second

// UnconfirmedTxError reports a transaction that was sent but whose receipt could not be read.
// The transfer may still have been mined.
type UnconfirmedTxError struct {
	Hash common.Hash
	Err  error
}

func (e *UnconfirmedTxError) Error() string {
	return e.Err.Error()
}

func (e *UnconfirmedTxError) Unwrap() error {
	return e.Err
}

// TxHash returns the hash of the unconfirmed transaction.
func (e *UnconfirmedTxError) TxHash() common.Hash {
	return e.Hash
}

// ERC20Config are the configuration parameters for the on-chain ledger.
type ERC20Config struct {
	ChainID        int64
	PrivateKey     string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// ERC20 is a token ledger backed by ERC-20 contracts, acting from the paymaster account.
type ERC20 struct {
	client         clients.EthClientInterface
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	address        common.Address
	abi            abi.ABI
	receiptTimeout time.Duration
	pollInterval   time.Duration

	// sendMu keeps pending nonces in order
	sendMu sync.Mutex
}

// NewERC20 creates an on-chain ledger signing with the paymaster private key.
func NewERC20(client clients.EthClientInterface, c ERC20Config) (*ERC20, error) {

	// Verify the client is set
	if client == nil {
		return nil, errors.New("ethereum client is not set")
	}

	// Get the paymaster private key
	if c.PrivateKey == "" {
		return nil, errors.New("PRIVATE_KEY environment variable is not set")
	}

	// Parse the paymaster private key
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse paymaster private key")
	}

	// Parse the contract ABI for the ERC-20 calls
	contractABI, err := abi.JSON(strings.NewReader(erc20JSON))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse contract ABI")
	}

	// Set the receipt polling defaults
	timeout := c.ReceiptTimeout
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &ERC20{
		client:         client,
		chainID:        big.NewInt(c.ChainID),
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		abi:            contractABI,
		receiptTimeout: timeout,
		pollInterval:   interval,
	}, nil
}

// Address returns the paymaster account the ledger acts from.
func (l *ERC20) Address() common.Address {
	return l.address
}

// BalanceOf returns the token balance of owner.
func (l *ERC20) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return l.callUint(ctx, token, "balanceOf", owner)
}

// Allowance returns the amount spender may move on behalf of owner.
func (l *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return l.callUint(ctx, token, "allowance", owner, spender)
}

// TransferFrom moves amount from owner to to using the paymaster allowance.
func (l *ERC20) TransferFrom(ctx context.Context, token, owner, to common.Address, amount *big.Int) (bool, error) {
	return l.send(ctx, token, "transferFrom", owner, to, amount)
}

// Transfer moves amount from the paymaster to to.
func (l *ERC20) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (bool, error) {
	return l.send(ctx, token, "transfer", to, amount)
}

// BalanceAt returns the native balance of account.
func (l *ERC20) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	balance, err := l.client.BalanceAt(ctx, account, blockNumber)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get native balance")
	}
	return balance, nil
}

// callUint runs a view call returning a single uint256.
func (l *ERC20) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {

	// Pack the function call data
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s call data", method)
	}

	// Call the token contract
	result, err := l.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", method)
	}

	// Unpack the uint256 result
	values, err := l.abi.Unpack(method, result)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s result", method)
	}
	if len(values) != 1 {
		return nil, errors.Errorf("unexpected %s result length %d", method, len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s result is not an integer", method)
	}

	return value, nil
}

// send signs and sends a state-changing token call, then waits for its receipt.
// A mined but reverted transaction reports false with a nil error.
func (l *ERC20) send(ctx context.Context, token common.Address, method string, args ...interface{}) (bool, error) {

	// Pack the function call data
	txData, err := l.abi.Pack(method, args...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to pack %s call data", method)
	}

	signedTx, err := l.signAndSend(ctx, token, txData)
	if err != nil {
		return false, err
	}

	// Wait for the transaction to be mined
	receipt, err := l.waitReceipt(ctx, signedTx.Hash())
	if err != nil {
		return false, &UnconfirmedTxError{Hash: signedTx.Hash(), Err: err}
	}

	return receipt.Status == ethtypes.ReceiptStatusSuccessful, nil
}

// signAndSend builds an EIP-1559 transaction to token and submits it.
func (l *ERC20) signAndSend(ctx context.Context, token common.Address, txData []byte) (*ethtypes.Transaction, error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	// Get the pending nonce for the paymaster account
	txNonce, err := l.client.PendingNonceAt(ctx, l.address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending nonce")
	}

	// Get the suggested gas tip cap
	gasTipCap, err := l.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas tip cap")
	}

	// Get the latest block header to get the base fee
	blockHeader, err := l.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get block header")
	}

	// Verify the block header base fee is not nil
	if blockHeader.BaseFee == nil {
		return nil, errors.New("block header missing base fee: network may not support EIP-1559")
	}

	// Determine the gas fee cap (2x base fee + gas tip cap)
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(blockHeader.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	// Get the estimated gas limit to set the gas amount
	gasLimit, err := l.client.EstimateGas(ctx, ethereum.CallMsg{
		From: l.address,
		To:   &token,
		Data: txData,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate gas")
	}

	// Add 20% buffer to the gas estimate for safety
	gasLimit = gasLimit * 120 / 100

	// Create the transaction using EIP-1559
	transaction := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     txNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &token,
		Value:     big.NewInt(0),
		Data:      txData,
	})

	// Sign the transaction with the paymaster private key
	signedTx, err := ethtypes.SignTx(transaction, ethtypes.NewLondonSigner(l.chainID), l.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	// Send the signed transaction
	if err := l.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	return signedTx, nil
}

// waitReceipt polls for the receipt of hash until it is mined or the timeout passes.
func (l *ERC20) waitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrapf(err, "failed to get receipt for %s", hash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "timed out waiting for receipt of %s", hash.Hex())
		case <-ticker.C:
		}
	}
}
