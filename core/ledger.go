package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

//go:generate mockgen -source=ledger.go -destination=mocks/ledger.go -package=mocks

// TokenLedger is the external fungible-token ledger, seen from the paymaster's account.
type TokenLedger interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, token, owner, to common.Address, amount *big.Int) (bool, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (bool, error)
}

// DirectDebiter is implemented by ledgers that accept a verifier-authorized debit without allowance.
type DirectDebiter interface {
	Debit(ctx context.Context, token, owner, to common.Address, amount *big.Int) (bool, error)
}

// NativeBalanceReader reads native-currency balances.
type NativeBalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}
