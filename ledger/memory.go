package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Memory is an in-process token ledger. Every mutating call acts as caller,
// which is normally the paymaster account.
type Memory struct {
	caller common.Address

	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
	native     map[common.Address]*big.Int
	rejecting  bool
}

// NewMemory creates an empty ledger acting as caller.
func NewMemory(caller common.Address) *Memory {
	return &Memory{
		caller:     caller,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
		native:     make(map[common.Address]*big.Int),
	}
}

// Mint credits amount of token to owner.
func (m *Memory) Mint(token, owner common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance := m.balance(token, owner)
	balance.Add(balance, amount)
}

// Approve sets the amount spender may move on behalf of owner.
func (m *Memory) Approve(token, owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.allowances[token] == nil {
		m.allowances[token] = make(map[allowanceKey]*big.Int)
	}
	m.allowances[token][allowanceKey{owner: owner, spender: spender}] = new(big.Int).Set(amount)
}

// SetNativeBalance sets the native-currency balance of account.
func (m *Memory) SetNativeBalance(account common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.native[account] = new(big.Int).Set(amount)
}

// RejectTransfers makes every following transfer report false until reset.
func (m *Memory) RejectTransfers(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rejecting = reject
}

// BalanceOf returns the token balance of owner.
func (m *Memory) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return new(big.Int).Set(m.balance(token, owner)), nil
}

// Allowance returns the amount spender may move on behalf of owner.
func (m *Memory) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if allowance, ok := m.allowances[token][allowanceKey{owner: owner, spender: spender}]; ok {
		return new(big.Int).Set(allowance), nil
	}
	return new(big.Int), nil
}

// TransferFrom moves amount from owner to to, spending the caller's allowance.
func (m *Memory) TransferFrom(_ context.Context, token, owner, to common.Address, amount *big.Int) (bool, error) {
	if amount.Sign() < 0 {
		return false, errors.Errorf("negative transfer amount %s", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rejecting {
		return false, nil
	}

	// Verify the caller may spend the amount
	key := allowanceKey{owner: owner, spender: m.caller}
	allowance, ok := m.allowances[token][key]
	if !ok || allowance.Cmp(amount) < 0 {
		return false, nil
	}

	if !m.move(token, owner, to, amount) {
		return false, nil
	}
	allowance.Sub(allowance, amount)

	return true, nil
}

// Transfer moves amount from the caller to to.
func (m *Memory) Transfer(_ context.Context, token, to common.Address, amount *big.Int) (bool, error) {
	if amount.Sign() < 0 {
		return false, errors.Errorf("negative transfer amount %s", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rejecting {
		return false, nil
	}

	return m.move(token, m.caller, to, amount), nil
}

// Debit moves amount from owner to to without an allowance. The paymaster only calls it
// after verifying an authorization for owner.
func (m *Memory) Debit(_ context.Context, token, owner, to common.Address, amount *big.Int) (bool, error) {
	if amount.Sign() < 0 {
		return false, errors.Errorf("negative debit amount %s", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rejecting {
		return false, nil
	}

	return m.move(token, owner, to, amount), nil
}

// BalanceAt returns the native balance of account.
func (m *Memory) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if balance, ok := m.native[account]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

// move transfers between two balances. Caller holds m.mu.
func (m *Memory) move(token, from, to common.Address, amount *big.Int) bool {
	source := m.balance(token, from)
	if source.Cmp(amount) < 0 {
		return false
	}
	source.Sub(source, amount)

	destination := m.balance(token, to)
	destination.Add(destination, amount)

	return true
}

// balance returns the mutable balance entry. Caller holds m.mu.
func (m *Memory) balance(token, owner common.Address) *big.Int {
	if m.balances[token] == nil {
		m.balances[token] = make(map[common.Address]*big.Int)
	}
	balance, ok := m.balances[token][owner]
	if !ok {
		balance = new(big.Int)
		m.balances[token][owner] = balance
	}
	return balance
}
