package core

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/raid-guild/erc20-paymaster-go/types"
)

// Verification is proof that the verifier signature was checked in the current request.
type Verification struct {
	Message common.Hash
	Signer  common.Address
}

// ChargeRequest describes one upfront debit.
type ChargeRequest struct {
	Payer            common.Address
	Token            common.Address
	Mode             types.PaymentMode
	MinimalAllowance *big.Int
	Amount           *big.Int
	Verification     *Verification
}

// Charge is a debit that has been written to the ledger.
type Charge struct {
	ID        string
	Payer     common.Address
	Token     common.Address
	Mode      types.PaymentMode
	Amount    *big.Int
	CreatedAt time.Time
}

// Gate enforces the payment mode preconditions and moves tokens between payer and paymaster.
type Gate struct {
	ledger    TokenLedger
	paymaster common.Address
	now       func() time.Time

	mu       sync.Mutex
	refunded map[string]struct{}
}

// NewGate creates a payment gate charging into the paymaster account.
func NewGate(ledger TokenLedger, paymaster common.Address) *Gate {
	return &Gate{
		ledger:    ledger,
		paymaster: paymaster,
		now:       time.Now,
		refunded:  make(map[string]struct{}),
	}
}

// Charge checks the mode precondition and debits req.Amount from the payer.
// A *RejectionError means nothing was moved.
func (g *Gate) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {

	// Verify the amount is a non-negative token amount
	if req.Amount == nil || req.Amount.Sign() < 0 {
		return nil, reject(types.RejectionReasonInvalidRequest, "charge amount must be non-negative")
	}

	// Check the payment mode precondition
	var err error
	switch req.Mode {
	case types.PaymentModeApprovalBased:
		err = g.checkApproval(ctx, req)
	case types.PaymentModeGeneral:
		err = g.checkGeneral(ctx, req)
	default:
		err = reject(types.RejectionReasonInvalidRequest, "unknown payment mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	// Move the tokens to the paymaster
	if req.Amount.Sign() > 0 {
		ok, err := g.debit(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to debit payer: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("failed to debit payer: %w", ErrTransferFailed)
		}
	}

	return &Charge{
		ID:        uuid.New().String(),
		Payer:     req.Payer,
		Token:     req.Token,
		Mode:      req.Mode,
		Amount:    new(big.Int).Set(req.Amount),
		CreatedAt: g.now(),
	}, nil
}

// Refund returns amount of an over-collected charge to the payer. It may run once per charge.
func (g *Gate) Refund(ctx context.Context, charge *Charge, amount *big.Int) error {

	// Reserve the refund slot for this charge
	g.mu.Lock()
	if _, done := g.refunded[charge.ID]; done {
		g.mu.Unlock()
		return &InvariantError{ChargeID: charge.ID, Err: ErrDoubleRefund}
	}
	g.refunded[charge.ID] = struct{}{}
	g.mu.Unlock()

	// Verify the refund does not exceed what was collected
	if amount == nil || amount.Sign() < 0 || amount.Cmp(charge.Amount) > 0 {
		return &InvariantError{ChargeID: charge.ID, Err: fmt.Errorf("refund %v outside [0, %s]", amount, charge.Amount)}
	}

	// Nothing to return
	if amount.Sign() == 0 {
		return nil
	}

	// Transfer the over-collected amount back to the payer
	ok, err := g.ledger.Transfer(ctx, charge.Token, charge.Payer, amount)
	if err == nil && !ok {
		err = ErrTransferFailed
	}
	if err != nil {
		// Release the slot so the settlement can be retried by the caller
		g.mu.Lock()
		delete(g.refunded, charge.ID)
		g.mu.Unlock()
		return fmt.Errorf("failed to refund payer: %w", err)
	}

	return nil
}

// checkApproval is the ApprovalBased precondition: enough allowance and enough balance.
func (g *Gate) checkApproval(ctx context.Context, req ChargeRequest) error {

	// Required allowance is the greater of the minimal allowance and the charge
	required := new(big.Int).Set(req.Amount)
	if req.MinimalAllowance != nil && req.MinimalAllowance.Cmp(required) > 0 {
		required.Set(req.MinimalAllowance)
	}

	// Get the allowance granted to the paymaster
	allowance, err := g.ledger.Allowance(ctx, req.Token, req.Payer, g.paymaster)
	if err != nil {
		return fmt.Errorf("failed to get allowance: %w", err)
	}

	// Verify the allowance covers the requirement
	if allowance.Cmp(required) < 0 {
		return reject(types.RejectionReasonInsufficientAllowance, "allowance %s is below required %s", allowance, required)
	}

	return g.checkBalance(ctx, req)
}

// checkGeneral is the General precondition: a verification from this request and enough balance.
func (g *Gate) checkGeneral(ctx context.Context, req ChargeRequest) error {

	// Verify the signature was checked before the debit
	v := req.Verification
	if v == nil || v.Message == (common.Hash{}) || v.Signer == (common.Address{}) {
		return reject(types.RejectionReasonUnauthorized, "general mode requires a verified authorization")
	}

	return g.checkBalance(ctx, req)
}

// checkBalance verifies the payer holds at least the charge amount.
func (g *Gate) checkBalance(ctx context.Context, req ChargeRequest) error {

	// Get the token balance of the payer
	balance, err := g.ledger.BalanceOf(ctx, req.Token, req.Payer)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	// Verify the payer has enough funds
	if balance.Cmp(req.Amount) < 0 {
		return reject(types.RejectionReasonInsufficientBalance, "balance %s is below charge %s", balance, req.Amount)
	}

	return nil
}

// debit moves the charge amount from the payer to the paymaster.
func (g *Gate) debit(ctx context.Context, req ChargeRequest) (bool, error) {
	if req.Mode == types.PaymentModeGeneral {
		if debiter, ok := g.ledger.(DirectDebiter); ok {
			return debiter.Debit(ctx, req.Token, req.Payer, g.paymaster, req.Amount)
		}
	}
	return g.ledger.TransferFrom(ctx, req.Token, req.Payer, g.paymaster, req.Amount)
}
