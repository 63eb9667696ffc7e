package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/raid-guild/erc20-paymaster-go/types"
)

// Config is the immutable paymaster configuration.
type Config struct {
	// Verifier is the only identity whose signatures authorize sponsorships.
	Verifier common.Address
	// Paymaster is the account that receives charges and pays native gas.
	Paymaster      common.Address
	ChainID        int64
	Scheme         types.AuthScheme
	DomainName     string
	DomainVersion  string
	ChargePolicy   types.ChargePolicy
	AcceptedTokens []common.Address
}

// SponsorshipRequest is one attempt to have the paymaster sponsor a transaction.
type SponsorshipRequest struct {
	Payer            common.Address
	Token            common.Address
	Mode             types.PaymentMode
	MinimalAllowance *big.Int
	Authorization    []byte
	GasPrice         *big.Int
	GasLimit         uint64
	Pubdata          Pubdata
	Expiration       int64
}

// SponsoredCall runs the sponsored transaction body and reports the gas it consumed.
// A non-nil error means the call reverted.
type SponsoredCall func(ctx context.Context) (gasUsed uint64, err error)

// ChargeSnapshot is a read-only view of a charge and its settlement.
type ChargeSnapshot struct {
	Charge   Charge
	State    types.State
	Fee      *big.Int
	Refund   *big.Int
	Reverted bool
}

// Option configures optional paymaster collaborators.
type Option func(*Paymaster)

// WithLogger sets the paymaster logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Paymaster) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock sets the time source used for authorization expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Paymaster) {
		if now != nil {
			p.now = now
		}
	}
}

// WithNativeBalanceReader enables the paymaster native funding check.
func WithNativeBalanceReader(reader NativeBalanceReader) Option {
	return func(p *Paymaster) {
		p.native = reader
	}
}

// transitions lists the legal state machine edges.
var transitions = map[types.State][]types.State{
	types.StateIdle:       {types.StateValidating},
	types.StateValidating: {types.StateRejected, types.StateCharged},
	types.StateCharged:    {types.StateExecuting},
	types.StateExecuting:  {types.StateSettled},
}

type chargeRecord struct {
	id       string
	request  SponsorshipRequest
	charge   *Charge
	state    types.State
	settling bool
	fee      *big.Int
	refund   *big.Int
	reverted bool
}

// Paymaster validates sponsorship requests, charges payers and settles charges.
type Paymaster struct {
	cfg      Config
	accepted map[common.Address]struct{}
	gate     *Gate
	quoter   *Quoter
	native   NativeBalanceReader
	log      *zap.Logger
	now      func() time.Time
	entries  *entryLocks

	mu              sync.Mutex
	charges         map[string]*chargeRecord
	lastMessageHash common.Hash
	lastSignature   []byte
}

// New configures a paymaster. The verifier identity cannot be changed afterwards.
func New(cfg Config, ledger TokenLedger, quoter *Quoter, opts ...Option) (*Paymaster, error) {

	// Verify the identities are set
	if cfg.Verifier == (common.Address{}) {
		return nil, ErrMissingVerifier
	}
	if cfg.Paymaster == (common.Address{}) {
		return nil, ErrMissingPaymaster
	}

	// Verify the collaborators are set
	if ledger == nil {
		return nil, errors.New("token ledger is not set")
	}
	if quoter == nil {
		return nil, errors.New("fee quoter is not set")
	}

	// Default to the hardened authorization scheme
	switch cfg.Scheme {
	case "":
		cfg.Scheme = types.AuthSchemeEIP712
	case types.AuthSchemeEIP712, types.AuthSchemeTokenOnly:
	default:
		return nil, fmt.Errorf("unsupported authorization scheme %q", cfg.Scheme)
	}

	// Default to charging the worst case gas cost
	switch cfg.ChargePolicy {
	case "":
		cfg.ChargePolicy = types.ChargePolicyGasLimit
	case types.ChargePolicyGasLimit, types.ChargePolicyMinimalAllowance:
	default:
		return nil, fmt.Errorf("unsupported charge policy %q", cfg.ChargePolicy)
	}

	// Copy the accepted tokens into a lookup set
	var accepted map[common.Address]struct{}
	if len(cfg.AcceptedTokens) > 0 {
		accepted = make(map[common.Address]struct{}, len(cfg.AcceptedTokens))
		for _, token := range cfg.AcceptedTokens {
			accepted[token] = struct{}{}
		}
		cfg.AcceptedTokens = append([]common.Address(nil), cfg.AcceptedTokens...)
	}

	p := &Paymaster{
		cfg:      cfg,
		accepted: accepted,
		gate:     NewGate(ledger, cfg.Paymaster),
		quoter:   quoter,
		log:      zap.NewNop(),
		now:      time.Now,
		entries:  newEntryLocks(),
		charges:  make(map[string]*chargeRecord),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.gate.now = p.now

	return p, nil
}

// Verifier returns the configured verifier identity.
func (p *Paymaster) Verifier() common.Address {
	return p.cfg.Verifier
}

// Address returns the paymaster account.
func (p *Paymaster) Address() common.Address {
	return p.cfg.Paymaster
}

// Scheme returns the authorization message scheme.
func (p *Paymaster) Scheme() types.AuthScheme {
	return p.cfg.Scheme
}

// Domain returns the EIP-712 domain authorizations are signed under.
func (p *Paymaster) Domain() Domain {
	return Domain{
		Name:      p.cfg.DomainName,
		Version:   p.cfg.DomainVersion,
		ChainID:   p.cfg.ChainID,
		Paymaster: p.cfg.Paymaster,
	}
}

// LastMessageHash returns the most recently derived authorization message. Audit only.
func (p *Paymaster) LastMessageHash() common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastMessageHash
}

// LastSignature returns the most recently presented authorization bytes. Audit only.
func (p *Paymaster) LastSignature() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.lastSignature...)
}

// Lookup returns a snapshot of a charge.
func (p *Paymaster) Lookup(chargeID string) (ChargeSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.charges[chargeID]
	if !ok {
		return ChargeSnapshot{}, false
	}

	snapshot := ChargeSnapshot{
		Charge:   *rec.charge,
		State:    rec.state,
		Reverted: rec.reverted,
	}
	snapshot.Charge.Amount = new(big.Int).Set(rec.charge.Amount)
	if rec.fee != nil {
		snapshot.Fee = new(big.Int).Set(rec.fee)
	}
	if rec.refund != nil {
		snapshot.Refund = new(big.Int).Set(rec.refund)
	}
	return snapshot, true
}

// ValidateAndCharge verifies the request authorization and takes the pessimistic charge.
// Rejections are reported in the response with a nil error and leave every balance unchanged.
func (p *Paymaster) ValidateAndCharge(ctx context.Context, req SponsorshipRequest) (types.ValidationResponse, error) {
	rec := &chargeRecord{request: req, state: types.StateIdle}
	if err := p.advance(rec, types.StateValidating); err != nil {
		return types.ValidationResponse{}, err
	}

	log := p.log.With(
		zap.Stringer("payer", req.Payer),
		zap.Stringer("token", req.Token),
		zap.String("mode", string(req.Mode)),
	)

	charge, message, err := p.validateAndCharge(ctx, req)
	if err != nil {
		_ = p.advance(rec, types.StateRejected)

		// Check if the failure is a rejection
		if reason, ok := ReasonOf(err); ok {
			log.Info("sponsorship rejected", zap.String("reason", string(reason)), zap.Error(err))
			response := types.ValidationResponse{
				Accepted:        false,
				RejectionReason: reason,
			}
			if message != (common.Hash{}) {
				response.MessageHash = message.Hex()
			}
			return response, nil
		}

		log.Error("sponsorship validation failed", append(pendingFields(err), zap.Error(err))...)
		return types.ValidationResponse{}, err
	}

	// Record the charge
	rec.id = charge.ID
	rec.charge = charge
	if err := p.advance(rec, types.StateCharged); err != nil {
		return types.ValidationResponse{}, err
	}
	p.mu.Lock()
	p.charges[charge.ID] = rec
	p.mu.Unlock()

	log.Info("sponsorship charged", zap.String("charge", charge.ID), zap.Stringer("amount", charge.Amount))

	return types.ValidationResponse{
		Accepted:    true,
		ChargeID:    charge.ID,
		Charged:     charge.Amount.String(),
		MessageHash: message.Hex(),
	}, nil
}

// Execute dispatches the sponsored call for a charge and settles it with the gas consumed.
// A reverted call still settles; the paymaster keeps the whole charge.
func (p *Paymaster) Execute(ctx context.Context, chargeID string, call SponsoredCall) (types.SettleResponse, error) {

	// Move the charge into execution
	p.mu.Lock()
	rec, ok := p.charges[chargeID]
	if !ok {
		p.mu.Unlock()
		return chargeNotFound(chargeID)
	}
	if rec.state != types.StateCharged {
		p.mu.Unlock()
		return p.doubleSettlement(chargeID)
	}
	if err := p.advance(rec, types.StateExecuting); err != nil {
		p.mu.Unlock()
		return types.SettleResponse{}, err
	}
	// Hold the settlement claim for the whole call
	rec.settling = true
	p.mu.Unlock()

	// Dispatch the sponsored call
	gasUsed, callErr := call(ctx)
	reverted := callErr != nil
	if reverted {
		p.log.Warn("sponsored call reverted", zap.String("charge", chargeID), zap.Error(callErr))
	}

	return p.complete(ctx, rec, gasUsed, reverted)
}

// Settle reconciles a charge with the gas actually consumed and refunds any over-collection.
func (p *Paymaster) Settle(ctx context.Context, chargeID string, actualGasUsed uint64) (types.SettleResponse, error) {
	return p.settle(ctx, chargeID, actualGasUsed, false)
}

// SettleReverted settles a charge whose externally executed call reverted.
func (p *Paymaster) SettleReverted(ctx context.Context, chargeID string, actualGasUsed uint64) (types.SettleResponse, error) {
	return p.settle(ctx, chargeID, actualGasUsed, true)
}

// validateAndCharge runs the validating stage. It returns the derived message even when it rejects.
func (p *Paymaster) validateAndCharge(ctx context.Context, req SponsorshipRequest) (*Charge, common.Hash, error) {

	// Verify the request is well formed
	if err := checkRequest(req); err != nil {
		return nil, common.Hash{}, err
	}

	// Verify the token is accepted
	if p.accepted != nil {
		if _, ok := p.accepted[req.Token]; !ok {
			return nil, common.Hash{}, reject(types.RejectionReasonTokenNotAccepted, "token %s is not accepted", req.Token.Hex())
		}
	}

	// Verify the authorization has not expired
	if p.cfg.Scheme == types.AuthSchemeEIP712 && req.Expiration <= p.now().Unix() {
		return nil, common.Hash{}, reject(types.RejectionReasonAuthorizationExpired, "authorization expired at %d", req.Expiration)
	}

	// Derive the authorization message from the request
	message, err := AuthorizationMessage(p.cfg.Scheme, p.Domain(), AuthorizationParams{
		Token:      req.Token,
		Payer:      req.Payer,
		Expiration: req.Expiration,
	})
	if err != nil {
		return nil, common.Hash{}, reject(types.RejectionReasonInvalidRequest, "%v", err)
	}

	// Keep the audit copy of the message and signature
	p.mu.Lock()
	p.lastMessageHash = message
	p.lastSignature = append([]byte(nil), req.Authorization...)
	p.mu.Unlock()

	// Verify the signature was produced by the verifier
	valid, err := VerifySignature(SigningDigest(p.cfg.Scheme, message), req.Authorization, p.cfg.Verifier)
	if err != nil {
		return nil, message, reject(types.RejectionReasonInvalidSignature, "%v", err)
	}
	if !valid {
		return nil, message, reject(types.RejectionReasonInvalidSignature, "signer is not the verifier")
	}

	// Size the pessimistic charge
	amount, err := p.upfrontAmount(ctx, req)
	if err != nil {
		return nil, message, err
	}

	// Verify the paymaster can front the native gas
	if err := p.checkFunding(ctx, req); err != nil {
		return nil, message, err
	}

	// Charge the payer while holding the ledger entry
	release := p.entries.lock(req.Token, req.Payer)
	defer release()

	charge, err := p.gate.Charge(ctx, ChargeRequest{
		Payer:            req.Payer,
		Token:            req.Token,
		Mode:             req.Mode,
		MinimalAllowance: req.MinimalAllowance,
		Amount:           amount,
		Verification:     &Verification{Message: message, Signer: p.cfg.Verifier},
	})
	if err != nil {
		return nil, message, err
	}

	return charge, message, nil
}

// upfrontAmount sizes the pessimistic charge under the configured policy.
func (p *Paymaster) upfrontAmount(ctx context.Context, req SponsorshipRequest) (*big.Int, error) {
	if p.cfg.ChargePolicy == types.ChargePolicyMinimalAllowance {
		return new(big.Int).Set(req.MinimalAllowance), nil
	}

	amount, err := p.quoter.Quote(ctx, req.GasPrice, req.GasLimit, req.Pubdata)
	switch {
	case errors.Is(err, ErrQuoteOverflow):
		return nil, reject(types.RejectionReasonQuoteOverflow, "%v", err)
	case errors.Is(err, ErrInvalidQuote):
		return nil, reject(types.RejectionReasonInvalidRequest, "%v", err)
	case err != nil:
		return nil, fmt.Errorf("failed to quote gas limit: %w", err)
	}
	return amount, nil
}

// checkFunding verifies the paymaster's native balance covers the native cost of the gas limit.
func (p *Paymaster) checkFunding(ctx context.Context, req SponsorshipRequest) error {
	if p.native == nil {
		return nil
	}

	// Get the native balance of the paymaster
	balance, err := p.native.BalanceAt(ctx, p.cfg.Paymaster, nil)
	if err != nil {
		return fmt.Errorf("failed to get paymaster balance: %w", err)
	}

	// Native cost = gas price * (gas limit + gas per pubdata byte * pubdata bytes)
	required := new(big.Int).Mul(req.GasPrice, totalGas(req.GasLimit, req.Pubdata))
	if balance.Cmp(required) < 0 {
		return reject(types.RejectionReasonPaymasterUnderfunded, "paymaster balance %s is below %s", balance, required)
	}

	return nil
}

// settle claims a charge for settlement. A charge already claimed or settled is a double settlement.
func (p *Paymaster) settle(ctx context.Context, chargeID string, gasUsed uint64, reverted bool) (types.SettleResponse, error) {

	// Claim the charge for settlement
	p.mu.Lock()
	rec, ok := p.charges[chargeID]
	if !ok {
		p.mu.Unlock()
		return chargeNotFound(chargeID)
	}
	if rec.state == types.StateSettled || rec.settling {
		p.mu.Unlock()
		return p.doubleSettlement(chargeID)
	}
	if rec.state == types.StateCharged {
		if err := p.advance(rec, types.StateExecuting); err != nil {
			p.mu.Unlock()
			return types.SettleResponse{}, err
		}
	}
	rec.settling = true
	p.mu.Unlock()

	return p.complete(ctx, rec, gasUsed, reverted)
}

// complete refunds and finalizes a charge whose settlement claim the caller holds.
func (p *Paymaster) complete(ctx context.Context, rec *chargeRecord, gasUsed uint64, reverted bool) (types.SettleResponse, error) {
	chargeID := rec.id
	log := p.log.With(zap.String("charge", chargeID), zap.Uint64("gasUsed", gasUsed), zap.Bool("reverted", reverted))

	// Compute the final fee and the over-collected amount
	fee, err := p.finalFee(ctx, rec, gasUsed, reverted)
	if err != nil {
		p.release(rec)
		log.Error("failed to compute settlement fee", zap.Error(err))
		return types.SettleResponse{}, err
	}
	refund := new(big.Int).Sub(rec.charge.Amount, fee)

	// Refund the payer while holding the ledger entry
	release := p.entries.lock(rec.charge.Token, rec.charge.Payer)
	err = p.gate.Refund(ctx, rec.charge, refund)
	release()
	if err != nil {
		p.release(rec)
		log.Error("failed to refund charge", append(pendingFields(err), zap.Error(err))...)
		return types.SettleResponse{}, err
	}

	// Finalize the charge
	p.mu.Lock()
	rec.fee = fee
	rec.refund = refund
	rec.reverted = reverted
	rec.settling = false
	err = p.advance(rec, types.StateSettled)
	p.mu.Unlock()
	if err != nil {
		return types.SettleResponse{}, err
	}

	log.Info("sponsorship settled", zap.Stringer("fee", fee), zap.Stringer("refund", refund))

	return types.SettleResponse{
		Success:  true,
		ChargeID: chargeID,
		Fee:      fee.String(),
		Refund:   refund.String(),
		Reverted: reverted,
	}, nil
}

// finalFee is the quote for the gas actually used, capped by the pessimistic charge.
// A reverted call forfeits the whole charge.
func (p *Paymaster) finalFee(ctx context.Context, rec *chargeRecord, gasUsed uint64, reverted bool) (*big.Int, error) {
	charged := rec.charge.Amount
	if reverted {
		return new(big.Int).Set(charged), nil
	}

	// Gas used can never exceed the gas limit
	if gasUsed > rec.request.GasLimit {
		gasUsed = rec.request.GasLimit
	}

	fee, err := p.quoter.Quote(ctx, rec.request.GasPrice, gasUsed, rec.request.Pubdata)
	if errors.Is(err, ErrQuoteOverflow) {
		return new(big.Int).Set(charged), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to quote actual gas: %w", err)
	}

	if fee.Cmp(charged) > 0 {
		return new(big.Int).Set(charged), nil
	}
	return fee, nil
}

// release hands a charge back after a failed settlement attempt.
func (p *Paymaster) release(rec *chargeRecord) {
	p.mu.Lock()
	rec.settling = false
	p.mu.Unlock()
}

// advance moves rec along a legal state machine edge.
func (p *Paymaster) advance(rec *chargeRecord, to types.State) error {
	for _, next := range transitions[rec.state] {
		if next == to {
			p.log.Debug("sponsorship state", zap.String("charge", rec.id), zap.String("from", string(rec.state)), zap.String("to", string(to)))
			rec.state = to
			return nil
		}
	}
	err := &InvariantError{ChargeID: rec.id, Err: fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, rec.state, to)}
	p.log.Error("illegal sponsorship transition", zap.Error(err))
	return err
}

// doubleSettlement reports a second settlement attempt for a charge.
func (p *Paymaster) doubleSettlement(chargeID string) (types.SettleResponse, error) {
	err := &InvariantError{ChargeID: chargeID, Err: ErrDoubleSettlement}
	p.log.Error("double settlement", zap.String("charge", chargeID))
	return types.SettleResponse{
		Success:     false,
		ChargeID:    chargeID,
		ErrorReason: types.RejectionReasonDoubleSettlement,
	}, err
}

// pendingFields names the transaction of a ledger write whose outcome is unknown.
func pendingFields(err error) []zap.Field {
	var pending PendingTransaction
	if errors.As(err, &pending) {
		return []zap.Field{zap.Stringer("tx", pending.TxHash())}
	}
	return nil
}

func chargeNotFound(chargeID string) (types.SettleResponse, error) {
	return types.SettleResponse{
		Success:     false,
		ChargeID:    chargeID,
		ErrorReason: types.RejectionReasonChargeNotFound,
	}, ErrChargeNotFound
}

// checkRequest verifies the structural fields of a request.
func checkRequest(req SponsorshipRequest) error {
	switch {
	case req.Payer == (common.Address{}):
		return reject(types.RejectionReasonInvalidRequest, "payer address is zero")
	case req.Token == (common.Address{}):
		return reject(types.RejectionReasonInvalidRequest, "token address is zero")
	case !req.Mode.Valid():
		return reject(types.RejectionReasonInvalidRequest, "unknown payment mode %q", req.Mode)
	case req.GasPrice == nil || req.GasPrice.Sign() < 0:
		return reject(types.RejectionReasonInvalidRequest, "gas price must be non-negative")
	case req.GasLimit == 0:
		return reject(types.RejectionReasonInvalidRequest, "gas limit must be positive")
	case req.MinimalAllowance == nil || req.MinimalAllowance.Sign() < 0:
		return reject(types.RejectionReasonInvalidRequest, "minimal allowance must be non-negative")
	case len(req.Authorization) == 0:
		return reject(types.RejectionReasonInvalidSignature, "authorization is empty")
	}
	return nil
}

// FormatSignature renders authorization bytes as 0x-prefixed hex.
func FormatSignature(sig []byte) string {
	if len(sig) == 0 {
		return ""
	}
	return hexutil.Encode(sig)
}
