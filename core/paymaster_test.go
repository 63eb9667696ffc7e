package core

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raid-guild/erc20-paymaster-go/core/mocks"
	"github.com/raid-guild/erc20-paymaster-go/ledger"
	"github.com/raid-guild/erc20-paymaster-go/types"
)

type fixture struct {
	t      *testing.T
	pm     *Paymaster
	ledger *ledger.Memory
	key    *ecdsa.PrivateKey
	now    time.Time
}

func newFixture(t *testing.T, cfg Config, policy ExchangePolicy, opts ...Option) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg.Verifier = crypto.PubkeyToAddress(key.PublicKey)
	cfg.Paymaster = testPaymaster
	if cfg.ChainID == 0 {
		cfg.ChainID = 11155111
	}
	if cfg.DomainName == "" {
		cfg.DomainName = "ERC20Paymaster"
		cfg.DomainVersion = "1"
	}

	now := time.Unix(1700000000, 0)
	mem := ledger.NewMemory(testPaymaster)

	opts = append([]Option{
		WithClock(func() time.Time { return now }),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)

	pm, err := New(cfg, mem, NewQuoter(policy), opts...)
	require.NoError(t, err)

	return &fixture{t: t, pm: pm, ledger: mem, key: key, now: now}
}

// authorize signs a sponsorship authorization with the verifier key.
func (f *fixture) authorize(token, payer common.Address, expiration int64) []byte {
	f.t.Helper()

	message, err := AuthorizationMessage(f.pm.Scheme(), f.pm.Domain(), AuthorizationParams{
		Token:      token,
		Payer:      payer,
		Expiration: expiration,
	})
	require.NoError(f.t, err)

	sig, err := SignAuthorization(f.key, SigningDigest(f.pm.Scheme(), message))
	require.NoError(f.t, err)
	return sig
}

// request builds a correctly authorized request for payer.
func (f *fixture) request(payer common.Address, mode types.PaymentMode) SponsorshipRequest {
	expiration := f.now.Add(time.Hour).Unix()
	return SponsorshipRequest{
		Payer:            payer,
		Token:            testToken,
		Mode:             mode,
		MinimalAllowance: big.NewInt(1),
		Authorization:    f.authorize(testToken, payer, expiration),
		GasPrice:         big.NewInt(2),
		GasLimit:         100,
		Expiration:       expiration,
	}
}

func (f *fixture) fund(payer common.Address, balance, allowance int64) {
	f.ledger.Mint(testToken, payer, big.NewInt(balance))
	f.ledger.Approve(testToken, payer, testPaymaster, big.NewInt(allowance))
}

func (f *fixture) balance(owner common.Address) int64 {
	f.t.Helper()
	b, err := f.ledger.BalanceOf(context.Background(), testToken, owner)
	require.NoError(f.t, err)
	return b.Int64()
}

func oneToOneRate() ExchangePolicy {
	return FixedRate{Numerator: big.NewInt(1), Denominator: big.NewInt(1)}
}

func requireRejected(t *testing.T, response types.ValidationResponse, err error, reason types.RejectionReason) {
	t.Helper()
	require.NoError(t, err)
	assert.False(t, response.Accepted)
	assert.Equal(t, reason, response.RejectionReason)
	assert.Empty(t, response.ChargeID)
}

func TestPaymaster_SponsoredMint(t *testing.T) {
	for _, mode := range []types.PaymentMode{types.PaymentModeApprovalBased, types.PaymentModeGeneral} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Config{
				Scheme:       types.AuthSchemeTokenOnly,
				ChargePolicy: types.ChargePolicyMinimalAllowance,
			}, FlatFee{Amount: big.NewInt(1)})

			f.fund(testPayer, 10, 1)
			f.ledger.SetNativeBalance(testPayer, big.NewInt(1e18))

			response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, mode))
			require.NoError(t, err)
			require.True(t, response.Accepted, "rejected: %s", response.RejectionReason)
			assert.Equal(t, "1", response.Charged)

			settled, err := f.pm.Execute(ctx, response.ChargeID, func(context.Context) (uint64, error) {
				f.ledger.Mint(testToken, testPayer, big.NewInt(5))
				return 50, nil
			})
			require.NoError(t, err)
			assert.True(t, settled.Success)
			assert.Equal(t, "1", settled.Fee)
			assert.Equal(t, "0", settled.Refund)

			assert.Equal(t, int64(10+5-1), f.balance(testPayer))
			assert.Equal(t, int64(1), f.balance(testPaymaster))

			native, err := f.ledger.BalanceAt(ctx, testPayer, nil)
			require.NoError(t, err)
			assert.Equal(t, 0, native.Cmp(big.NewInt(1e18)))
		})
	}
}

func TestPaymaster_SignatureForAnotherToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Scheme: types.AuthSchemeTokenOnly}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	req := f.request(testPayer, types.PaymentModeApprovalBased)
	req.Authorization = f.authorize(testOtherCoin, testPayer, req.Expiration)

	response, err := f.pm.ValidateAndCharge(ctx, req)
	requireRejected(t, response, err, types.RejectionReasonInvalidSignature)
	assert.Equal(t, crypto.Keccak256Hash(testToken.Bytes()).Hex(), response.MessageHash)

	assert.Equal(t, int64(1000), f.balance(testPayer))
	assert.Equal(t, int64(0), f.balance(testPaymaster))

	assert.Equal(t, crypto.Keccak256Hash(testToken.Bytes()), f.pm.LastMessageHash())
	assert.Equal(t, req.Authorization, f.pm.LastSignature())
}

func TestPaymaster_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  func(f *fixture)
		mutate func(f *fixture, req *SponsorshipRequest)
		reason types.RejectionReason
	}{
		{
			name:   "allowance below charge",
			setup:  func(f *fixture) { f.fund(testPayer, 1000, 199) },
			reason: types.RejectionReasonInsufficientAllowance,
		},
		{
			name:  "allowance below minimal allowance",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 500) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.MinimalAllowance = big.NewInt(501)
			},
			reason: types.RejectionReasonInsufficientAllowance,
		},
		{
			name:   "balance below charge",
			setup:  func(f *fixture) { f.fund(testPayer, 199, 1000) },
			reason: types.RejectionReasonInsufficientBalance,
		},
		{
			name:  "authorization for another payer",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.Authorization = f.authorize(testToken, testOtherCoin, req.Expiration)
			},
			reason: types.RejectionReasonInvalidSignature,
		},
		{
			name:  "authorization for another expiration",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.Expiration++
			},
			reason: types.RejectionReasonInvalidSignature,
		},
		{
			name:  "expired authorization",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.Expiration = f.now.Unix()
				req.Authorization = f.authorize(testToken, testPayer, req.Expiration)
			},
			reason: types.RejectionReasonAuthorizationExpired,
		},
		{
			name:  "truncated authorization",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.Authorization = req.Authorization[:64]
			},
			reason: types.RejectionReasonInvalidSignature,
		},
		{
			name:  "missing authorization",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.Authorization = nil
			},
			reason: types.RejectionReasonInvalidSignature,
		},
		{
			name:  "zero gas limit",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.GasLimit = 0
			},
			reason: types.RejectionReasonInvalidRequest,
		},
		{
			name:  "unknown payment mode",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.Mode = types.PaymentMode("Barter")
			},
			reason: types.RejectionReasonInvalidRequest,
		},
		{
			name:  "quote overflows",
			setup: func(f *fixture) { f.fund(testPayer, 1000, 1000) },
			mutate: func(f *fixture, req *SponsorshipRequest) {
				req.GasPrice = new(big.Int).Lsh(big.NewInt(1), 255)
			},
			reason: types.RejectionReasonQuoteOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, oneToOneRate())
			tt.setup(f)

			req := f.request(testPayer, types.PaymentModeApprovalBased)
			if tt.mutate != nil {
				tt.mutate(f, &req)
			}

			before := f.balance(testPayer)
			response, err := f.pm.ValidateAndCharge(ctx, req)
			requireRejected(t, response, err, tt.reason)

			assert.Equal(t, before, f.balance(testPayer))
			assert.Equal(t, int64(0), f.balance(testPaymaster))
		})
	}
}

func TestPaymaster_TokenNotAccepted(t *testing.T) {
	f := newFixture(t, Config{AcceptedTokens: []common.Address{testOtherCoin}}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(context.Background(), f.request(testPayer, types.PaymentModeApprovalBased))
	requireRejected(t, response, err, types.RejectionReasonTokenNotAccepted)
}

func TestPaymaster_NativeFunding(t *testing.T) {
	ctx := context.Background()

	t.Run("underfunded paymaster rejects", func(t *testing.T) {
		f := newFixture(t, Config{}, oneToOneRate())
		f.pm.native = f.ledger
		f.fund(testPayer, 1000, 1000)
		f.ledger.SetNativeBalance(testPaymaster, big.NewInt(199))

		response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
		requireRejected(t, response, err, types.RejectionReasonPaymasterUnderfunded)
		assert.Equal(t, int64(1000), f.balance(testPayer))
	})

	t.Run("pubdata gas is covered", func(t *testing.T) {
		f := newFixture(t, Config{}, oneToOneRate())
		f.pm.native = f.ledger
		f.fund(testPayer, 1000, 1000)
		f.ledger.SetNativeBalance(testPaymaster, big.NewInt(399))

		// 2 * (100 + 2*50)
		req := f.request(testPayer, types.PaymentModeApprovalBased)
		req.Pubdata = Pubdata{GasPerPubdataByte: 2, Bytes: 50}

		response, err := f.pm.ValidateAndCharge(ctx, req)
		requireRejected(t, response, err, types.RejectionReasonPaymasterUnderfunded)

		f.ledger.SetNativeBalance(testPaymaster, big.NewInt(400))
		response, err = f.pm.ValidateAndCharge(ctx, req)
		require.NoError(t, err)
		assert.True(t, response.Accepted)
		assert.Equal(t, "400", response.Charged)
	})

	t.Run("funded paymaster accepts", func(t *testing.T) {
		f := newFixture(t, Config{}, oneToOneRate())
		f.pm.native = f.ledger
		f.fund(testPayer, 1000, 1000)
		f.ledger.SetNativeBalance(testPaymaster, big.NewInt(200))

		response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
		require.NoError(t, err)
		assert.True(t, response.Accepted)
	})
}

func TestPaymaster_SettleRefundsUnusedGas(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
	require.NoError(t, err)
	require.True(t, response.Accepted)
	assert.Equal(t, "200", response.Charged)
	assert.Equal(t, int64(800), f.balance(testPayer))
	assert.Equal(t, int64(200), f.balance(testPaymaster))

	snapshot, ok := f.pm.Lookup(response.ChargeID)
	require.True(t, ok)
	assert.Equal(t, types.StateCharged, snapshot.State)

	settled, err := f.pm.Settle(ctx, response.ChargeID, 60)
	require.NoError(t, err)
	assert.True(t, settled.Success)
	assert.Equal(t, "120", settled.Fee)
	assert.Equal(t, "80", settled.Refund)
	assert.False(t, settled.Reverted)

	assert.Equal(t, int64(880), f.balance(testPayer))
	assert.Equal(t, int64(120), f.balance(testPaymaster))

	snapshot, ok = f.pm.Lookup(response.ChargeID)
	require.True(t, ok)
	assert.Equal(t, types.StateSettled, snapshot.State)
	assert.Equal(t, int64(120), snapshot.Fee.Int64())
	assert.Equal(t, int64(80), snapshot.Refund.Int64())

	t.Run("second settlement is an invariant violation", func(t *testing.T) {
		again, err := f.pm.Settle(ctx, response.ChargeID, 60)
		assert.ErrorIs(t, err, ErrDoubleSettlement)
		var invariant *InvariantError
		assert.ErrorAs(t, err, &invariant)
		assert.False(t, again.Success)
		assert.Equal(t, types.RejectionReasonDoubleSettlement, again.ErrorReason)

		assert.Equal(t, int64(880), f.balance(testPayer))
		assert.Equal(t, int64(120), f.balance(testPaymaster))
	})
}

func TestPaymaster_SettleClampsGasToLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
	require.NoError(t, err)

	settled, err := f.pm.Settle(ctx, response.ChargeID, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, "200", settled.Fee)
	assert.Equal(t, "0", settled.Refund)
	assert.Equal(t, int64(800), f.balance(testPayer))
}

func TestPaymaster_RevertedCallKeepsCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
	require.NoError(t, err)

	settled, err := f.pm.Execute(ctx, response.ChargeID, func(context.Context) (uint64, error) {
		return 30, errors.New("execution reverted")
	})
	require.NoError(t, err)
	assert.True(t, settled.Success)
	assert.True(t, settled.Reverted)
	assert.Equal(t, "200", settled.Fee)
	assert.Equal(t, "0", settled.Refund)
	assert.Equal(t, int64(800), f.balance(testPayer))
	assert.Equal(t, int64(200), f.balance(testPaymaster))

	_, err = f.pm.Execute(ctx, response.ChargeID, func(context.Context) (uint64, error) {
		t.Fatal("settled charge executed twice")
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrDoubleSettlement)
}

func TestPaymaster_SettleDuringExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
	require.NoError(t, err)
	require.Equal(t, "200", response.Charged)

	settled, err := f.pm.Execute(ctx, response.ChargeID, func(ctx context.Context) (uint64, error) {
		early, err := f.pm.Settle(ctx, response.ChargeID, 0)
		assert.ErrorIs(t, err, ErrDoubleSettlement)
		assert.False(t, early.Success)
		assert.Equal(t, types.RejectionReasonDoubleSettlement, early.ErrorReason)

		_, err = f.pm.SettleReverted(ctx, response.ChargeID, 0)
		assert.ErrorIs(t, err, ErrDoubleSettlement)
		return 90, nil
	})
	require.NoError(t, err)
	assert.True(t, settled.Success)
	assert.Equal(t, "180", settled.Fee)
	assert.Equal(t, "20", settled.Refund)

	assert.Equal(t, int64(820), f.balance(testPayer))
	assert.Equal(t, int64(180), f.balance(testPaymaster))
}

// unconfirmedTx is a ledger error for a sent transfer with no receipt.
type unconfirmedTx struct {
	hash common.Hash
}

func (e unconfirmedTx) Error() string {
	return "timed out waiting for receipt"
}

func (e unconfirmedTx) TxHash() common.Hash {
	return e.hash
}

func TestPaymaster_UnconfirmedChargeIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	hash := common.HexToHash("0xabc1")

	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenLedger(ctrl)
	tokens.EXPECT().Allowance(gomock.Any(), testToken, testPayer, testPaymaster).Return(big.NewInt(1000), nil)
	tokens.EXPECT().BalanceOf(gomock.Any(), testToken, testPayer).Return(big.NewInt(1000), nil)
	tokens.EXPECT().TransferFrom(gomock.Any(), testToken, testPayer, testPaymaster, big.NewInt(200)).
		Return(false, unconfirmedTx{hash: hash})

	observed, logs := observer.New(zap.ErrorLevel)
	pm, err := New(f.pm.cfg, tokens, NewQuoter(oneToOneRate()),
		WithClock(func() time.Time { return f.now }),
		WithLogger(zap.New(observed)),
	)
	require.NoError(t, err)

	response, err := pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
	require.Error(t, err)
	assert.False(t, response.Accepted)

	var pending PendingTransaction
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, hash, pending.TxHash())

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, hash.Hex(), entries[0].ContextMap()["tx"])
}

func TestPaymaster_SettleReverted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeGeneral))
	require.NoError(t, err)

	settled, err := f.pm.SettleReverted(ctx, response.ChargeID, 10)
	require.NoError(t, err)
	assert.True(t, settled.Reverted)
	assert.Equal(t, "200", settled.Fee)
}

func TestPaymaster_SettleUnknownCharge(t *testing.T) {
	f := newFixture(t, Config{}, oneToOneRate())

	response, err := f.pm.Settle(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, ErrChargeNotFound)
	assert.False(t, response.Success)
	assert.Equal(t, types.RejectionReasonChargeNotFound, response.ErrorReason)
}

func TestPaymaster_FailedRefundCanBeRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
	require.NoError(t, err)

	f.ledger.RejectTransfers(true)
	_, err = f.pm.Settle(ctx, response.ChargeID, 60)
	assert.ErrorIs(t, err, ErrTransferFailed)

	snapshot, ok := f.pm.Lookup(response.ChargeID)
	require.True(t, ok)
	assert.Equal(t, types.StateExecuting, snapshot.State)

	f.ledger.RejectTransfers(false)
	settled, err := f.pm.Settle(ctx, response.ChargeID, 60)
	require.NoError(t, err)
	assert.Equal(t, "80", settled.Refund)
	assert.Equal(t, int64(880), f.balance(testPayer))
}

func TestPaymaster_ConcurrentSettleRunsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())
	f.fund(testPayer, 1000, 1000)

	response, err := f.pm.ValidateAndCharge(ctx, f.request(testPayer, types.PaymentModeApprovalBased))
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			settled, err := f.pm.Settle(ctx, response.ChargeID, 60)
			if err == nil && settled.Success {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(880), f.balance(testPayer))
	assert.Equal(t, int64(120), f.balance(testPaymaster))
}

func TestPaymaster_ConcurrentPayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, oneToOneRate())

	const payers = 16
	addresses := make([]common.Address, payers)
	requests := make([]SponsorshipRequest, payers)
	for i := range addresses {
		addresses[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		f.fund(addresses[i], 1000, 1000)
		requests[i] = f.request(addresses[i], types.PaymentModeApprovalBased)
	}

	var wg sync.WaitGroup
	errs := make([]error, payers)
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			response, err := f.pm.ValidateAndCharge(ctx, requests[i])
			if err != nil {
				errs[i] = err
				return
			}
			if !response.Accepted {
				errs[i] = errors.New(string(response.RejectionReason))
				return
			}
			_, errs[i] = f.pm.Settle(ctx, response.ChargeID, 60)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "payer %d", i)
		assert.Equal(t, int64(880), f.balance(addresses[i]))
	}
	assert.Equal(t, int64(payers*120), f.balance(testPaymaster))
}

func TestNew_Configuration(t *testing.T) {
	mem := ledger.NewMemory(testPaymaster)
	quoter := NewQuoter(oneToOneRate())

	t.Run("missing verifier", func(t *testing.T) {
		_, err := New(Config{Paymaster: testPaymaster}, mem, quoter)
		assert.ErrorIs(t, err, ErrMissingVerifier)
	})

	t.Run("missing paymaster", func(t *testing.T) {
		_, err := New(Config{Verifier: testPayer}, mem, quoter)
		assert.ErrorIs(t, err, ErrMissingPaymaster)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := New(Config{Verifier: testPayer, Paymaster: testPaymaster, Scheme: "rsa"}, mem, quoter)
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		pm, err := New(Config{Verifier: testPayer, Paymaster: testPaymaster}, mem, quoter)
		require.NoError(t, err)
		assert.Equal(t, testPayer, pm.Verifier())
		assert.Equal(t, types.AuthSchemeEIP712, pm.Scheme())
		assert.Equal(t, testPaymaster, pm.Address())
	})
}
