package handler

import (
	"context"
	"crypto/ecdsa"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/raid-guild/erc20-paymaster-go/auth"
	"github.com/raid-guild/erc20-paymaster-go/core"
	"github.com/raid-guild/erc20-paymaster-go/ledger"
	"github.com/raid-guild/erc20-paymaster-go/types"
)

var (
	testToken     = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	testPayer     = common.HexToAddress("0x857b06519E91e3A54538791bDbb0E22373e36b66")
	testPaymaster = common.HexToAddress("0x209693Bc6afc0C5328bA36FaF03C514EF312287C")
)

func setupMockDatabase(t *testing.T, dsnID string) (sqlmock.Sqlmock, string, func()) {
	t.Helper()

	dsn := "sqlmock_db_" + dsnID
	db, mock, err := sqlmock.NewWithDSN(dsn)
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}

	originalDriverName := auth.DriverName
	auth.DriverName = "sqlmock"

	cleanup := func() {
		auth.DriverName = originalDriverName
		db.Close()
	}

	return mock, dsn, cleanup
}

// testServer is a handler over an in-memory ledger with a known verifier key.
type testServer struct {
	handler   *Handler
	paymaster *core.Paymaster
	ledger    *ledger.Memory
	key       *ecdsa.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate verifier key: %v", err)
	}

	mem := ledger.NewMemory(testPaymaster)
	mem.Mint(testToken, testPayer, big.NewInt(1000))
	mem.Approve(testToken, testPayer, testPaymaster, big.NewInt(1000))

	paymaster, err := core.New(core.Config{
		Verifier:      crypto.PubkeyToAddress(key.PublicKey),
		Paymaster:     testPaymaster,
		ChainID:       11155111,
		Scheme:        types.AuthSchemeEIP712,
		DomainName:    "ERC20Paymaster",
		DomainVersion: "1",
	}, mem, core.NewQuoter(core.FixedRate{Numerator: big.NewInt(1), Denominator: big.NewInt(1)}))
	if err != nil {
		t.Fatalf("failed to create paymaster: %v", err)
	}

	return &testServer{
		handler:   New(paymaster),
		paymaster: paymaster,
		ledger:    mem,
		key:       key,
	}
}

// sign returns the hex authorization for payer and token valid for one hour.
func (s *testServer) sign(t *testing.T, token, payer common.Address) (string, int64) {
	t.Helper()

	expiration := time.Now().Add(time.Hour).Unix()
	message, err := core.AuthorizationMessage(s.paymaster.Scheme(), s.paymaster.Domain(), core.AuthorizationParams{
		Token:      token,
		Payer:      payer,
		Expiration: expiration,
	})
	if err != nil {
		t.Fatalf("failed to derive message: %v", err)
	}

	signature, err := core.SignAuthorization(s.key, core.SigningDigest(s.paymaster.Scheme(), message))
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}

	return hexutil.Encode(signature), expiration
}

func (s *testServer) balance(t *testing.T, owner common.Address) int64 {
	t.Helper()

	balance, err := s.ledger.BalanceOf(context.Background(), testToken, owner)
	if err != nil {
		t.Fatalf("failed to get balance: %v", err)
	}
	return balance.Int64()
}

func serve(t *testing.T, h http.HandlerFunc, method, path, apiKey, body string, expectedStatus int, checkResponse func(*testing.T, string)) {
	t.Helper()

	w := httptest.NewRecorder()

	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	req.Body = io.NopCloser(strings.NewReader(body))

	h(w, req)

	if w.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d. Body: %s", expectedStatus, w.Code, w.Body.String())
	}

	if checkResponse != nil {
		checkResponse(t, w.Body.String())
	}
}

func (s *testServer) validate(t *testing.T, apiKey string, body string, expectedStatus int, checkResponse func(*testing.T, string)) {
	t.Helper()
	serve(t, s.handler.Validate, "POST", "/validate", apiKey, body, expectedStatus, checkResponse)
}

func (s *testServer) settle(t *testing.T, apiKey string, body string, expectedStatus int, checkResponse func(*testing.T, string)) {
	t.Helper()
	serve(t, s.handler.Settle, "POST", "/settle", apiKey, body, expectedStatus, checkResponse)
}

func (s *testServer) status(t *testing.T, expectedStatus int, checkResponse func(*testing.T, string)) {
	t.Helper()
	serve(t, s.handler.Status, "GET", "/status", "", "", expectedStatus, checkResponse)
}
