package types

// PaymentMode is the payment mode enum.
type PaymentMode string

const (
	PaymentModeApprovalBased PaymentMode = "ApprovalBased"
	PaymentModeGeneral       PaymentMode = "General"
)

// Valid reports whether the payment mode is known.
func (m PaymentMode) Valid() bool {
	return m == PaymentModeApprovalBased || m == PaymentModeGeneral
}

// AuthScheme is the authorization message scheme enum.
type AuthScheme string

const (
	// AuthSchemeEIP712 binds token, payer, expiration, chain and paymaster.
	AuthSchemeEIP712 AuthScheme = "eip712"
	// AuthSchemeTokenOnly signs keccak256(token) as a personal message.
	AuthSchemeTokenOnly AuthScheme = "token_only"
)

// ChargePolicy is the upfront charge policy enum.
type ChargePolicy string

const (
	// ChargePolicyGasLimit pre-charges the quote for the full gas limit.
	ChargePolicyGasLimit ChargePolicy = "gas_limit"
	// ChargePolicyMinimalAllowance pre-charges the request's minimal allowance.
	ChargePolicyMinimalAllowance ChargePolicy = "minimal_allowance"
)

// State is the sponsorship state enum.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateCharged    State = "charged"
	StateExecuting  State = "executing"
	StateSettled    State = "settled"
)

// RejectionReason is the rejection reason enum.
type RejectionReason string

const (
	RejectionReasonInvalidRequest        RejectionReason = "invalid_request"
	RejectionReasonInvalidSignature      RejectionReason = "invalid_signature"
	RejectionReasonUnauthorized          RejectionReason = "unauthorized"
	RejectionReasonInsufficientAllowance RejectionReason = "insufficient_allowance"
	RejectionReasonInsufficientBalance   RejectionReason = "insufficient_balance"
	RejectionReasonQuoteOverflow         RejectionReason = "quote_overflow"
	RejectionReasonDoubleSettlement      RejectionReason = "double_settlement"
	RejectionReasonAuthorizationExpired  RejectionReason = "authorization_expired"
	RejectionReasonTokenNotAccepted      RejectionReason = "token_not_accepted"
	RejectionReasonPaymasterUnderfunded  RejectionReason = "paymaster_underfunded"
	RejectionReasonChargeNotFound        RejectionReason = "charge_not_found"
)
