package types

// ValidateRequestBody is the request body of the validate operation.
type ValidateRequestBody struct {
	Payer             string      `json:"payer"`
	Token             string      `json:"token"`
	Mode              PaymentMode `json:"mode"`
	MinimalAllowance  string      `json:"minimalAllowance"`
	Authorization     string      `json:"authorization"`
	GasPrice          string      `json:"gasPrice"`
	GasLimit          uint64      `json:"gasLimit"`
	GasPerPubdataByte uint64      `json:"gasPerPubdataByte,omitempty"`
	PubdataBytes      uint64      `json:"pubdataBytes,omitempty"`
	Expiration        int64       `json:"expiration,omitempty"`
}

// SettleRequestBody is the request body of the settle operation.
type SettleRequestBody struct {
	ChargeID      string `json:"chargeId"`
	ActualGasUsed uint64 `json:"actualGasUsed"`
	Reverted      bool   `json:"reverted,omitempty"`
}

// ValidationResponse is the response of the validate operation.
type ValidationResponse struct {
	Accepted        bool            `json:"accepted"`
	ChargeID        string          `json:"chargeId,omitempty"`
	Charged         string          `json:"charged,omitempty"`
	MessageHash     string          `json:"messageHash,omitempty"`
	RejectionReason RejectionReason `json:"rejectionReason,omitempty"`
}

// SettleResponse is the response of the settle operation.
type SettleResponse struct {
	Success     bool            `json:"success"`
	ChargeID    string          `json:"chargeId,omitempty"`
	Fee         string          `json:"fee,omitempty"`
	Refund      string          `json:"refund,omitempty"`
	Reverted    bool            `json:"reverted,omitempty"`
	ErrorReason RejectionReason `json:"errorReason,omitempty"`
}

// StatusResponse is the response of the status operation.
type StatusResponse struct {
	Verifier        string     `json:"verifier"`
	Paymaster       string     `json:"paymaster"`
	AuthScheme      AuthScheme `json:"authScheme"`
	LastMessageHash string     `json:"lastMessageHash,omitempty"`
	LastSignature   string     `json:"lastSignature,omitempty"`
}
