package handler

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/raid-guild/erc20-paymaster-go/core"
	"github.com/raid-guild/erc20-paymaster-go/types"
)

// Validate verifies a sponsorship request and takes the upfront charge.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {

	// Authenticate request
	if !authenticate(w, r) {
		return
	}

	// Decode the request body
	var requestBody types.ValidateRequestBody
	err := json.NewDecoder(r.Body).Decode(&requestBody)
	if err != nil {
		// Write http error response and then exit handler
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Convert the request body to a sponsorship request
	request, reason := parseValidateRequest(requestBody)
	if reason != "" {
		// Write http ok response with rejection reason and then exit handler
		writeJSON(w, types.ValidationResponse{
			Accepted:        false,
			RejectionReason: reason,
		})
		return
	}

	// Validate the request and charge the payer
	response, err := h.paymaster.ValidateAndCharge(r.Context(), request)
	if err != nil {
		// Write http error response and then exit handler
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Write http ok response and then exit handler
	writeJSON(w, response)
}

// parseValidateRequest converts the wire fields, returning a rejection reason for malformed input.
func parseValidateRequest(b types.ValidateRequestBody) (core.SponsorshipRequest, types.RejectionReason) {

	// Verify the payer and token are addresses
	if !common.IsHexAddress(b.Payer) || !common.IsHexAddress(b.Token) {
		return core.SponsorshipRequest{}, types.RejectionReasonInvalidRequest
	}

	// Convert the minimal allowance, which defaults to zero
	minimalAllowance := new(big.Int)
	if b.MinimalAllowance != "" {
		if _, ok := minimalAllowance.SetString(b.MinimalAllowance, 10); !ok {
			return core.SponsorshipRequest{}, types.RejectionReasonInvalidRequest
		}
	}

	// Convert the gas price
	gasPrice, ok := new(big.Int).SetString(b.GasPrice, 10)
	if !ok {
		return core.SponsorshipRequest{}, types.RejectionReasonInvalidRequest
	}

	// Decode the authorization signature
	authorization, err := hexutil.Decode(b.Authorization)
	if err != nil {
		return core.SponsorshipRequest{}, types.RejectionReasonInvalidSignature
	}

	return core.SponsorshipRequest{
		Payer:            common.HexToAddress(b.Payer),
		Token:            common.HexToAddress(b.Token),
		Mode:             b.Mode,
		MinimalAllowance: minimalAllowance,
		Authorization:    authorization,
		GasPrice:         gasPrice,
		GasLimit:         b.GasLimit,
		Pubdata: core.Pubdata{
			GasPerPubdataByte: b.GasPerPubdataByte,
			Bytes:             b.PubdataBytes,
		},
		Expiration: b.Expiration,
	}, ""
}
