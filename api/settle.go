package handler

import (
	"encoding/json"
	"net/http"

	"github.com/raid-guild/erc20-paymaster-go/types"
)

// Settle reconciles a charge with the gas its sponsored call actually used.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {

	// Authenticate request
	if !authenticate(w, r) {
		return
	}

	// Decode the request body
	var requestBody types.SettleRequestBody
	err := json.NewDecoder(r.Body).Decode(&requestBody)
	if err != nil {
		// Write http error response and then exit handler
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Verify the charge id is set
	if requestBody.ChargeID == "" {
		// Write http ok response with error reason and then exit handler
		writeJSON(w, types.SettleResponse{
			Success:     false,
			ErrorReason: types.RejectionReasonInvalidRequest,
		})
		return
	}

	// Settle the charge
	var response types.SettleResponse
	if requestBody.Reverted {
		response, err = h.paymaster.SettleReverted(r.Context(), requestBody.ChargeID, requestBody.ActualGasUsed)
	} else {
		response, err = h.paymaster.Settle(r.Context(), requestBody.ChargeID, requestBody.ActualGasUsed)
	}

	// Check if the settlement failed without a reason to report
	if err != nil && response.ErrorReason == "" {
		// Write http error response and then exit handler
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Write http ok response and then exit handler
	writeJSON(w, response)
}
