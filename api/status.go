package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raid-guild/erc20-paymaster-go/core"
	"github.com/raid-guild/erc20-paymaster-go/types"
)

// Status reports the paymaster identity and the last authorization it saw.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {

	// Build the status response
	response := types.StatusResponse{
		Verifier:      h.paymaster.Verifier().Hex(),
		Paymaster:     h.paymaster.Address().Hex(),
		AuthScheme:    h.paymaster.Scheme(),
		LastSignature: core.FormatSignature(h.paymaster.LastSignature()),
	}

	// Include the last message hash once one was derived
	if hash := h.paymaster.LastMessageHash(); hash != (common.Hash{}) {
		response.LastMessageHash = hash.Hex()
	}

	// Write http ok response and then exit handler
	writeJSON(w, response)
}
