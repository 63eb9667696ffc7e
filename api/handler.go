package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/raid-guild/erc20-paymaster-go/auth"
	"github.com/raid-guild/erc20-paymaster-go/core"
	"github.com/raid-guild/erc20-paymaster-go/logger"
	"github.com/raid-guild/erc20-paymaster-go/utils"
)

// Handler serves the paymaster operations over HTTP.
type Handler struct {
	paymaster *core.Paymaster
}

// New creates the HTTP handler for a configured paymaster.
func New(paymaster *core.Paymaster) *Handler {
	return &Handler{paymaster: paymaster}
}

// authenticate writes the authentication failure, if any, and reports whether to continue.
func authenticate(w http.ResponseWriter, r *http.Request) bool {

	// Authenticate request
	err := auth.Authenticate(r)
	if err == nil {
		return true
	}

	// Write http error response and then exit handler
	http.Error(w, err.Error(), utils.StatusOf(err))
	return false
}

// writeJSON writes response as a JSON body with status 200.
func writeJSON(w http.ResponseWriter, response interface{}) {

	// Marshal the response into JSON bytes
	responseBytes, err := json.Marshal(response)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Set the content type and write the status code
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// Write the response bytes to the response body
	if _, err := w.Write(responseBytes); err != nil {
		// Header already written so we log the error
		logger.Error("failed to write response", zap.Error(err))
	}
}
