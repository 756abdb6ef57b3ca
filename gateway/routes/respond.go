package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	stakingerrors "stakingrewards/core/errors"
	"stakingrewards/crypto"
	"stakingrewards/native/bank"
	"stakingrewards/native/staking"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func badRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		message = strings.TrimSpace(err.Error())
	}
	if code == "" {
		code = strings.ReplaceAll(http.StatusText(status), " ", "")
	}
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, "BadRequest", err)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequest) {
		writeBadRequest(w, err)
		return
	}
	code := stakingerrors.Code(err)
	switch code {
	case "NotOwner", "ProgramCustody":
		writeJSONError(w, http.StatusForbidden, code, err)
		return
	case "TransferFailed":
		writeJSONError(w, http.StatusBadGateway, code, err)
		return
	case "ZeroAmount", "InsufficientBalance", "InvalidDuration", "InvalidAddress":
		writeJSONError(w, http.StatusBadRequest, code, err)
		return
	case "":
	default:
		writeJSONError(w, http.StatusConflict, code, err)
		return
	}
	switch {
	case errors.Is(err, staking.ErrUnknownAsset):
		writeJSONError(w, http.StatusNotFound, "UnknownAsset", err)
	case errors.Is(err, bank.ErrInsufficientFunds):
		writeJSONError(w, http.StatusConflict, "InsufficientFunds", err)
	case errors.Is(err, bank.ErrInsufficientAllowance):
		writeJSONError(w, http.StatusConflict, "InsufficientAllowance", err)
	case errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrInvalidAccount):
		writeJSONError(w, http.StatusBadRequest, "BadRequest", err)
	default:
		writeJSONError(w, http.StatusInternalServerError, "Internal", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, requestBodyLimit)
	defer body.Close()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body required", errBadRequest)
		}
		return fmt.Errorf("%w: decode request: %v", errBadRequest, err)
	}
	return nil
}

func parseAddress(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

// parseAmount reads a base-10 integer. Negative values are passed through so
// the engine reports them with its own error kind.
func parseAmount(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: %s is required", errBadRequest, field)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s: invalid amount %q", errBadRequest, field, value)
	}
	return amount, nil
}

// parseLimit is parseAmount where the empty string means unbounded.
func parseLimit(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatLimit(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
