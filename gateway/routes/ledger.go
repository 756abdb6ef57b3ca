package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stakingrewards/native/staking"
	"stakingrewards/observability"
)

type ledgerRoutes struct {
	engine *staking.Engine
}

type approveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (lr *ledgerRoutes) mount(r chi.Router) {
	r.Post("/approve", lr.approve)
	r.Post("/transfer", lr.transfer)
	r.Get("/balances/{addr}", lr.balance)
}

func assetParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "asset")))
}

func (lr *ledgerRoutes) approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	asset := assetParam(r)
	if err := lr.engine.Approve(asset, owner, spender, amount); err != nil {
		writeError(w, err)
		return
	}
	observability.Ledger().RecordWrite(asset, "approve")
	writeJSON(w, http.StatusOK, map[string]string{"allowance": amount.String()})
}

func (lr *ledgerRoutes) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	asset := assetParam(r)
	if err := lr.engine.Transfer(asset, from, to, amount); err != nil {
		writeError(w, err)
		return
	}
	observability.Ledger().RecordWrite(asset, "transfer")
	token, _ := lr.engine.Token(asset)
	writeJSON(w, http.StatusOK, map[string]string{"balance": formatAmount(token.BalanceOf(from))})
}

func (lr *ledgerRoutes) balance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	asset := assetParam(r)
	token, ok := lr.engine.Token(asset)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "UnknownAsset", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   token.Symbol(),
		"address": addr.String(),
		"balance": formatAmount(token.BalanceOf(addr)),
	})
}
