package routes

import (
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"stakingrewards/core/events"
	"stakingrewards/crypto"
	"stakingrewards/native/staking"
)

type stakingRoutes struct {
	engine  *staking.Engine
	journal *events.Journal
	logger  *slog.Logger
}

type amountRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type programView struct {
	Owner                    string `json:"owner"`
	Distributor              string `json:"distributor"`
	Address                  string `json:"address"`
	StakeAsset               string `json:"stakeAsset"`
	RewardAsset              string `json:"rewardAsset"`
	Status                   string `json:"status"`
	Mode                     string `json:"mode"`
	RewardRate               string `json:"rewardRate"`
	RewardsDuration          uint64 `json:"rewardsDuration"`
	PeriodStart              uint64 `json:"periodStart"`
	PeriodFinish             uint64 `json:"periodFinish"`
	LastUpdateTime           uint64 `json:"lastUpdateTime"`
	LastTimeRewardApplicable uint64 `json:"lastTimeRewardApplicable"`
	RewardPerToken           string `json:"rewardPerToken"`
	RewardForDuration        string `json:"rewardForDuration"`
	RewardsAvailable         string `json:"rewardsAvailable"`
	TotalStaked              string `json:"totalStaked"`
	MaxStakePerAccount       string `json:"maxStakePerAccount,omitempty"`
	MaxProgramCap            string `json:"maxProgramCap,omitempty"`
	SingleStake              bool   `json:"singleStake"`
	ProgramStart             uint64 `json:"programStart"`
	TotalRewardInjected      string `json:"totalRewardInjected"`
	TotalRewardAccrued       string `json:"totalRewardAccrued"`
	TotalRewardPaid          string `json:"totalRewardPaid"`
	Now                      uint64 `json:"now"`
}

type accountView struct {
	Address            string `json:"address"`
	Staked             string `json:"staked"`
	Earned             string `json:"earned"`
	RewardPerTokenPaid string `json:"rewardPerTokenPaid"`
	HasParticipated    bool   `json:"hasParticipated"`
	StakeStartTime     uint64 `json:"stakeStartTime"`
	TotalClaimed       string `json:"totalClaimed"`
}

func (sr *stakingRoutes) mount(r chi.Router) {
	r.Post("/stake", sr.stake)
	r.Post("/withdraw", sr.withdraw)
	r.Post("/claim", sr.claim)
	r.Post("/exit", sr.exit)

	r.Get("/program", sr.program)
	r.Get("/accounts", sr.listAccounts)
	r.Get("/accounts/{addr}", sr.account)
	r.Get("/gatekeeper", sr.gatekeeper)
	r.Get("/events", sr.listEvents)

	r.Route("/admin", sr.mountAdmin)
}

func decodeAmountRequest(w http.ResponseWriter, r *http.Request) (crypto.Address, *big.Int, error) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		return crypto.Address{}, nil, err
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	return caller, amount, nil
}

func decodeCallerRequest(w http.ResponseWriter, r *http.Request) (crypto.Address, error) {
	var req callerRequest
	if err := decodeBody(w, r, &req); err != nil {
		return crypto.Address{}, err
	}
	return parseAddress("caller", req.Caller)
}

func (sr *stakingRoutes) stake(w http.ResponseWriter, r *http.Request) {
	caller, amount, err := decodeAmountRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sr.engine.Stake(caller, amount); err != nil {
		writeError(w, err)
		return
	}
	sr.writeAccount(w, caller)
}

func (sr *stakingRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, amount, err := decodeAmountRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sr.engine.Withdraw(caller, amount); err != nil {
		writeError(w, err)
		return
	}
	sr.writeAccount(w, caller)
}

func (sr *stakingRoutes) claim(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeCallerRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	paid, err := sr.engine.GetReward(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"paid": formatAmount(paid)})
}

func (sr *stakingRoutes) exit(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeCallerRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	withdrawn, paid, err := sr.engine.Exit(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"withdrawn": formatAmount(withdrawn),
		"paid":      formatAmount(paid),
	})
}

func (sr *stakingRoutes) program(w http.ResponseWriter, r *http.Request) {
	p, err := sr.engine.Program()
	if err != nil {
		writeError(w, err)
		return
	}
	now := sr.engine.Now()
	forDuration, err := sr.engine.RewardForDuration()
	if err != nil {
		writeError(w, err)
		return
	}
	available, err := sr.engine.RewardsAvailable()
	if err != nil {
		writeError(w, err)
		return
	}
	applicable := p.PeriodFinish
	if now < applicable {
		applicable = now
	}
	writeJSON(w, http.StatusOK, programView{
		Owner:                    p.Owner.String(),
		Distributor:              p.Distributor.String(),
		Address:                  p.Address.String(),
		StakeAsset:               p.StakeAsset,
		RewardAsset:              p.RewardAsset,
		Status:                   string(p.Status(now)),
		Mode:                     p.Mode.String(),
		RewardRate:               formatAmount(p.RewardRate),
		RewardsDuration:          p.RewardsDuration,
		PeriodStart:              p.PeriodStart,
		PeriodFinish:             p.PeriodFinish,
		LastUpdateTime:           p.LastUpdateTime,
		LastTimeRewardApplicable: applicable,
		RewardPerToken:           formatAmount(p.RewardPerTokenStored),
		RewardForDuration:        formatAmount(forDuration),
		RewardsAvailable:         formatAmount(available),
		TotalStaked:              formatAmount(p.TotalStaked),
		MaxStakePerAccount:       formatLimit(p.MaxStakePerAccount),
		MaxProgramCap:            formatLimit(p.MaxProgramCap),
		SingleStake:              p.SingleStake,
		ProgramStart:             p.ProgramStart,
		TotalRewardInjected:      formatAmount(p.TotalRewardInjected),
		TotalRewardAccrued:       formatAmount(p.TotalRewardAccrued),
		TotalRewardPaid:          formatAmount(p.TotalRewardPaid),
		Now:                      now,
	})
}

func (sr *stakingRoutes) account(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	sr.writeAccount(w, addr)
}

func (sr *stakingRoutes) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := sr.engine.Accounts()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]accountView, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, newAccountView(acct.Address, acct))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out})
}

func (sr *stakingRoutes) writeAccount(w http.ResponseWriter, addr crypto.Address) {
	acct, _, err := sr.engine.Account(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(addr, acct))
}

// newAccountView renders acct, or an empty record for addr when acct is nil.
func newAccountView(addr crypto.Address, acct *staking.Account) accountView {
	if acct == nil {
		return accountView{Address: addr.String(), Staked: "0", Earned: "0", RewardPerTokenPaid: "0", TotalClaimed: "0"}
	}
	return accountView{
		Address:            acct.Address.String(),
		Staked:             formatAmount(acct.Staked),
		Earned:             formatAmount(acct.Settled),
		RewardPerTokenPaid: formatAmount(acct.RewardPerTokenPaid),
		HasParticipated:    acct.HasParticipated,
		StakeStartTime:     acct.StakeStartTime,
		TotalClaimed:       formatAmount(acct.TotalClaimed),
	}
}

func (sr *stakingRoutes) gatekeeper(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := sr.engine.GateKeeper(amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sufficient": ok})
}

func (sr *stakingRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	cursor, limit, err := parsePage(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := sr.journal.List(cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	next := cursor
	if len(list) > 0 {
		next = list[len(list)-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": list,
		"cursor": strconv.FormatUint(next, 10),
		"head":   strconv.FormatUint(sr.journal.Head(), 10),
	})
}

func parsePage(r *http.Request) (uint64, int, error) {
	query := r.URL.Query()
	var cursor uint64
	if raw := query.Get("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, badRequestf("cursor: %v", err)
		}
		cursor = parsed
	}
	var limit int
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, badRequestf("limit must be a non-negative integer")
		}
		limit = parsed
	}
	return cursor, limit, nil
}
