package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type pauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// limitRequest carries an optional cap; an empty amount lifts it.
type limitRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type durationRequest struct {
	Caller   string `json:"caller"`
	Duration uint64 `json:"duration"`
}

type ownerRequest struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

func (sr *stakingRoutes) mountAdmin(r chi.Router) {
	r.Post("/notify", sr.notify)
	r.Post("/pause", sr.pause)
	r.Post("/max-stake", sr.maxStake)
	r.Post("/program-cap", sr.programCap)
	r.Post("/duration", sr.duration)
	r.Post("/emergency-withdraw", sr.emergencyWithdraw)
	r.Post("/owner", sr.transferOwnership)
}

func (sr *stakingRoutes) notify(w http.ResponseWriter, r *http.Request) {
	caller, amount, err := decodeAmountRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	rate, err := sr.engine.NotifyRewardAmount(caller, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	sr.logger.Info("reward budget added", "caller", caller.String(), "amount", amount.String(), "rate", rate.String())
	writeJSON(w, http.StatusOK, map[string]string{"rewardRate": formatAmount(rate)})
}

func (sr *stakingRoutes) pause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sr.engine.SetPaused(caller, req.Paused); err != nil {
		writeError(w, err)
		return
	}
	status, err := sr.engine.Status()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (sr *stakingRoutes) applyLimit(w http.ResponseWriter, r *http.Request, apply func(req limitRequest) error) {
	var req limitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := apply(req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"limit": req.Amount})
}

func (sr *stakingRoutes) maxStake(w http.ResponseWriter, r *http.Request) {
	sr.applyLimit(w, r, func(req limitRequest) error {
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return err
		}
		limit, err := parseLimit("amount", req.Amount)
		if err != nil {
			return err
		}
		return sr.engine.AdjustMaxStakeAmount(caller, limit)
	})
}

func (sr *stakingRoutes) programCap(w http.ResponseWriter, r *http.Request) {
	sr.applyLimit(w, r, func(req limitRequest) error {
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return err
		}
		limit, err := parseLimit("amount", req.Amount)
		if err != nil {
			return err
		}
		return sr.engine.AdjustProgramCap(caller, limit)
	})
}

func (sr *stakingRoutes) duration(w http.ResponseWriter, r *http.Request) {
	var req durationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sr.engine.SetRewardsDuration(caller, req.Duration); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"rewardsDuration": req.Duration})
}

func (sr *stakingRoutes) emergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeCallerRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := sr.engine.EmergencyWithdraw(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	sr.logger.Warn("emergency withdrawal executed", "caller", caller.String(), "total", total.String())
	writeJSON(w, http.StatusOK, map[string]string{"returned": formatAmount(total)})
}

func (sr *stakingRoutes) transferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sr.engine.TransferOwnership(caller, next); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": next.String()})
}
