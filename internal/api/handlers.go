package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/replay"
	"github.com/fairstack/engine-go/internal/settle"
)

const maxRequestBody = 1 << 20 // 1 MiB

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return false
	}
	return true
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		s.errorHandler.HandleValidationError(w, r, "user_id", "user_id is required")
		return
	}
	if req.GameID == "" {
		s.errorHandler.HandleValidationError(w, r, "game", "game is required")
		return
	}

	bet, err := s.coordinator.PlaceBet(settle.PlaceBetRequest{
		UserID:     req.UserID,
		GameID:     req.GameID,
		ChainID:    req.ChainID,
		Amount:     req.Amount,
		ClientSeed: req.ClientSeed,
		Params:     req.Params,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, betResponse(bet))
}

func (s *Server) handleGetBet(w http.ResponseWriter, r *http.Request) {
	bet, err := s.db.GetBet(chi.URLParam(r, "betID"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, betResponse(bet))
}

func (s *Server) handleSettleBet(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.CashoutAt <= 1.0 {
		s.errorHandler.HandleValidationError(w, r, "cashout_at", "cashout_at must be greater than 1.0")
		return
	}

	bet, err := s.coordinator.Settle(chi.URLParam(r, "betID"), req.CashoutAt)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, betResponse(bet))
}

func (s *Server) handleVerifyBet(w http.ResponseWriter, r *http.Request) {
	report, err := s.verifier.Verify(chi.URLParam(r, "betID"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListBets(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		s.errorHandler.HandleValidationError(w, r, "user", "user query parameter is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.errorHandler.HandleValidationError(w, r, "limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	bets, err := s.db.ListBets(userID, limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	out := make([]BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, betResponse(b))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         s.games.List(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleCommitment(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainID")
	seedID, commitment, err := s.registry.Commitment(chainID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CommitmentResponse{
		ChainID:       chainID,
		SeedID:        seedID,
		Commitment:    commitment,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainID")
	old, current, err := s.registry.Rotate(chainID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	resp := RotateResponse{
		ChainID:       chainID,
		NewSeedID:     current.ID,
		NewCommitment: current.Commitment,
		EngineVersion: EngineVersion,
	}
	if old != nil {
		resp.OldSeedID = old.ID
		resp.OldCommitment = old.Commitment
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	seed, err := s.registry.Reveal(chi.URLParam(r, "chainID"), chi.URLParam(r, "seedID"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RevealResponse{
		SeedID:        seed.ID,
		ChainID:       seed.ChainID,
		Secret:        seed.Secret,
		Commitment:    seed.Commitment,
		RevealedAt:    seed.RevealedAt,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleReplayScan(w http.ResponseWriter, r *http.Request) {
	var req replay.Request
	if !s.decode(w, r, &req) {
		return
	}
	if req.Seeds.Server == "" {
		s.errorHandler.HandleValidationError(w, r, "seeds.server", "revealed server seed is required")
		return
	}

	result, err := s.scanner.Scan(r.Context(), req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ReplayResponse{
		Hits:          result.Hits,
		Summary:       result.Summary,
		Echo:          req,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleGetControls(w http.ResponseWriter, r *http.Request) {
	global, users := s.controller.Snapshot()
	s.writeJSON(w, http.StatusOK, ControlsResponse{
		Global:        global,
		UserControls:  users,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleSetGlobalControl(w http.ResponseWriter, r *http.Request) {
	var req GlobalControlRequest
	if !s.decode(w, r, &req) {
		return
	}
	switch req.Mode {
	case control.ModeNormal, control.ModeForceWin, control.ModeForceLose:
	default:
		s.errorHandler.HandleValidationError(w, r, "mode", "mode must be NORMAL, FORCE_WIN or FORCE_LOSE")
		return
	}

	err := s.controller.SetGlobal(control.GlobalControl{
		Mode:             req.Mode,
		GameIDs:          req.GameIDs,
		TargetMultiplier: req.TargetMultiplier,
		Exact:            req.Exact,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	global, _ := s.controller.Snapshot()
	s.writeJSON(w, http.StatusOK, global)
}

func (s *Server) handleDeleteGlobalControl(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ClearGlobal(); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetUserControl(w http.ResponseWriter, r *http.Request) {
	var req UserControlRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctl := control.UserGameControl{
		UserID:          req.UserID,
		GameID:          req.GameID,
		OutcomeType:     req.OutcomeType,
		ExactMultiplier: req.ExactMultiplier,
		MinMultiplier:   req.MinMultiplier,
		MaxMultiplier:   req.MaxMultiplier,
		RemainingGames:  req.RemainingGames,
	}
	if err := s.controller.SetUserControl(ctl); err != nil {
		s.errorHandler.HandleValidationError(w, r, "control", err.Error())
		return
	}

	_, users := s.controller.Snapshot()
	for _, u := range users {
		if u.UserID == req.UserID && u.GameID == req.GameID {
			s.writeJSON(w, http.StatusOK, u)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUserControl(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.DeleteUserControl(chi.URLParam(r, "controlID")); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetControls(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Reset(); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Amount.LessThanOrEqual(decimal.Zero) {
		s.errorHandler.HandleValidationError(w, r, "amount", "user_id and a positive amount are required")
		return
	}

	s.ledger.Deposit(req.UserID, req.Amount)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": req.UserID,
		"balance": s.ledger.Balance(req.UserID),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}
