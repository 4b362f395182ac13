package httpapi

import (
	"net/http"

	"github.com/peacelink/peacelink/internal/domain/wallet"
)

type walletCreateRequest struct {
	Role    string `json:"role"`
	Contact string `json:"contact"`
}

func (s *Server) createWallet(w http.ResponseWriter, r *http.Request) {
	var req walletCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	created, err := s.walletSvc.CreateWallet(r.Context(), wallet.Role(req.Role), req.Contact)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "walletId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid walletId")
		return
	}
	found, err := s.walletSvc.GetWallet(r.Context(), id)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, found)
}

type cashOutRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) cashOut(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "walletId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid walletId")
		return
	}
	var req cashOutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	fee, err := s.walletSvc.CashOut(r.Context(), id, req.Amount)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_id": id,
		"amount":    req.Amount,
		"fee":       fee,
	})
}
