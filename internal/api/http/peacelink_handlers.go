package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	appEscrow "github.com/peacelink/peacelink/internal/application/escrow"
	"github.com/peacelink/peacelink/internal/domain/dispute"
	"github.com/peacelink/peacelink/internal/domain/peacelink"
	"github.com/peacelink/peacelink/internal/domain/wallet"
)

// actorFromRequest reads the acting party role from the X-Actor-Role header.
// Identity verification sits in front of this service; the engine enforces
// which role may trigger which transition.
func actorFromRequest(r *http.Request) (peacelink.Actor, bool) {
	actor := peacelink.Actor(r.Header.Get("X-Actor-Role"))
	return actor, actor.Valid()
}

// respondTransitionError maps the engine's error taxonomy onto HTTP codes.
func respondTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, peacelink.ErrNotFound), errors.Is(err, wallet.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, peacelink.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, peacelink.ErrUnauthorizedActor):
		respondError(w, http.StatusForbidden, "UNAUTHORIZED_ACTOR", err.Error())
	case errors.Is(err, peacelink.ErrTerminalState):
		respondError(w, http.StatusConflict, "TERMINAL_STATE", err.Error())
	case errors.Is(err, peacelink.ErrOTPMismatch):
		respondError(w, http.StatusUnprocessableEntity, "OTP_MISMATCH", err.Error())
	case errors.Is(err, peacelink.ErrInvalidActorForPhase):
		respondError(w, http.StatusConflict, "INVALID_ACTOR_FOR_PHASE", err.Error())
	case errors.Is(err, peacelink.ErrStaleState):
		respondError(w, http.StatusConflict, "STALE_STATE", err.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds):
		respondError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, wallet.ErrWalletHeld):
		respondError(w, http.StatusConflict, "WALLET_HELD", err.Error())
	case errors.Is(err, wallet.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case errors.Is(err, peacelink.ErrInvariantViolation):
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "transition aborted")
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

type peaceLinkCreateRequest struct {
	BuyerWalletID    string `json:"buyer_wallet_id"`
	MerchantWalletID string `json:"merchant_wallet_id"`
	ItemAmount       int64  `json:"item_amount"`
	DeliveryAmount   int64  `json:"delivery_amount"`
	AdvanceEnabled   bool   `json:"advance_enabled,omitempty"`
	AdvanceAmount    int64  `json:"advance_amount,omitempty"`
}

func (s *Server) createPeaceLink(w http.ResponseWriter, r *http.Request) {
	var req peaceLinkCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	buyerID, err := uuidFromString(req.BuyerWalletID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid buyer_wallet_id")
		return
	}
	merchantID, err := uuidFromString(req.MerchantWalletID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid merchant_wallet_id")
		return
	}
	pl, err := s.escrowSvc.CreatePeaceLink(r.Context(), appEscrow.CreateParams{
		BuyerWalletID:    buyerID,
		MerchantWalletID: merchantID,
		ItemAmount:       req.ItemAmount,
		DeliveryAmount:   req.DeliveryAmount,
		AdvanceEnabled:   req.AdvanceEnabled,
		AdvanceAmount:    req.AdvanceAmount,
	})
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, pl)
}

func (s *Server) listPeaceLinks(w http.ResponseWriter, r *http.Request) {
	state := peacelink.State(r.URL.Query().Get("state"))
	if !state.Valid() {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "state query parameter required")
		return
	}
	limit, offset := parseLimitOffset(r, 100, 200)
	links, err := s.escrowSvc.ListByState(r.Context(), state, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"peacelinks": links})
}

func (s *Server) getPeaceLink(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "peaceLinkId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid peaceLinkId")
		return
	}
	pl, err := s.escrowSvc.GetPeaceLink(r.Context(), id)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pl)
}

func (s *Server) getPeaceLinkState(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "peaceLinkId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid peaceLinkId")
		return
	}
	state, err := s.escrowSvc.GetState(r.Context(), id)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"peacelink_id": id, "state": state})
}

func (s *Server) getAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "peaceLinkId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid peaceLinkId")
		return
	}
	trail, err := s.escrowSvc.GetAuditTrail(r.Context(), id)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"peacelink_id": id, "transitions": trail})
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, s.escrowSvc.Approve)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, s.escrowSvc.Cancel)
}

func (s *Server) dspCancel(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, s.escrowSvc.DSPCancel)
}

func (s *Server) openDispute(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, s.escrowSvc.OpenDispute)
}

type assignDSPRequest struct {
	DSPWalletID string `json:"dsp_wallet_id"`
}

func (s *Server) assignDSP(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "peaceLinkId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid peaceLinkId")
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor-Role header required")
		return
	}
	var req assignDSPRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	dspID, err := uuidFromString(req.DSPWalletID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dsp_wallet_id")
		return
	}
	res, err := s.escrowSvc.AssignDSP(r.Context(), id, dspID, actor)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type verifyOTPRequest struct {
	Code string `json:"code"`
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "peaceLinkId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid peaceLinkId")
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor-Role header required")
		return
	}
	var req verifyOTPRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.escrowSvc.VerifyOTP(r.Context(), id, req.Code, actor)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type resolveDisputeRequest struct {
	BuyerShare    int64 `json:"buyer_share"`
	MerchantShare int64 `json:"merchant_share"`
	PlatformShare int64 `json:"platform_share"`
}

func (s *Server) resolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "peaceLinkId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid peaceLinkId")
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor-Role header required")
		return
	}
	var req resolveDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.escrowSvc.ResolveDispute(r.Context(), id, dispute.Decision{
		BuyerShare:    req.BuyerShare,
		MerchantShare: req.MerchantShare,
		PlatformShare: req.PlatformShare,
	}, actor)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID, actor peacelink.Actor) (*appEscrow.Result, error)) {
	id, err := parseUUIDParam(r, "peaceLinkId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid peaceLinkId")
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "X-Actor-Role header required")
		return
	}
	res, err := fn(r.Context(), id, actor)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
