package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appEscrow "github.com/peacelink/peacelink/internal/application/escrow"
	appWallet "github.com/peacelink/peacelink/internal/application/wallet"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	escrowSvc *appEscrow.Service
	walletSvc *appWallet.Service
	registry  *prometheus.Registry
}

func NewServer(escrowSvc *appEscrow.Service, walletSvc *appWallet.Service, registry *prometheus.Registry) *Server {
	return &Server{
		escrowSvc: escrowSvc,
		walletSvc: walletSvc,
		registry:  registry,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/wallets", func(r chi.Router) {
			r.Post("/", s.createWallet)
			r.Get("/{walletId}", s.getWallet)
			r.Post("/{walletId}/cash-out", s.cashOut)
		})

		r.Route("/peacelinks", func(r chi.Router) {
			r.Post("/", s.createPeaceLink)
			r.Get("/", s.listPeaceLinks)
			r.Get("/{peaceLinkId}", s.getPeaceLink)
			r.Get("/{peaceLinkId}/state", s.getPeaceLinkState)
			r.Get("/{peaceLinkId}/transitions", s.getAuditTrail)
			r.Post("/{peaceLinkId}/approve", s.approve)
			r.Post("/{peaceLinkId}/assign-dsp", s.assignDSP)
			r.Post("/{peaceLinkId}/verify-otp", s.verifyOTP)
			r.Post("/{peaceLinkId}/cancel", s.cancel)
			r.Post("/{peaceLinkId}/dsp-cancel", s.dspCancel)
			r.Post("/{peaceLinkId}/dispute", s.openDispute)
			r.Post("/{peaceLinkId}/resolve", s.resolveDispute)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func uuidFromString(val string) (uuid.UUID, error) {
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
