package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/claim"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/middleware"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

type ClaimHandler struct {
	service *claim.Service
	logger  logger.Logger
}

func NewClaimHandler(service *claim.Service, log logger.Logger) *ClaimHandler {
	return &ClaimHandler{service: service, logger: log}
}

type claimCommand func(ctx context.Context, id uuid.UUID) (*domain.Claim, error)

// run parses the {id} path variable and writes the resulting claim.
func (h *ClaimHandler) run(w http.ResponseWriter, r *http.Request, cmd claimCommand) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	c, err := cmd(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// runWithBody is run for commands that take a JSON request.
func runWithBody[T any](h *ClaimHandler, w http.ResponseWriter, r *http.Request, cmd func(context.Context, uuid.UUID, *T) (*domain.Claim, error)) {
	var req T
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.run(w, r, func(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
		return cmd(ctx, id, &req)
	})
}

func (h *ClaimHandler) RequestClaim(w http.ResponseWriter, r *http.Request) {
	var req claim.RequestClaimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	c, err := h.service.RequestClaim(r.Context(), &req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *ClaimHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.GetClaim)
}

func (h *ClaimHandler) ListOrderClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.service.ListOrderClaims(r.Context(), mux.Vars(r)["orderRef"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"claims": claims,
		"total":  len(claims),
	})
}

func (h *ClaimHandler) WithdrawClaim(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.WithdrawClaim)
}

// ApproveClaim records the authenticated actor as the approver.
func (h *ClaimHandler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	h.run(w, r, func(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
		return h.service.ApproveClaim(ctx, id, actor.ID)
	})
}

func (h *ClaimHandler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	runWithBody(h, w, r, func(ctx context.Context, id uuid.UUID, req *claim.RejectClaimRequest) (*domain.Claim, error) {
		return h.service.RejectClaim(ctx, id, actor.ID, req)
	})
}

func (h *ClaimHandler) SchedulePickup(w http.ResponseWriter, r *http.Request) {
	runWithBody(h, w, r, h.service.SchedulePickup)
}

func (h *ClaimHandler) RegisterReturnShipping(w http.ResponseWriter, r *http.Request) {
	runWithBody(h, w, r, h.service.RegisterReturnShipping)
}

// ConfirmInspection records the inspection outcome of a received return. The refund follow-up runs
// on the event bus before the command returns, so the claim is read back to report where it ended up.
func (h *ClaimHandler) ConfirmInspection(w http.ResponseWriter, r *http.Request) {
	runWithBody(h, w, r, func(ctx context.Context, id uuid.UUID, req *claim.InspectionRequest) (*domain.Claim, error) {
		if _, err := h.service.ConfirmReturnReceived(ctx, id, req); err != nil {
			return nil, err
		}
		return h.service.GetClaim(ctx, id)
	})
}

func (h *ClaimHandler) RegisterExchangeShipping(w http.ResponseWriter, r *http.Request) {
	runWithBody(h, w, r, h.service.RegisterExchangeShipping)
}

func (h *ClaimHandler) ConfirmExchangeDelivered(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.ConfirmExchangeDelivered)
}

func (h *ClaimHandler) CompleteClaim(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.CompleteClaim)
}
