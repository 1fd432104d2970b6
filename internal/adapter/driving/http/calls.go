package http

import (
	"encoding/json"
	"net/http"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

type CreateCallRequest struct {
	Chat    string          `json:"chat"`
	Type    string          `json:"type"`
	Invited []domain.UserID `json:"invited"`
}

type CreateCallResponse struct {
	ID domain.CallID `json:"id"`
}

type OngoingCallsResponse struct {
	IDs []domain.CallID `json:"ids"`
}

type UpdateSDPRequest struct {
	Data   domain.SDPFragment `json:"data"`
	Forced bool               `json:"forced"`
}

type UpdateSDPResponse struct {
	Results domain.SDPUpdateResults `json:"results"`
}

type IceCandidateRequest struct {
	Member    domain.UserID   `json:"member"`
	Candidate json.RawMessage `json:"candidate"`
}

func callID(r *http.Request) domain.CallID {
	return domain.CallID(chi.URLParam(r, "id"))
}

// POST /calls
func (h *Handler) CreateCall(w http.ResponseWriter, r *http.Request) {
	var req CreateCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.CallService.CreateCall(r.Context(), UserIDFromCtx(r.Context()), req.Chat, domain.ParseCallType(req.Type), req.Invited)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateCallResponse{ID: id})
}

// GET /calls/ongoing
func (h *Handler) OngoingCalls(w http.ResponseWriter, r *http.Request) {
	ids := h.CallService.GetOngoingCallsFor(UserIDFromCtx(r.Context()))
	writeJSON(w, http.StatusOK, OngoingCallsResponse{IDs: ids})
}

// GET /calls/{id}
func (h *Handler) GetCallInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.CallService.GetCallInfo(r.Context(), callID(r), UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// POST /calls/{id}/connect
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.CallService.Connect(r.Context(), UserIDFromCtx(r.Context()), callID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /calls/{id}/leave
func (h *Handler) LeaveCall(w http.ResponseWriter, r *http.Request) {
	if err := h.CallService.LeaveCall(r.Context(), UserIDFromCtx(r.Context()), callID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /calls/{id}/sdp
func (h *Handler) UpdateSDPData(w http.ResponseWriter, r *http.Request) {
	var req UpdateSDPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	results, err := h.CallService.UpdateSDPData(r.Context(), callID(r), UserIDFromCtx(r.Context()), req.Data, req.Forced)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateSDPResponse{Results: results})
}

// POST /calls/{id}/ice
func (h *Handler) SendIceCandidate(w http.ResponseWriter, r *http.Request) {
	var req IceCandidateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.CallService.SendIceCandidate(r.Context(), callID(r), UserIDFromCtx(r.Context()), req.Member, req.Candidate); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
