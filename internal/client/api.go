package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	httpapi "github.com/Wyydra/yacall/internal/adapter/driving/http"
	"github.com/Wyydra/yacall/internal/core/domain"
)

// API is a typed client of the call endpoints, acting as one user.
type API struct {
	base string
	user domain.UserID
	http *http.Client
}

func NewAPI(base string, user domain.UserID, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{base: base, user: user, http: hc}
}

func (a *API) User() domain.UserID {
	return a.user
}

func (a *API) CreateCall(ctx context.Context, chat string, t domain.CallType, invited []domain.UserID) (domain.CallID, error) {
	var out httpapi.CreateCallResponse
	req := httpapi.CreateCallRequest{Chat: chat, Type: string(t), Invited: invited}
	err := a.do(ctx, http.MethodPost, "/calls", req, &out)
	return out.ID, err
}

func (a *API) OngoingCalls(ctx context.Context) ([]domain.CallID, error) {
	var out httpapi.OngoingCallsResponse
	if err := a.do(ctx, http.MethodGet, "/calls/ongoing", nil, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

func (a *API) GetCallInfo(ctx context.Context, id domain.CallID) (*domain.CallInfo, error) {
	var out domain.CallInfo
	if err := a.do(ctx, http.MethodGet, "/calls/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Connect(ctx context.Context, id domain.CallID) error {
	return a.do(ctx, http.MethodPost, "/calls/"+id.String()+"/connect", nil, nil)
}

func (a *API) LeaveCall(ctx context.Context, id domain.CallID) error {
	return a.do(ctx, http.MethodPost, "/calls/"+id.String()+"/leave", nil, nil)
}

func (a *API) UpdateSDPData(ctx context.Context, id domain.CallID, fragment domain.SDPFragment, forced bool) (domain.SDPUpdateResults, error) {
	var out httpapi.UpdateSDPResponse
	if err := a.do(ctx, http.MethodPost, "/calls/"+id.String()+"/sdp", httpapi.UpdateSDPRequest{Data: fragment, Forced: forced}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (a *API) SendIceCandidate(ctx context.Context, id domain.CallID, target domain.UserID, candidate json.RawMessage) error {
	return a.do(ctx, http.MethodPost, "/calls/"+id.String()+"/ice", httpapi.IceCandidateRequest{Member: target, Candidate: candidate}, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", a.user.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// statusError maps an error response back to the domain sentinel errors.
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, domain.ErrCallNotFound)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", msg, domain.ErrUnauthorized)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", msg, domain.ErrInvalidArgument)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, domain.ErrInvalidState)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
}
