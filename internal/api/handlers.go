package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/egcoder/telegram-ai-bot/internal/access"
	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/pipeline"
)

// handleVoice runs the pipeline over the request body.
// POST /api/v1/voice?lang=  (X-User-ID, body = audio)
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	lang, ok := core.ParseLanguage(r.URL.Query().Get("lang"))
	if !ok {
		s.respondError(w, r, core.NewError(core.CodeInvalidInput, "unsupported language hint"))
		return
	}

	// the pipeline reads the body only once the caller passes the gate
	res, err := s.pipeline.HandleVoiceRequest(r.Context(), pipeline.VoiceRequest{
		Identity: identityParam(r, HeaderUserID),
		Body:     http.MaxBytesReader(w, r.Body, s.maxAudio+1),
		Language: lang,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// InviteRequest is the body of POST /api/v1/invitations. TTL is a Go
// duration string; "0" never expires and an empty value uses the default.
type InviteRequest struct {
	Issuer core.Identity `json:"issuer"`
	TTL    string        `json:"ttl,omitempty"`
}

func (s *Server) handleIssueInvitation(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var ttl *time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil {
			s.respondError(w, r, core.Wrap(core.CodeInvalidInput, "parse ttl", err))
			return
		}
		ttl = &d
	}

	inv, err := s.pipeline.HandleInviteRequest(r.Context(), req.Issuer, ttl)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, inv)
}

// RedeemRequest is the body of POST /api/v1/invitations/redeem. Token may be
// the bare token or a "/start invite_<token>" message.
type RedeemRequest struct {
	Token    string        `json:"token"`
	Identity core.Identity `json:"identity"`
}

func (s *Server) handleRedeemInvitation(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	state, err := s.pipeline.HandleRedeemRequest(r.Context(), req.Token, req.Identity)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, UserResponse{Identity: req.Identity, State: state})
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	pending, err := s.pipeline.Gate().ListPending(r.Context(), identityParam(r, HeaderActorID))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if pending == nil {
		pending = []*core.InvitationToken{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"invitations": pending,
		"count":       len(pending),
	})
}

// UserResponse reports the access state of one identity.
type UserResponse struct {
	Identity core.Identity           `json:"identity"`
	State    core.AuthorizationState `json:"state"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := core.Identity(chi.URLParam(r, "id"))
	s.respondJSON(w, http.StatusOK, UserResponse{
		Identity: id,
		State:    s.pipeline.Gate().Check(r.Context(), id),
	})
}

func (s *Server) handleGrantUser(w http.ResponseWriter, r *http.Request) {
	gate := s.pipeline.Gate()
	id := core.Identity(chi.URLParam(r, "id"))
	if err := gate.Grant(r.Context(), id, identityParam(r, HeaderActorID)); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.metrics.AccessEvent(access.AuditAccessGranted)
	s.respondJSON(w, http.StatusOK, UserResponse{Identity: id, State: gate.Check(r.Context(), id)})
}

func (s *Server) handleRevokeUser(w http.ResponseWriter, r *http.Request) {
	id := core.Identity(chi.URLParam(r, "id"))
	if err := s.pipeline.Gate().Revoke(r.Context(), id, identityParam(r, HeaderActorID)); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.metrics.AccessEvent(access.AuditAccessRevoked)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	gate := s.pipeline.Gate()
	actor := identityParam(r, HeaderActorID)
	grants, err := gate.ListAuthorized(r.Context(), actor)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if grants == nil {
		grants = []core.Grant{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"users":  grants,
		"count":  len(grants),
		"admins": gate.Admins(),
	})
}
