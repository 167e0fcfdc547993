package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/isometry/adauth/internal/identity"
)

// maxBodyBytes caps the /auth_ad request body.
const maxBodyBytes = 64 << 10

// Resolver authenticates a username. *identity.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, username, password string) identity.Result
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authSuccess struct {
	Success bool                `json:"success"`
	User    string              `json:"user"`
	Cached  bool                `json:"cached"`
	Profile *identity.Principal `json:"profile,omitempty"`
}

type authFailure struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Candidates []string `json:"candidates"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type authHandler struct {
	resolver Resolver
	logger   hclog.Logger
}

// Authenticate handles POST /auth_ad.
func (h *authHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Debug("Malformed request body", "error", err.Error())
		req = authRequest{}
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and password are required"})
		return
	}

	result := h.resolver.Resolve(r.Context(), username, req.Password)
	requestID := middleware.GetReqID(r.Context())

	if !result.OK {
		h.logger.Info("Authentication failed",
			"request_id", requestID,
			"username", username,
			"reason", string(result.Reason),
			"candidates", result.Candidates,
		)
		candidates := result.Candidates
		if candidates == nil {
			candidates = []string{}
		}
		writeJSON(w, http.StatusUnauthorized, authFailure{
			Success:    false,
			Message:    string(result.Reason),
			Candidates: candidates,
		})
		return
	}

	h.logger.Info("Authentication succeeded",
		"request_id", requestID,
		"user", result.User,
		"cached", result.Cached,
		"path", result.Path,
	)

	resp := authSuccess{Success: true, User: result.User, Cached: result.Cached}
	if p := result.Principal; p != nil && p.DN != "" {
		resp.Profile = p
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
