package api

import (
	"encoding/json"
	"net/http"

	"dispatchd/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

type loginResponse struct {
	OK     bool     `json:"ok"`
	Token  string   `json:"token"`
	User   userView `json:"user"`
	Access []string `json:"access"`
}

type userView struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewError(KindBadRequest, "invalid JSON body"))
		return
	}
	if req.Username == "" || req.PIN == "" {
		writeError(w, NewError(KindBadRequest, "username and pin are required"))
		return
	}

	user, err := s.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, Wrap(KindInternal, "lookup user", err))
		return
	}
	if user == nil || !auth.ConstantTimeCompare(user.PIN, req.PIN) {
		writeError(w, NewError(KindUnauthenticated, "invalid username or pin"))
		return
	}

	now := s.clock()
	token, err := s.signer.Mint(user.Username, user.Role, now)
	if err != nil {
		writeError(w, Wrap(KindInternal, "mint token", err))
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		OK:     true,
		Token:  token,
		User:   userView{Username: user.Username, Role: user.Role},
		Access: auth.AccessList(user.Role),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	payload := userFromContext(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"user":   userView{Username: payload.Username, Role: payload.Role},
		"access": auth.AccessList(payload.Role),
	})
}
