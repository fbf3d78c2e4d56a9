package services

import (
	"net/http"
	"time"

	"dbplane/controlplane/auth"
	"dbplane/utils"
)

// TokenService issues tenant-scoped access tokens. Credential verification
// sits outside this service, only claim issuance lives here.
type TokenService struct {
	jwt      *auth.JwtManager
	tokenTtl time.Duration
}

type tokenRequest struct {
	TenantId string `json:"tenantId"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *TokenService) IssueToken(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if !auth.ValidTenantId(params.TenantId) {
		http.Error(w, "invalid tenant id format", http.StatusBadRequest)
		return
	}

	token, err := s.jwt.CreateTenantJwt(params.TenantId, s.tokenTtl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJsonResponse(w, tokenResponse{Token: token})
}
