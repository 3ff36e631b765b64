package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
	"github.com/munyaradzichiondegwa/vision-2030-platform/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type healthResponse struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"store_latency_ms"`
}

type meResponse struct {
	AccountID   string   `json:"account_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// register handles POST /auth/register
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req authcore.RegisterRequest
	if !a.decode(w, r, &req) {
		return
	}

	acc, err := a.engine.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

// login handles POST /auth/login
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}

	res, err := a.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// refresh handles POST /auth/refresh
func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decode(w, r, &req) {
		return
	}

	pair, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// logout handles POST /auth/logout
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := a.engine.Logout(r.Context(), claims.AccountID); err != nil {
		a.writeError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// me handles GET /auth/me
func (a *API) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	perms := a.engine.PermissionsOf(claims.Role)
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, meResponse{
		AccountID:   claims.AccountID,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: perms,
	})
}

// changeRole handles PUT /admin/accounts/{id}/role
func (a *API) changeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !a.decode(w, r, &req) {
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	acc, err := a.engine.ChangeRole(r.Context(), claims.AccountID, mux.Vars(r)["id"], req.Role)
	if err != nil {
		a.writeError(w, r, "change_role", err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// health handles GET /healthz
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	latency, err := a.engine.Health(r.Context())
	if err != nil {
		a.writeError(w, r, "health", err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		LatencyMS: float64(latency.Microseconds()) / 1000,
	})
}
