package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pcollard/wordhall/internal/auth"
	"github.com/pcollard/wordhall/internal/storage/postgres"
)

// API serves the REST endpoints around the game: account registration,
// login, and the leaderboard.
type API struct {
	accounts *postgres.AccountRepository
	scores   *postgres.ScoreRepository
	tokens   *auth.Manager
	logger   *zap.Logger
}

// NewAPI creates the REST handler set.
//
// Precondition: all arguments must be non-nil.
func NewAPI(accounts *postgres.AccountRepository, scores *postgres.ScoreRepository, tokens *auth.Manager, logger *zap.Logger) *API {
	return &API{
		accounts: accounts,
		scores:   scores,
		tokens:   tokens,
		logger:   logger,
	}
}

// NewRouter builds the HTTP routing table for the server.
func NewRouter(api *API, game *GameHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/register", api.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/login", api.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/leaderboard", api.Leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/healthz", api.Health).Methods(http.MethodGet)
	r.Handle("/ws", game)
	return r
}

type credentialsRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password"`
}

type tokenResponse struct {
	Token       string `json:"token"`
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Debug("writing response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

func validCredentials(req credentialsRequest) string {
	if len(req.Username) < 3 || len(req.Username) > 24 {
		return "username must be 3-24 characters"
	}
	for _, r := range req.Username {
		if r != '_' && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return "username may contain letters, numbers, and underscore only"
		}
	}
	if len(req.Password) < 8 || len(req.Password) > 72 {
		return "password must be 8-72 characters"
	}
	return ""
}

// Register creates an account and returns a signed player token.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validCredentials(req); msg != "" {
		a.writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	acct, err := a.accounts.Create(r.Context(), req.Username, req.DisplayName, req.Password)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountExists) {
			a.writeError(w, http.StatusConflict, "username already taken")
			return
		}
		a.logger.Error("creating account", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.issueToken(w, acct)
}

// Login verifies credentials and returns a signed player token.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := a.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountNotFound) || errors.Is(err, postgres.ErrInvalidCredentials) {
			a.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		a.logger.Error("authenticating account", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.issueToken(w, acct)
}

func (a *API) issueToken(w http.ResponseWriter, acct postgres.Account) {
	playerID := strconv.FormatInt(acct.ID, 10)
	token, err := a.tokens.Issue(playerID, acct.DisplayName)
	if err != nil {
		a.logger.Error("issuing token", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.writeJSON(w, http.StatusOK, tokenResponse{
		Token:       token,
		PlayerID:    playerID,
		DisplayName: acct.DisplayName,
	})
}

// Leaderboard returns players ranked by total score across finished games.
func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			a.writeError(w, http.StatusBadRequest, "limit must be 1-100")
			return
		}
		limit = n
	}

	totals, err := a.scores.TopPlayers(r.Context(), limit)
	if err != nil {
		a.logger.Error("querying leaderboard", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if totals == nil {
		totals = []postgres.PlayerTotal{}
	}
	a.writeJSON(w, http.StatusOK, totals)
}

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
