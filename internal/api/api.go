// Package api exposes a read-only HTTP view of the marketplace alongside
// the line protocol: token auth, current listings, and account info. All
// mutations go through the TCP protocol.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/domain/models"
	"github.com/tradepost/tradepost/internal/lib/jwt"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

type ctxKey string

const usernameKey ctxKey = "username"

const tokenTTL = 24 * time.Hour

type APIServer struct {
	config    *config.Config
	logger    *slog.Logger
	store     *memory.Store
	server    *http.Server
	jwtSecret []byte
}

func New(config *config.Config, logger *slog.Logger, store *memory.Store, jwtSecret []byte) *APIServer {
	return &APIServer{
		config: config,
		logger: logger,
		store:  store,
		server: &http.Server{
			Addr: config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
		},
		jwtSecret: jwtSecret,
	}
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting API server", slog.String("port", strconv.Itoa(s.config.ApiPort)))

	s.configureRouter()

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start API server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("API server successfully stopped")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) configureRouter() {
	router := mux.NewRouter()
	router.HandleFunc("/api/auth", s.authHandler()).Methods("POST")
	router.HandleFunc("/api/items", s.itemsHandler()).Methods("GET")
	router.HandleFunc("/api/items/{item}", s.itemHandler()).Methods("GET")
	router.HandleFunc("/api/info", s.authenticate(s.infoHandler())).Methods("GET")
	s.server.Handler = router
}

type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

func (s *APIServer) authHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := s.store.Authenticate(req.Username, req.Password); err != nil {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		token, err := jwt.NewToken(req.Username, string(s.jwtSecret), tokenTTL)
		if err != nil {
			s.logger.Error("Failed to sign token", "error", err)
			http.Error(w, "Token error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(AuthResponse{Token: token}); err != nil {
			return
		}
	}
}

func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHeader := r.Header.Get("Authorization")
		if tokenHeader == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(tokenHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid token format", http.StatusUnauthorized)
			return
		}

		claims, err := jwt.ParseToken(parts[1], string(s.jwtSecret))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		username, ok := claims["username"].(string)
		if !ok {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), usernameKey, username))
		next(w, r)
	}
}

func (s *APIServer) itemsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		items := s.store.Marketplace()
		if items == nil {
			items = []models.Item{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(items); err != nil {
			return
		}
	}
}

func (s *APIServer) itemHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		item, err := s.store.FindListed(vars["item"])
		if err != nil {
			http.Error(w, "Item not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(item); err != nil {
			return
		}
	}
}

type InfoResponse struct {
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	Inventory []models.Item   `json:"inventory"`
	Contacts  []string        `json:"contacts"`
}

func (s *APIServer) infoHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		username, ok := r.Context().Value(usernameKey).(string)
		if !ok {
			http.Error(w, "Invalid user", http.StatusInternalServerError)
			return
		}

		balance, err := s.store.Balance(username)
		if err != nil {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		inventory, err := s.store.OwnedItems(username)
		if err != nil {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		if inventory == nil {
			inventory = []models.Item{}
		}
		contacts, err := s.store.ContactsOf(username)
		if err != nil {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}

		res := InfoResponse{
			Username:  username,
			Balance:   balance,
			Inventory: inventory,
			Contacts:  contacts,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			return
		}
	}
}
