package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"drugstock/m/domain"
	"drugstock/m/internal/query"
	"drugstock/m/internal/stock"
)

type ctxKey string

const ctxUserID ctxKey = "userID"

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db     *sqlx.DB
	stock  *stock.Service
	secret string
	logger *zap.Logger
}

// New constructs a Handler.
func New(db *sqlx.DB, stockSvc *stock.Service, secret string, logger *zap.Logger) *Handler {
	return &Handler{db: db, stock: stockSvc, secret: secret, logger: logger}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/drugs", func(r chi.Router) {
			r.Get("/", h.listDrugs)
			r.Post("/", h.createDrug)
			r.Get("/forms", h.dosageForms)
			r.Put("/{id}", h.updateDrug)
			r.Delete("/{id}", h.deleteDrug)
			r.Post("/{id}/adjust", h.adjustUnits)
			r.Get("/{id}/transactions", h.listTransactions)
		})

		pr.Get("/stats", h.statsHandler)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger emits one structured line per request.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Authentication helpers

type authClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64) (string, error) {
	claims := authClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Auth handlers

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user, `SELECT id, name, email, password, created_at FROM users WHERE email = $1`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	uid := r.Context().Value(ctxUserID).(int64)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = $1 WHERE id = $2`, hashed, uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Drug handlers

func (h *Handler) listDrugs(w http.ResponseWriter, r *http.Request) {
	params := query.Params{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		SortField:  strings.TrimSpace(r.URL.Query().Get("sort_field")),
		SortOrder:  strings.TrimSpace(r.URL.Query().Get("sort_order")),
		Ingredient: r.URL.Query().Get("ingredient"),
	}
	var err error
	if params.Page, err = intParam(r, "page"); err != nil {
		respondError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	if params.PageSize, err = intParam(r, "page_size"); err != nil {
		respondError(w, http.StatusBadRequest, "page_size must be an integer")
		return
	}

	drugs, err := h.stock.List(r.Context())
	if err != nil {
		h.logger.Error("unable to load catalog", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list drugs")
		return
	}

	result, err := query.Apply(drugs, params)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) createDrug(w http.ResponseWriter, r *http.Request) {
	var in domain.DrugInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	drug, err := h.stock.Create(r.Context(), in)
	if err != nil {
		h.respondStockError(w, err, "unable to create drug")
		return
	}
	respondJSON(w, http.StatusCreated, drug)
}

func (h *Handler) updateDrug(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid drug id")
		return
	}
	var in domain.DrugInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	drug, err := h.stock.Update(r.Context(), id, in)
	if err != nil {
		h.respondStockError(w, err, "unable to update drug")
		return
	}
	respondJSON(w, http.StatusOK, drug)
}

func (h *Handler) deleteDrug(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid drug id")
		return
	}
	drug, err := h.stock.Delete(r.Context(), id)
	if err != nil {
		h.respondStockError(w, err, "unable to delete drug")
		return
	}
	respondJSON(w, http.StatusOK, drug)
}

type adjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) adjustUnits(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid drug id")
		return
	}
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	drug, err := h.stock.AdjustUnits(r.Context(), id, req.Delta, req.Reason)
	if err != nil {
		h.respondStockError(w, err, "unable to adjust stock")
		return
	}
	respondJSON(w, http.StatusOK, drug)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid drug id")
		return
	}
	txs, err := h.stock.Transactions(r.Context(), id)
	if err != nil {
		h.logger.Error("unable to load ledger", zap.Int64("drug_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

func (h *Handler) dosageForms(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, domain.DosageForms)
}

func (h *Handler) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stock.Stats(r.Context())
	if err != nil {
		h.logger.Error("unable to compute stats", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to compute stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) respondStockError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, stock.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stock.ErrDrugNotFound):
		respondError(w, http.StatusNotFound, "drug not found")
	default:
		h.logger.Error(fallback, zap.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

// Helpers

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
