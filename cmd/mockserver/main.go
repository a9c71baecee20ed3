// mockserver is a development stand-in for the shop backend. It serves the
// cart and product endpoints from memory, with short-lived access tokens so
// the client's refresh path gets exercised for real.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/shop_client/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Config struct {
	HTTPPort        string
	AccessTTL       time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	ttl := 30 * time.Second
	if raw := os.Getenv("ACCESS_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid ACCESS_TTL %q: %v", raw, err)
		}
		ttl = parsed
	}
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		AccessTTL:       ttl,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type session struct {
	userID    string
	expiresAt time.Time
}

type store struct {
	mu       sync.Mutex
	products map[string]domain.Product
	carts    map[string][]domain.CartLine // userID -> lines
	access   map[string]session           // accessToken -> session
	refresh  map[string]string            // refreshToken -> userID
	nextLine int

	accessTTL time.Duration
}

func newStore(accessTTL time.Duration) *store {
	s := &store{
		products:  make(map[string]domain.Product),
		carts:     make(map[string][]domain.CartLine),
		access:    make(map[string]session),
		refresh:   make(map[string]string),
		accessTTL: accessTTL,
	}
	for _, p := range seedProducts() {
		s.products[p.ID] = p
	}
	return s
}

func seedProducts() []domain.Product {
	return []domain.Product{
		{ID: "p1", SellerID: "s1", SellerName: "Kopi Nusantara", Title: "Arabica Beans 500g", ImageURL: "/img/p1.jpg", Price: 100000, Stock: 25},
		{ID: "p2", SellerID: "s1", SellerName: "Kopi Nusantara", Title: "Pour-over Kettle", ImageURL: "/img/p2.jpg", Price: 350000, Stock: 8},
		{ID: "p3", SellerID: "s2", SellerName: "Batik House", Title: "Batik Shirt", ImageURL: "/img/p3.jpg", Price: 250000, Stock: 12},
		{ID: "p4", SellerID: "s2", SellerName: "Batik House", Title: "Batik Scarf", ImageURL: "/img/p4.jpg", Price: 75000, Stock: 40},
	}
}

func (s *store) issueTokens(userID string) domain.TokenPair {
	pair := domain.TokenPair{
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: "refresh-" + uuid.NewString(),
	}
	s.access[pair.AccessToken] = session{userID: userID, expiresAt: time.Now().Add(s.accessTTL)}
	s.refresh[pair.RefreshToken] = userID
	return pair
}

func (s *store) userFor(accessToken string) (string, bool) {
	sess, ok := s.access[accessToken]
	if !ok || time.Now().After(sess.expiresAt) {
		return "", false
	}
	return sess.userID, true
}

func (s *store) newLineID() string {
	s.nextLine++
	return fmt.Sprintf("srv-%d", s.nextLine)
}

type api struct {
	store *store
}

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func main() {
	cfg := loadConfig()
	a := &api{store: newStore(cfg.AccessTTL)}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/auth/login", a.login)
	r.Post("/auth/refresh", a.refreshTokens)
	r.Get("/products", a.getProducts)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/cart", a.getCart)
		r.Post("/cart", a.addToCart)
		r.Patch("/cart/items/{id}", a.updateQuantity)
		r.Delete("/cart/items/{id}", a.removeItem)
		r.Post("/cart/sync", a.syncCart)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("mock shop API listening on :%s (access token TTL %s)", cfg.HTTPPort, cfg.AccessTTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down mock server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("server exited")
}

type userIDKey struct{}

func (a *api) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		a.store.mu.Lock()
		userID, ok := a.store.userFor(token)
		a.store.mu.Unlock()
		if token == "" || !ok {
			respondError(w, http.StatusUnauthorized, "access token missing or expired", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required", nil)
		return
	}

	// Any credentials work in the mock; the user id derives from the email.
	id := "user-" + strings.SplitN(req.Email, "@", 2)[0]

	a.store.mu.Lock()
	pair := a.store.issueTokens(id)
	a.store.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]string{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"userId":       id,
	})
}

func (a *api) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	id, ok := a.store.refresh[req.RefreshToken]
	if !ok {
		respondError(w, http.StatusUnauthorized, "refresh token invalid", nil)
		return
	}

	// Rotate: the old refresh token is single-use.
	delete(a.store.refresh, req.RefreshToken)
	pair := a.store.issueTokens(id)
	respondJSON(w, http.StatusOK, pair)
}

func (a *api) getProducts(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	items := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := a.store.products[id]; ok {
			items = append(items, p)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *api) getCart(w http.ResponseWriter, r *http.Request) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"items": a.store.carts[userID(r)]})
}

func (a *api) addToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string  `json:"productId"`
		VariantID *string `json:"variantId"`
		Quantity  int     `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}
	if err := domain.ValidateQuantity(req.Quantity); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "validation failed",
			map[string][]string{"quantity": {err.Error()}})
		return
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	if _, ok := a.store.products[req.ProductID]; !ok {
		respondError(w, http.StatusNotFound, "product not found", nil)
		return
	}

	id := userID(r)
	now := time.Now().UTC()
	for i, line := range a.store.carts[id] {
		if line.SameKey(req.ProductID, req.VariantID) {
			// Same key: absorb into the existing line.
			a.store.carts[id][i].Quantity = req.Quantity
			a.store.carts[id][i].UpdatedAt = now
			respondJSON(w, http.StatusOK, a.store.carts[id][i])
			return
		}
	}

	line := domain.CartLine{
		ID:        a.store.newLineID(),
		UserID:    id,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		AddedAt:   now,
		UpdatedAt: now,
	}
	a.store.carts[id] = append(a.store.carts[id], line)
	respondJSON(w, http.StatusCreated, line)
}

func (a *api) updateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "id")
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}
	if err := domain.ValidateQuantity(req.Quantity); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "validation failed",
			map[string][]string{"quantity": {err.Error()}})
		return
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	id := userID(r)
	for i, line := range a.store.carts[id] {
		if line.ID == lineID {
			a.store.carts[id][i].Quantity = req.Quantity
			a.store.carts[id][i].UpdatedAt = time.Now().UTC()
			respondJSON(w, http.StatusOK, a.store.carts[id][i])
			return
		}
	}
	respondError(w, http.StatusNotFound, "cart line not found", nil)
}

func (a *api) removeItem(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "id")

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	id := userID(r)
	for i, line := range a.store.carts[id] {
		if line.ID == lineID {
			a.store.carts[id] = append(a.store.carts[id][:i], a.store.carts[id][i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respondError(w, http.StatusNotFound, "cart line not found", nil)
}

func (a *api) syncCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []domain.CartLine `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	id := userID(r)
	now := time.Now().UTC()
	for _, pushed := range req.Items {
		if _, ok := a.store.products[pushed.ProductID]; !ok {
			continue // deleted products silently drop out of the merge
		}
		merged := false
		for i, line := range a.store.carts[id] {
			if line.SameKey(pushed.ProductID, pushed.VariantID) {
				if pushed.Quantity > line.Quantity {
					a.store.carts[id][i].Quantity = pushed.Quantity
					a.store.carts[id][i].UpdatedAt = now
				}
				merged = true
				break
			}
		}
		if !merged {
			pushed.ID = a.store.newLineID()
			pushed.UserID = id
			pushed.UpdatedAt = now
			a.store.carts[id] = append(a.store.carts[id], pushed)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": a.store.carts[id]})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, fields map[string][]string) {
	respondJSON(w, status, errorResponse{Message: message, Errors: fields})
}
