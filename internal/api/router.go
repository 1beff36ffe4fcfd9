/**
 * @description
 * This file sets up the HTTP router for the credential-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, timeouts and CORS.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for chi.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// CredentialRoutes creates and returns the router for the credential service.
func CredentialRoutes(h *CredentialHandlers, allowedOrigins, gatewayJWTSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(allowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Credential service is healthy"))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.RegisterHandler)
		r.Post("/verify-email", h.VerifyEmailHandler)
		r.Post("/password-reset/request", h.RequestPasswordResetHandler)
		r.Post("/password-reset/confirm", h.ConfirmPasswordResetHandler)
		r.Post("/otp/request", h.RequestOTPHandler)
		r.Post("/otp/verify", h.VerifyOTPHandler)

		// Routes acting on behalf of an authenticated user.
		r.Group(func(r chi.Router) {
			r.Use(GatewayAuthMiddleware(gatewayJWTSecret))
			r.Post("/verification/resend", h.ResendVerificationHandler)
		})
	})

	return r
}
