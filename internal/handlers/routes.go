package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.LoginLimiter, SignupCredits: deps.SignupCredits}
	tryon := TryOnHandler{Pipeline: deps.Pipeline, Sessions: deps.Sessions, History: deps.History, Limiter: deps.TryOnLimiter}
	credits := CreditsHandler{Sessions: deps.Sessions, Credits: deps.Credits}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("/tryon", tryon.Generate)
	mux.HandleFunc("/api/v1/tryons", tryon.List)
	mux.HandleFunc("/api/v1/credits", credits.Balance)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Pipeline      GenerationPipeline
	Credits       CreditReader
	History       TryOnHistory
	TryOnLimiter  RateLimiter
	LoginLimiter  RateLimiter
	SignupCredits int
}
