package http

import (
	"context"
	"net/http"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background work owned by the router's middleware.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.Tokens, deps.AccountRepo)

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	secure := cfg.IsProduction()
	healthH := handler.NewHealthHandler(cfg.AppEnv)
	regH := handler.NewRegistrationHandler(deps.Accounts)
	sessionH := handler.NewSessionHandler(deps.Sessions, secure)
	verifyH := handler.NewVerificationHandler(deps.Auth, deps.OTP, secure)
	pwH := handler.NewPasswordHandler(deps.Auth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(sensitiveRL.Limit)

				r.Post("/register-customer", regH.RegisterCustomer)
				r.Post("/register-vendor", regH.RegisterVendor)
				r.Post("/register-deliveryman", regH.RegisterDeliveryMan)
				r.Post("/login", sessionH.Login)
				r.Post("/send-otp", verifyH.SendOTP)
				r.Post("/verify-otp", verifyH.VerifyOTP)
				r.Post("/forgot-password", pwH.Forgot)
				r.Post("/reset-password", pwH.Reset)
			})
			r.Get("/verify-email", verifyH.VerifyEmail)
			r.Post("/refresh-token", sessionH.Refresh)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleSuperAdmin))

			r.Post("/admins", regH.CreateAdmin)
		})
	})

	return r
}
