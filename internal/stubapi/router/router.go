package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go-storefront-session/internal/stubapi/handler"
	"go-storefront-session/internal/stubapi/middleware"
)

type Options struct {
	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	RequestTimeout   time.Duration
	Logger           *slog.Logger
}

type Handlers struct {
	Auth *handler.AuthHandler
	Cart *handler.CartHandler
}

func New(opts Options, authMiddleware *middleware.AuthMiddleware, handlers Handlers) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(opts.RateLimitRPM, opts.AuthRateLimitRPM, "/api/auth")

	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(middleware.CORS(opts.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(opts.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", handlers.Auth.Login)
			auth.Post("/register", handlers.Auth.Register)
			auth.Post("/refresh", handlers.Auth.Refresh)
			auth.With(authMiddleware.RequireAuth).Post("/logout", handlers.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/profile", handlers.Auth.Profile)
			auth.With(authMiddleware.RequireAuth).Put("/profile", handlers.Auth.UpdateProfile)
			auth.With(authMiddleware.RequireAuth).Put("/change-password", handlers.Auth.ChangePassword)
		})

		api.With(authMiddleware.RequireAuth).Get("/cart", handlers.Cart.Get)
		api.With(authMiddleware.RequireAuth).Put("/cart", handlers.Cart.Replace)

		api.Get("/product", handlers.Cart.ListProducts)
		api.Get("/product/{id}", handlers.Cart.GetProduct)
	})

	return r
}
