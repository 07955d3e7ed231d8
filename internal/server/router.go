package server

import (
	"net/http"

	"github.com/cloo-solutions/coursetutor/internal/api"
	"github.com/cloo-solutions/coursetutor/internal/api/handlers"
	"github.com/cloo-solutions/coursetutor/internal/api/middleware"
	"github.com/cloo-solutions/coursetutor/internal/metrics"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes int64 = 25 * 1024 * 1024

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	AuthHandler     *handlers.AuthHandler
	CourseHandler   *handlers.CourseHandler
	DocumentHandler *handlers.DocumentHandler
	ChatHandler     *handlers.ChatHandler
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	MaxBodyBytes    int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger, cfg.Metrics))
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Post("/auth/login", cfg.AuthHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Get("/auth/me", cfg.AuthHandler.Me)
		r.Post("/auth/keys", cfg.AuthHandler.CreateAPIKey)

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", cfg.CourseHandler.List)
			r.With(middleware.RequireInstructor).Post("/", cfg.CourseHandler.Create)

			r.Route("/{courseID}", func(r chi.Router) {
				r.Get("/", cfg.CourseHandler.Get)
				r.Post("/enroll", cfg.CourseHandler.Enroll)
				r.Delete("/enroll", cfg.CourseHandler.Unenroll)
				r.Get("/quiz", cfg.CourseHandler.Quiz)
				r.Post("/quiz/grade", cfg.CourseHandler.GradeQuiz)

				r.Post("/chat", cfg.ChatHandler.Send)
				r.Get("/conversations", cfg.ChatHandler.ListConversations)
				r.Get("/conversations/{conversationID}", cfg.ChatHandler.GetConversation)
				r.Delete("/conversations/{conversationID}", cfg.ChatHandler.DeleteConversation)

				r.Get("/documents", cfg.DocumentHandler.List)
				r.Get("/documents/{documentID}", cfg.DocumentHandler.Get)
				r.Get("/documents/{documentID}/download", cfg.DocumentHandler.Download)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireInstructor)

					r.Delete("/", cfg.CourseHandler.Delete)
					r.Get("/report", cfg.CourseHandler.Report)
					r.Post("/documents", cfg.DocumentHandler.Upload)
					r.Put("/documents/{documentID}/availability", cfg.DocumentHandler.SetAvailability)
					r.Delete("/documents/{documentID}", cfg.DocumentHandler.Delete)
				})
			})
		})
	})

	return r
}
