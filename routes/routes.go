package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/runbattle/runbattle-server/handlers"
	"github.com/runbattle/runbattle-server/middleware"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	User      *handlers.UserHandler
	Run       *handlers.RunHandler
	Battle    *handlers.BattleHandler
	Crew      *handlers.CrewHandler
	WebSocket *handlers.WebSocketHandler
}

func SetupRoutes(h Handlers, jwtSecret []byte) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
	})

	router.Route("/users", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/leaderboard", h.User.Leaderboard)
		r.Get("/me", h.User.GetMe)
		r.Put("/me", h.User.UpdateMe)
		r.Post("/me/avatar", h.User.UploadAvatar)
		r.Get("/{userID}", h.User.GetByID)
	})

	router.Route("/runs", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", h.Run.LogRun)
		r.Get("/", h.Run.ListRuns)
		r.Get("/{runID}", h.Run.GetRun)
	})

	router.Route("/battles", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/matchmaking", h.Battle.FindMatch)
		r.Get("/", h.Battle.ListForUser)
		r.Get("/{battleID}", h.Battle.GetByID)
		r.Post("/{battleID}/start", h.Battle.Start)
		r.Post("/{battleID}/results", h.Battle.SubmitResult)
		r.Delete("/{battleID}", h.Battle.Cancel)
	})

	router.Route("/crews", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/", h.Crew.List)
		r.Get("/{crewID}", h.Crew.GetByID)
		r.Get("/{crewID}/members", h.Crew.ListMembers)
		r.Post("/", h.Crew.Create)
		r.Post("/{crewID}/join", h.Crew.Join)
		r.Delete("/{crewID}/leave", h.Crew.Leave)
		r.Put("/{crewID}", h.Crew.Update)
		r.Delete("/{crewID}", h.Crew.Delete)
	})

	router.Get("/ws/battles/{battleID}", h.WebSocket.ServeWs)

	return router
}
