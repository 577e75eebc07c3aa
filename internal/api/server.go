package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fairstack/engine-go/internal/auth"
	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/games"
	"github.com/fairstack/engine-go/internal/replay"
	"github.com/fairstack/engine-go/internal/seeds"
	"github.com/fairstack/engine-go/internal/settle"
	"github.com/fairstack/engine-go/internal/store"
	"github.com/fairstack/engine-go/internal/verify"
)

// Server handles HTTP requests
type Server struct {
	db           store.DB
	coordinator  *settle.Coordinator
	registry     *seeds.Registry
	controller   *control.Controller
	games        *games.Registry
	verifier     *verify.Service
	scanner      *replay.Scanner
	ledger       *settle.Ledger
	auth         *auth.Authenticator
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time
}

// Deps carries the server's collaborators. Auth may be nil, which
// disables the operator surface entirely. Ledger may be nil when an
// external wallet is wired instead of the standalone one.
type Deps struct {
	DB          store.DB
	Coordinator *settle.Coordinator
	Registry    *seeds.Registry
	Controller  *control.Controller
	Games       *games.Registry
	Verifier    *verify.Service
	Scanner     *replay.Scanner
	Ledger      *settle.Ledger
	Auth        *auth.Authenticator
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	logger := log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	return &Server{
		db:           deps.DB,
		coordinator:  deps.Coordinator,
		registry:     deps.Registry,
		controller:   deps.Controller,
		games:        deps.Games,
		verifier:     deps.Verifier,
		scanner:      deps.Scanner,
		ledger:       deps.Ledger,
		auth:         deps.Auth,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		startTime:    time.Now(),
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.SecurityLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bets", s.handlePlaceBet)
		r.Get("/bets/{betID}", s.handleGetBet)
		r.Post("/bets/{betID}/settle", s.handleSettleBet)
		r.Get("/bets/{betID}/verify", s.handleVerifyBet)
		r.Get("/bets", s.handleListBets)

		r.Get("/games", s.handleListGames)

		r.Get("/seeds/{chainID}/commitment", s.handleCommitment)
		r.Post("/seeds/{chainID}/rotate", s.handleRotate)
		r.Get("/seeds/{chainID}/{seedID}/reveal", s.handleReveal)

		r.Post("/replay/scan", s.handleReplayScan)

		if s.auth != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.AdminOnly)
				r.Get("/controls", s.handleGetControls)
				r.Put("/controls/global", s.handleSetGlobalControl)
				r.Delete("/controls/global", s.handleDeleteGlobalControl)
				r.Put("/controls/users", s.handleSetUserControl)
				r.Delete("/controls/users/{controlID}", s.handleDeleteUserControl)
				r.Post("/controls/reset", s.handleResetControls)
				if s.ledger != nil {
					r.Post("/wallet/deposit", s.handleDeposit)
				}
			})
		}
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSONBody(w http.ResponseWriter, data any) error {
	return json.NewEncoder(w).Encode(data)
}
