package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	"expenses/internal/services"
)

// APIVersion is reported by the root endpoint.
const APIVersion = "1.0.0"

// ExpenseService is the application surface the handlers call.
// Implemented by *services.ExpenseService.
type ExpenseService interface {
	ListExpenses(ctx context.Context, f services.ExpenseFilter) ([]core.Expense, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	UpdateExpense(ctx context.Context, id int64, upd core.ExpenseUpdate) (core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) (bool, error)
	Summary(ctx context.Context) (core.Summary, error)
	Categories(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server
	service  ExpenseService
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time
}

type options struct {
	logger    *log.Logger
	rateLimit ratelimit.Config
	cors      security.CORSConfig
	headers   security.HeadersConfig
}

type Option func(*options)

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithRateLimit(cfg ratelimit.Config) Option {
	return func(o *options) { o.rateLimit = cfg }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// Call Shutdown to stop it and its background goroutines.
func NewServer(addr string, svc ExpenseService, opts ...Option) *Server {
	o := options{
		logger:    log.New(log.DefaultConfig()),
		rateLimit: ratelimit.DefaultConfig(),
		cors:      security.DefaultCORSConfig(),
		headers:   security.DefaultHeadersConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		service:  svc,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(o.rateLimit),
		detector: security.NewDetector(logger.WithComponent(log.ComponentSecurity).Slog()),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/summary", s.handleSummary)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = security.CORS(o.cors)(handler)
	handler = security.NewHeadersMiddleware(o.headers).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Serve accepts connections on ln until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := s.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the rate limiter cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldRequestID, trace.GetRequestID(r.Context()),
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}
