package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"carteira/internal/cache"
	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/log"
	"carteira/internal/middleware/ratelimit"
	"carteira/internal/middleware/security"
	"carteira/internal/middleware/trace"
	"carteira/internal/prefs"
	"carteira/internal/services"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	Events    services.EventPublisher // nil disables event publishing
	Prefs     *prefs.Store            // nil keeps preferences in memory
	Clock     core.Clock
	Ready     func(ctx context.Context) error
	Logger    *log.Logger
	CacheSize int
	CacheTTL  time.Duration
	RateLimit ratelimit.Config
}

type appMetrics struct {
	uptime  time.Time
	written atomic.Int64
	masked  atomic.Int64
}

// Server is the JSON API over the ledger backend.
type Server struct {
	http.Server

	ledger       ledger.Backend
	transactions *services.TransactionService
	dashboard    *services.Dashboard
	views        *cache.LRUCache[services.MonthView]
	caches       *cache.Manager
	prefs        *prefs.Store
	present      presenter
	clock        core.Clock
	ready        func(ctx context.Context) error

	logger           *log.Logger
	structured       *log.StructuredLogger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	unsubscribePrefs func()

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, backend ledger.Backend, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Prefs == nil {
		opts.Prefs, _ = prefs.Load("")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	views := cache.NewLRUCache[services.MonthView](opts.CacheSize, opts.CacheTTL)

	s := &Server{
		ledger:           backend,
		transactions:     services.NewTransactionService(backend, opts.Events),
		dashboard:        services.NewDashboard(backend, opts.Clock, views),
		views:            views,
		caches:           cache.NewManager(),
		prefs:            opts.Prefs,
		present:          presenter{prefs: opts.Prefs},
		clock:            opts.Clock,
		ready:            opts.Ready,
		logger:           logger,
		structured:       log.NewStructuredLogger(logger),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: security.NewDetector(),
		inflight:         make(map[string]struct{}),
		appMetrics:       appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	s.caches.Register(views)
	s.caches.StartCleanup(10 * time.Minute)

	s.unsubscribePrefs = s.prefs.Subscribe(func(masked bool) {
		s.appMetrics.masked.Add(1)
		logger.Info("Value masking changed", "masked", masked)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /cards", s.handleListCards)
	mux.HandleFunc("POST /cards", s.handleSaveCard)

	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("GET /transactions/form", s.handleNewForm)
	mux.HandleFunc("GET /transactions/{id}/form", s.handleEditForm)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /recurring", s.handleListRecurring)
	mux.HandleFunc("POST /recurring", s.handleCreateRecurring)

	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /dashboard/projection", s.handleProjection)

	mux.HandleFunc("GET /preferences", s.handlePreferences)
	mux.HandleFunc("POST /preferences/mask/toggle", s.handleToggleMask)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited,
		http.MethodPost, http.MethodPut, http.MethodDelete)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// acquire marks key as having a submission in flight. It fails while
// another submission with the same key runs.
func (s *Server) acquire(key string) (release func(), err error) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, services.ErrSubmissionInFlight
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.inflightMu.Lock()
		delete(s.inflight, key)
		s.inflightMu.Unlock()
	}, nil
}

// location is where dates in requests are interpreted.
func (s *Server) location() *time.Location {
	return s.clock.Now().Location()
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		if s.unsubscribePrefs != nil {
			s.unsubscribePrefs()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
