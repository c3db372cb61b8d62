package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/middleware/auth"
	"fundportal/internal/middleware/ratelimit"
	"fundportal/internal/middleware/security"
	"fundportal/internal/middleware/trace"
	"fundportal/internal/services"
	appweb "fundportal/web"
)

// Services are the use cases the server exposes.
type Services struct {
	Auth       *services.AuthService
	Reports    *services.Reports
	Demands    *services.DemandService
	Assignment *services.AssignmentService
	Masters    *services.MasterService
	Vendors    *services.VendorService
	Budget     *services.BudgetService
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tunes the server.
type Config struct {
	Addr string
	// WritesPerMinute limits POST, PUT and DELETE requests per client.
	WritesPerMinute int
	// LoginsPerMinute limits login attempts per client.
	LoginsPerMinute int
	SecureCookies   bool
	TrustedProxies  []string
}

type appMetrics struct {
	uptime      time.Time
	logins      atomic.Int64
	submitted   atomic.Int64
	decided     atomic.Int64
	assignments atomic.Int64
	refused     atomic.Int64
}

type Server struct {
	http.Server
	svc       Services
	store     Pinger
	templates *template.Template
	logger    *log.Logger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	loginLimiter     *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	authn            *auth.Middleware

	secureCookies bool
	appMetrics    appMetrics

	stopCleanup  context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. Call Shutdown to stop its background cleanup.
func NewServer(cfg Config, svc Services, store Pinger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		svc:              svc,
		store:            store,
		logger:           logger,
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.WritesPerMinute}),
		loginLimiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: orDefault(cfg.LoginsPerMinute, 10)}),
		secureCookies:    cfg.SecureCookies,
		stopCleanup:      cancel,
	}
	s.appMetrics.uptime = time.Now()
	s.traceMiddleware = trace.NewMiddleware(logger, detector.ExtractClientIP)
	s.authn = auth.New(svc.Auth, s.deny)

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err, "error_type", log.ErrorTypeConfiguration)
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	writes := s.rateLimiter.Middleware(detector.ExtractClientIP, isRead, s.onRateLimit)

	var h http.Handler = mux
	h = writes(h)
	h = s.inspect(h)
	h = headers.Middleware(h)
	h = s.traceMiddleware.Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go s.rateLimiter.Run(ctx)
	go s.loginLimiter.Run(ctx)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	loginLimit := s.loginLimiter.Middleware(s.securityDetector.ExtractClientIP, nil, s.onRateLimit)

	// JSON API
	mux.Handle("POST /api/auth/login", loginLimit(http.HandlerFunc(s.handleAPILogin)))
	mux.HandleFunc("POST /api/auth/logout", s.handleAPILogout)
	s.protect(mux, "GET /api/auth/me", "", s.handleAPIMe)

	s.protect(mux, "GET /api/users", core.PermManageUsers, s.handleAPIListUsers)
	s.protect(mux, "POST /api/users", core.PermManageUsers, s.handleAPICreateUser)
	s.protect(mux, "GET /api/user/ia", core.PermManageUsers, s.handleAPIListIAUsers)
	s.protect(mux, "POST /api/user/ia", core.PermManageUsers, s.handleAPICreateIAUser)

	s.protect(mux, "GET /api/masters/{kind}", "", s.handleAPIListMasters)
	s.protect(mux, "POST /api/masters/{kind}", core.PermManageMasters, s.handleAPICreateMaster)
	s.protect(mux, "PUT /api/masters/{kind}/{id}", core.PermManageMasters, s.handleAPIUpdateMaster)
	s.protect(mux, "DELETE /api/masters/{kind}/{id}", core.PermManageMasters, s.handleAPIDeleteMaster)

	s.protect(mux, "GET /api/scheme-work-master/works", "", s.handleAPIListWorks)
	s.protect(mux, "POST /api/scheme-work-master/works", core.PermManageWorks, s.handleAPICreateWork)
	s.protect(mux, "PUT /api/scheme-work-master/works/{id}", core.PermManageWorks, s.handleAPIUpdateWork)
	s.protect(mux, "DELETE /api/scheme-work-master/works/{id}", core.PermManageWorks, s.handleAPIDeleteWork)
	s.protect(mux, "POST /api/scheme-work-master/assign-work", core.PermManageWorks, s.handleAPIAssignAgency)

	s.protect(mux, "GET /api/work-vendor-mapping/works", "", s.handleAPIListWorks)
	s.protect(mux, "POST /api/work-vendor-mapping/quote", core.PermAssignVendor, s.handleAPIQuote)
	s.protect(mux, "POST /api/work-vendor-mapping/assign", core.PermAssignVendor, s.handleAPIAssignVendor)
	s.protect(mux, "DELETE /api/work-vendor-mapping/works/{id}/vendor", core.PermAssignVendor, s.handleAPIUnassignVendor)

	s.protect(mux, "GET /api/vendors", "", s.handleAPIListVendors)
	s.protect(mux, "GET /api/vendors/{id}", "", s.handleAPIGetVendor)
	s.protect(mux, "POST /api/vendors", core.PermRegisterVendor, s.handleAPIRegisterVendor)
	s.protect(mux, "PUT /api/vendors/{id}", core.PermManageVendors, s.handleAPIUpdateVendor)
	s.protect(mux, "POST /api/vendors/{id}/status", core.PermManageVendors, s.handleAPIVendorStatus)

	s.protect(mux, "GET /api/demands", core.PermViewDemands, s.handleAPIListDemands)
	s.protect(mux, "POST /api/demands", core.PermSubmitDemand, s.handleAPISubmitDemand)
	s.protect(mux, "GET /api/demands/{id}", core.PermViewDemands, s.handleAPIGetDemand)
	s.protect(mux, "POST /api/demands/{id}/action", "", s.handleAPIDemandAction)

	s.protect(mux, "GET /api/mla/dashboard", core.PermViewDashboard, s.handleAPIRepresentativeDashboard(core.RoleMLA))
	s.protect(mux, "GET /api/mlc/dashboard", core.PermViewDashboard, s.handleAPIRepresentativeDashboard(core.RoleMLC))
	s.protect(mux, "GET /api/vendor/dashboard", core.PermViewDashboard, s.handleAPIVendorDashboard)
	s.protect(mux, "GET /api/district/dashboard", core.PermViewDashboard, s.handleAPIDistrictDashboard)

	s.protect(mux, "GET /api/budget/allocations", core.PermViewBudget, s.handleAPIListBudget)
	s.protect(mux, "POST /api/budget/allocations", core.PermManageBudget, s.handleAPIAllocate)
	s.protect(mux, "DELETE /api/budget/allocations/{id}", core.PermManageBudget, s.handleAPIDeleteAllocation)

	// Browser UI
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.Handle("POST /login", loginLimit(http.HandlerFunc(s.handleUILogin)))
	mux.HandleFunc("POST /logout", s.handleUILogout)
	mux.Handle("GET /{$}", s.authn.Optional(http.HandlerFunc(s.handleIndex)))

	s.protect(mux, "GET /dashboard", core.PermViewDashboard, s.handleDashboardPage)
	s.protect(mux, "GET /ui/dashboard", core.PermViewDashboard, s.handleDashboardPartial)
	s.protect(mux, "GET /works", "", s.handleWorksPage)
	s.protect(mux, "GET /ui/works", "", s.handleWorksPartial)
	s.protect(mux, "POST /ui/works", core.PermManageWorks, s.handleUICreateWork)
	s.protect(mux, "GET /ui/works/{id}/assign", core.PermAssignVendor, s.handleAssignForm)
	s.protect(mux, "POST /ui/quote", core.PermAssignVendor, s.handleUIQuote)
	s.protect(mux, "POST /ui/works/{id}/assign", core.PermAssignVendor, s.handleUIAssign)
	s.protect(mux, "GET /demands", core.PermViewDemands, s.handleDemandsPage)
	s.protect(mux, "GET /ui/demands", core.PermViewDemands, s.handleDemandsPartial)
	s.protect(mux, "POST /ui/demands", core.PermSubmitDemand, s.handleUISubmitDemand)
	s.protect(mux, "POST /ui/demands/{id}/action", "", s.handleUIDemandAction)
	s.protect(mux, "GET /vendors", "", s.handleVendorsPage)
	s.protect(mux, "POST /ui/vendors", core.PermRegisterVendor, s.handleUIRegisterVendor)
	s.protect(mux, "POST /ui/vendors/{id}/status", core.PermManageVendors, s.handleUIVendorStatus)
	s.protect(mux, "GET /masters", core.PermManageMasters, s.handleMastersPage)
	s.protect(mux, "POST /ui/masters/{kind}", core.PermManageMasters, s.handleUICreateMaster)
	s.protect(mux, "POST /ui/masters/{kind}/{id}/delete", core.PermManageMasters, s.handleUIDeleteMaster)
	s.protect(mux, "GET /budget", core.PermViewBudget, s.handleBudgetPage)
	s.protect(mux, "POST /ui/budget", core.PermManageBudget, s.handleUIAllocate)
}

// protect mounts an endpoint behind a session. An empty perm only requires a
// session; the services check scope either way.
func (s *Server) protect(mux *http.ServeMux, pattern string, perm core.Permission, h http.HandlerFunc) {
	var handler http.Handler = security.NoStore(h)
	if perm != "" {
		handler = s.authn.RequirePermission(perm)(handler)
	}
	mux.Handle(pattern, s.authn.Required(handler))
}

// deny answers failed authentication: JSON for the API, a redirect or an
// htmx notification for the UI.
func (s *Server) deny(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isAPI(r):
		writeAPIError(w, r, err)
	case isHTMX(r):
		writeUIError(w, r, err)
	case statusFor(err) == http.StatusUnauthorized:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	default:
		s.renderError(w, r, err)
	}
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	msg := "Rate limit exceeded. Please try again later."
	if isAPI(r) {
		writeJSON(w, http.StatusTooManyRequests, APIError{Error: msg})
		return
	}
	ErrorResponse(http.StatusTooManyRequests, msg).TriggerErrorNotification(msg).Write(w)
}

// inspect logs requests that look like probes. They are still served; the
// detector only feeds logs and metrics.
func (s *Server) inspect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := s.securityDetector.Inspect(r); reason != "" {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Suspicious request",
				"reason", reason,
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and its cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.stopCleanup()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func isRead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions
}

func isAPI(r *http.Request) bool {
	return len(r.URL.Path) >= 5 && r.URL.Path[:5] == "/api/"
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
