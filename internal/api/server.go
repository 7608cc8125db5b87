package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/uvcnode/internal/api/models"
	"github.com/smazurov/uvcnode/internal/camera"
	"github.com/smazurov/uvcnode/internal/cameras"
	"github.com/smazurov/uvcnode/internal/config"
	"github.com/smazurov/uvcnode/internal/events"
	"github.com/smazurov/uvcnode/internal/logging"
	"github.com/smazurov/uvcnode/internal/version"
)

const authRealm = `Basic realm="uvcnode API"`

// CameraService is the part of cameras.Service the API drives.
type CameraService interface {
	Devices() ([]cameras.Device, error)
	Open(spec config.CameraSpec) (cameras.Status, error)
	Get(id string) (cameras.Status, error)
	List() []cameras.Status
	Start(id string, params cameras.StartParams) error
	Stop(id string) error
	Frame(id string) (*camera.Frame, error)
	Close(id string) error
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Cameras CameraService
	// Store persists camera changes made through the API. Optional.
	Store    *config.CameraStore
	EventBus *events.Bus

	DriverName        string
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	cameras    CameraService
	store      *config.CameraStore
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// basicAuthMiddleware checks HTTP basic credentials on operations that
// declare a security requirement. SSE clients that cannot set headers may
// pass the base64 credentials in the "auth" query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		deny := func(msg string, errs ...error) {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
		}

		var encoded string
		if header := ctx.Header("Authorization"); header != "" {
			var ok bool
			encoded, ok = strings.CutPrefix(header, "Basic ")
			if !ok {
				deny("Invalid authentication type")
				return
			}
		} else {
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			deny("Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			deny("Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			deny("Invalid credentials format")
			return
		}
		if user != username || pass != password {
			deny("Invalid credentials")
			return
		}

		next(ctx)
	}
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("uvcnode API", version.Version)
	config.Info.Description = "USB video capture devices: discovery, streaming control and latest-frame access"
	// Relative paths work behind any host.
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}

	server := &Server{
		api:      api,
		mux:      mux,
		cameras:  opts.Cameras,
		store:    opts.Store,
		eventBus: bus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Scrapers do not authenticate.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting uvcnode API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and all connections. SSE streams would keep a
// graceful shutdown waiting forever.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health and how many cameras are online",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{Body: models.HealthData{Status: "ok", Message: "API is healthy"}}
		if s.cameras != nil {
			for _, st := range s.cameras.List() {
				resp.Body.Cameras++
				if st.Available {
					resp.Body.Online++
				}
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
				Driver:    s.options.DriverName,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerCameraRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerMetricsRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
