// Package api is the coordinator's HTTP surface: the /auth, /read, /write,
// and /execute unions, the webhook listener, the live update websocket, and
// the Prometheus endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convoy-ops/convoy/internal/actionstate"
	"github.com/convoy-ops/convoy/internal/alert"
	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/execute"
	"github.com/convoy-ops/convoy/internal/listener"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/monitor"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/syncer"
	"github.com/convoy-ops/convoy/internal/types"
	"github.com/convoy-ops/convoy/internal/updates"
)

// Version is stamped at build time.
var Version = "dev"

// Server wires every HTTP endpoint.
type Server struct {
	cfg        *config.Config
	db         *store.DB
	auth       *auth.Service
	oauth      *auth.OAuthHandler
	executor   *execute.Executor
	syncs      *syncer.Engine
	state      *actionstate.Registry
	cache      *monitor.StatusCache
	dispatcher *alert.Dispatcher
	pipeline   *updates.Pipeline
	listener   *listener.Listener
	log        *logging.Logger

	resources map[types.ResourceType]*resourceOps
}

// Deps bundles the server's dependencies.
type Deps struct {
	Config     *config.Config
	DB         *store.DB
	Auth       *auth.Service
	OAuth      *auth.OAuthHandler
	Executor   *execute.Executor
	Syncs      *syncer.Engine
	State      *actionstate.Registry
	Cache      *monitor.StatusCache
	Dispatcher *alert.Dispatcher
	Pipeline   *updates.Pipeline
	Listener   *listener.Listener
	Log        *logging.Logger
}

// NewServer builds the server and its resource dispatch table.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:        d.Config,
		db:         d.DB,
		auth:       d.Auth,
		oauth:      d.OAuth,
		executor:   d.Executor,
		syncs:      d.Syncs,
		state:      d.State,
		cache:      d.Cache,
		dispatcher: d.Dispatcher,
		pipeline:   d.Pipeline,
		listener:   d.Listener,
		log:        d.Log.Component("api"),
	}
	s.resources = map[types.ResourceType]*resourceOps{
		types.ResourceServer:         opsFor(d.DB.Servers),
		types.ResourceDeployment:     opsFor(d.DB.Deployments),
		types.ResourceBuild:          opsFor(d.DB.Builds),
		types.ResourceRepo:           opsFor(d.DB.Repos),
		types.ResourceStack:          opsFor(d.DB.Stacks),
		types.ResourceProcedure:      opsFor(d.DB.Procedures),
		types.ResourceResourceSync:   opsFor(d.DB.Syncs),
		types.ResourceBuilder:        opsFor(d.DB.Builders),
		types.ResourceAlerter:        opsFor(d.DB.Alerters),
		types.ResourceServerTemplate: opsFor(d.DB.ServerTemplates),
		types.ResourceAction:         opsFor(d.DB.Actions),
	}
	return s
}

// Routes builds the mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", s.handleAuth)
	mux.HandleFunc("GET /auth/{provider}/login", s.handleOAuthLogin)
	mux.HandleFunc("GET /auth/{provider}/callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /read", s.handleRead)
	mux.HandleFunc("POST /write", s.handleWrite)
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /listener/{provider}/{type}/{id}/{action}", s.handleListener)
	mux.HandleFunc("GET /ws/update", s.handleUpdateWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.BindAddr, s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// request is the union envelope every POST surface accepts.
type request struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

func decodeRequest(r *http.Request) (*request, error) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, oops.Wrap(oops.InvalidConfig, err, "decode request body")
	}
	if req.Type == "" {
		return nil, oops.New(oops.InvalidConfig, "request is missing a type")
	}
	if len(req.Params) == 0 {
		req.Params = json.RawMessage("{}")
	}
	return &req, nil
}

// decodeParams decodes the request's params into a typed struct.
func decodeParams[P any](req *request) (P, error) {
	var p P
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return p, oops.Wrap(oops.InvalidConfig, err, "decode %s params", req.Type)
	}
	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders an error with the status its kind maps to.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, oops.HTTPStatus(err), map[string]string{"error": err.Error()})
}

// authenticate resolves the requesting user or writes the auth failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*types.User, bool) {
	user, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return user, true
}

var errUnknownType = errors.New("unknown request type")

func (s *Server) unknownType(w http.ResponseWriter, surface, typ string) {
	writeError(w, oops.Wrap(oops.InvalidConfig, errUnknownType, "%s: %q", surface, typ))
}
