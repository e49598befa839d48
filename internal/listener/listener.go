// Package listener bridges git provider webhooks onto executions: a
// verified push event on a resource's configured branch triggers the
// resource's mapped operation as the webhook service user.
package listener

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/execute"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/metrics"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// Listener handles inbound webhook deliveries.
type Listener struct {
	db       *store.DB
	executor *execute.Executor
	auth     *auth.Service
	secret   string // global fallback when a resource has no secret
	log      *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires the listener.
func New(db *store.DB, executor *execute.Executor, authSvc *auth.Service, globalSecret string, log *logging.Logger) *Listener {
	return &Listener{
		db:       db,
		executor: executor,
		auth:     authSvc,
		secret:   globalSecret,
		log:      log.Component("listener"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-resource delivery mutex, creating it lazily.
// Holding it across the handler serializes bursts of deliveries for one
// resource.
func (l *Listener) lockFor(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// hook is the resolved webhook configuration of one resource.
type hook struct {
	enabled bool
	secret  string
	branch  string
	exec    types.Execution
}

// Handle processes one delivery. A nil error means the delivery was
// accepted (which includes branch-filtered no-ops); the execution itself
// runs in the background.
func (l *Listener) Handle(resourceType, id, action string, signature string, body []byte) error {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	h, err := l.resolve(parseType(resourceType), id, action)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(resourceType, "error").Inc()
		return err
	}

	secret := h.secret
	if secret == "" {
		secret = l.secret
	}
	if err := verifySignature(body, signature, secret); err != nil {
		metrics.WebhooksTotal.WithLabelValues(resourceType, "rejected").Inc()
		return err
	}
	if !h.enabled {
		metrics.WebhooksTotal.WithLabelValues(resourceType, "rejected").Inc()
		return oops.New(oops.PermissionDenied, "webhooks are disabled on this resource")
	}

	if h.branch != "" {
		pushed := pushedBranch(body)
		if pushed != "" && pushed != h.branch {
			metrics.WebhooksTotal.WithLabelValues(resourceType, "filtered").Inc()
			return nil
		}
	}

	user, err := l.auth.WebhookUser()
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(resourceType, "error").Inc()
		return err
	}

	exec := h.exec
	go func() {
		u, err := l.executor.Execute(context.Background(), user, exec)
		if err != nil {
			l.log.Error("webhook execution failed", "type", string(exec.Type), "error", err.Error())
			return
		}
		l.log.Info("webhook execution finished", "type", string(exec.Type), "update", u.ID, "success", u.Success)
	}()

	metrics.WebhooksTotal.WithLabelValues(resourceType, "accepted").Inc()
	return nil
}

// parseType matches the URL's type segment against the known resource
// types ignoring case, so providers may post "repo" or "Repo" alike.
func parseType(segment string) types.ResourceType {
	for _, t := range types.AllResourceTypes() {
		if strings.EqualFold(segment, string(t)) {
			return t
		}
	}
	return types.ResourceType(segment)
}

// resolve looks up the resource's webhook settings and maps the action
// onto its execution.
func (l *Listener) resolve(typ types.ResourceType, id, action string) (*hook, error) {
	badAction := func() error {
		return oops.New(oops.InvalidConfig, "unknown webhook action %q for %s", action, typ)
	}
	switch typ {
	case types.ResourceBuild:
		b, err := l.db.Builds.Get(id)
		if err != nil {
			return nil, err
		}
		if action != "build" {
			return nil, badAction()
		}
		return &hook{
			enabled: b.Config.WebhookEnabled,
			secret:  b.Config.WebhookSecret,
			branch:  b.Config.Branch,
			exec:    types.Execution{Type: types.ExecRunBuild, Params: types.ExecutionParams{Build: b.ID}},
		}, nil

	case types.ResourceRepo:
		r, err := l.db.Repos.Get(id)
		if err != nil {
			return nil, err
		}
		h := &hook{enabled: r.Config.WebhookEnabled, secret: r.Config.WebhookSecret, branch: r.Config.Branch}
		switch action {
		case "clone":
			h.exec = types.Execution{Type: types.ExecCloneRepo, Params: types.ExecutionParams{Repo: r.ID}}
		case "pull":
			h.exec = types.Execution{Type: types.ExecPullRepo, Params: types.ExecutionParams{Repo: r.ID}}
		case "build":
			h.exec = types.Execution{Type: types.ExecBuildRepo, Params: types.ExecutionParams{Repo: r.ID}}
		default:
			return nil, badAction()
		}
		return h, nil

	case types.ResourceDeployment:
		d, err := l.db.Deployments.Get(id)
		if err != nil {
			return nil, err
		}
		if action != "deploy" {
			return nil, badAction()
		}
		return &hook{
			enabled: d.Config.WebhookEnabled,
			secret:  d.Config.WebhookSecret,
			exec:    types.Execution{Type: types.ExecDeploy, Params: types.ExecutionParams{Deployment: d.ID}},
		}, nil

	case types.ResourceStack:
		s, err := l.db.Stacks.Get(id)
		if err != nil {
			return nil, err
		}
		h := &hook{enabled: s.Config.WebhookEnabled, secret: s.Config.WebhookSecret}
		if s.Config.Source.Type == "Git" {
			h.branch = s.Config.Source.Params.Branch
		}
		switch action {
		case "deploy":
			h.exec = types.Execution{Type: types.ExecDeployStack, Params: types.ExecutionParams{Stack: s.ID}}
		case "destroy":
			h.exec = types.Execution{Type: types.ExecDestroyStack, Params: types.ExecutionParams{Stack: s.ID}}
		default:
			return nil, badAction()
		}
		return h, nil

	case types.ResourceProcedure:
		p, err := l.db.Procedures.Get(id)
		if err != nil {
			return nil, err
		}
		if action != "run" {
			return nil, badAction()
		}
		return &hook{
			enabled: p.Config.WebhookEnabled,
			secret:  p.Config.WebhookSecret,
			exec:    types.Execution{Type: types.ExecRunProcedure, Params: types.ExecutionParams{Procedure: p.ID}},
		}, nil

	case types.ResourceResourceSync:
		s, err := l.db.Syncs.Get(id)
		if err != nil {
			return nil, err
		}
		h := &hook{enabled: s.Config.WebhookEnabled, secret: s.Config.WebhookSecret}
		if s.Config.Source.Type == "Git" {
			h.branch = s.Config.Source.Params.Branch
		}
		switch action {
		case "refresh":
			h.exec = types.Execution{Type: types.ExecRefreshSync, Params: types.ExecutionParams{Sync: s.ID}}
		case "execute", "sync":
			h.exec = types.Execution{Type: types.ExecRunSync, Params: types.ExecutionParams{Sync: s.ID}}
		default:
			return nil, badAction()
		}
		return h, nil

	case types.ResourceAction:
		a, err := l.db.Actions.Get(id)
		if err != nil {
			return nil, err
		}
		if action != "run" {
			return nil, badAction()
		}
		return &hook{
			enabled: a.Config.WebhookEnabled,
			secret:  a.Config.WebhookSecret,
			exec:    types.Execution{Type: types.ExecRunAction, Params: types.ExecutionParams{Action: a.ID}},
		}, nil

	default:
		return nil, oops.New(oops.NotFound, "resource type %q has no webhooks", typ)
	}
}

// verifySignature checks the X-Hub-Signature-256 header against the body.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return oops.New(oops.AuthInvalid, "no webhook secret configured")
	}
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return oops.New(oops.AuthInvalid, "missing or malformed signature header")
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return oops.New(oops.AuthInvalid, "malformed signature hex")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return oops.New(oops.AuthInvalid, "signature mismatch")
	}
	return nil
}

// pushedBranch extracts the branch from a push event's ref field. Returns
// empty for payloads without one.
func pushedBranch(body []byte) string {
	var payload struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimPrefix(payload.Ref, "refs/heads/")
}
