package listener

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// testListener wires a listener over a fresh store. The executor and auth
// service stay nil: every path under test resolves before they are
// touched.
func testListener(t *testing.T, globalSecret string) (*Listener, *store.DB) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "convoy.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, nil, nil, globalSecret, logging.New(false, "error")), db
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)

	if err := verifySignature(body, sign("s3cret", body), "s3cret"); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := verifySignature(body, sign("wrong", body), "s3cret"); !oops.Is(err, oops.AuthInvalid) {
		t.Errorf("wrong-secret signature err = %v, want AuthInvalid", err)
	}
	if err := verifySignature(body, "deadbeef", "s3cret"); !oops.Is(err, oops.AuthInvalid) {
		t.Errorf("missing sha256= prefix err = %v, want AuthInvalid", err)
	}
	if err := verifySignature(body, "sha256=zz", "s3cret"); !oops.Is(err, oops.AuthInvalid) {
		t.Errorf("bad hex err = %v, want AuthInvalid", err)
	}
	if err := verifySignature(body, sign("", body), ""); !oops.Is(err, oops.AuthInvalid) {
		t.Errorf("empty secret err = %v, want AuthInvalid", err)
	}
}

func TestPushedBranch(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"ref":"refs/heads/main"}`, "main"},
		{`{"ref":"refs/heads/feature/x"}`, "feature/x"},
		{`{"action":"opened"}`, ""},
		{`not json`, ""},
	}
	for _, tt := range tests {
		if got := pushedBranch([]byte(tt.body)); got != tt.want {
			t.Errorf("pushedBranch(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	l, db := testListener(t, "")
	b, err := db.Builds.Create("api", "", nil, types.BuildConfig{
		WebhookEnabled: true,
		WebhookSecret:  "s3cret",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	body := []byte(`{"ref":"refs/heads/main"}`)
	err = l.Handle("Build", b.ID, "build", sign("wrong", body), body)
	if !oops.Is(err, oops.AuthInvalid) {
		t.Errorf("err = %v, want AuthInvalid", err)
	}
}

func TestHandleGlobalSecretFallback(t *testing.T) {
	l, db := testListener(t, "global")
	b, err := db.Builds.Create("api", "", nil, types.BuildConfig{
		WebhookEnabled: true,
		Branch:         "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Signed with the global secret and filtered by branch: the delivery
	// is accepted as a no-op, proving the fallback verified it.
	body := []byte(`{"ref":"refs/heads/dev"}`)
	if err := l.Handle("Build", b.ID, "build", sign("global", body), body); err != nil {
		t.Errorf("Handle = %v, want accepted no-op", err)
	}

	// Signed with anything else it is rejected.
	if err := l.Handle("Build", b.ID, "build", sign("other", body), body); !oops.Is(err, oops.AuthInvalid) {
		t.Errorf("err = %v, want AuthInvalid", err)
	}
}

func TestHandleDisabledHook(t *testing.T) {
	l, db := testListener(t, "")
	d, err := db.Deployments.Create("web", "", nil, types.DeploymentConfig{
		WebhookSecret: "s3cret",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	body := []byte(`{}`)
	err = l.Handle("Deployment", d.ID, "deploy", sign("s3cret", body), body)
	if !oops.Is(err, oops.PermissionDenied) {
		t.Errorf("err = %v, want PermissionDenied", err)
	}
}

func TestHandleBranchFilter(t *testing.T) {
	l, db := testListener(t, "")
	r, err := db.Repos.Create("infra", "", nil, types.RepoConfig{
		WebhookEnabled: true,
		WebhookSecret:  "s3cret",
		Branch:         "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A push to another branch is accepted but triggers nothing.
	body := []byte(`{"ref":"refs/heads/dev"}`)
	if err := l.Handle("Repo", r.ID, "pull", sign("s3cret", body), body); err != nil {
		t.Errorf("off-branch push err = %v, want nil", err)
	}
}

func TestHandleLowercaseType(t *testing.T) {
	l, db := testListener(t, "")
	r, err := db.Repos.Create("infra", "", nil, types.RepoConfig{
		WebhookEnabled: true,
		WebhookSecret:  "s3cret",
		Branch:         "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Providers post the type segment lowercased; an off-branch push
	// keeps the delivery a no-op so the nil executor is never reached.
	body := []byte(`{"ref":"refs/heads/dev"}`)
	if err := l.Handle("repo", r.ID, "clone", sign("s3cret", body), body); err != nil {
		t.Errorf("lowercase type err = %v, want nil", err)
	}
}

func TestResolveSyncActions(t *testing.T) {
	l, db := testListener(t, "")
	s, err := db.Syncs.Create("fleet", "", nil, types.ResourceSyncConfig{
		WebhookEnabled: true,
		WebhookSecret:  "s3cret",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h, err := l.resolve(types.ResourceResourceSync, s.ID, "refresh")
	if err != nil {
		t.Fatalf("resolve refresh: %v", err)
	}
	if h.exec.Type != types.ExecRefreshSync || h.exec.Params.Sync != s.ID {
		t.Errorf("refresh exec = %+v, want RefreshResourceSync on %s", h.exec, s.ID)
	}

	for _, action := range []string{"execute", "sync"} {
		h, err := l.resolve(types.ResourceResourceSync, s.ID, action)
		if err != nil {
			t.Fatalf("resolve %s: %v", action, err)
		}
		if h.exec.Type != types.ExecRunSync || h.exec.Params.Sync != s.ID {
			t.Errorf("%s exec = %+v, want RunSync on %s", action, h.exec, s.ID)
		}
	}

	if _, err := l.resolve(types.ResourceResourceSync, s.ID, "plan"); !oops.Is(err, oops.InvalidConfig) {
		t.Errorf("unknown action err = %v, want InvalidConfig", err)
	}
}

func TestHandleUnknownAction(t *testing.T) {
	l, db := testListener(t, "")
	b, err := db.Builds.Create("api", "", nil, types.BuildConfig{
		WebhookEnabled: true,
		WebhookSecret:  "s3cret",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	body := []byte(`{}`)
	err = l.Handle("Build", b.ID, "deploy", sign("s3cret", body), body)
	if !oops.Is(err, oops.InvalidConfig) {
		t.Errorf("err = %v, want InvalidConfig", err)
	}
}

func TestHandleUnknownResource(t *testing.T) {
	l, _ := testListener(t, "")

	body := []byte(`{}`)
	if err := l.Handle("Build", "no-such-id", "build", sign("x", body), body); !oops.Is(err, oops.NotFound) {
		t.Errorf("missing resource err = %v, want NotFound", err)
	}
	if err := l.Handle("Alerter", "id", "run", sign("x", body), body); !oops.Is(err, oops.NotFound) {
		t.Errorf("unhooked type err = %v, want NotFound", err)
	}
}
