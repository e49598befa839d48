package execute

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/convoy-ops/convoy/internal/actionstate"
	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
	"github.com/convoy-ops/convoy/internal/updates"
)

// newTestExecutor wires an executor over a fresh store with an admin
// operator. No agents are reachable: tests drive variants that resolve
// entirely on the coordinator.
func newTestExecutor(t *testing.T) (*Executor, *store.DB, *types.User) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "convoy.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	jwtProvider, err := auth.NewJWTProvider(time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}
	operator := &types.User{Username: "operator", Admin: true}
	if err := db.CreateUser(operator); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	log := logging.New(false, "error")
	e := New(db, config.Defaults(), auth.NewService(db, jwtProvider), actionstate.New(), updates.NewPipeline(db), log)
	return e, db, operator
}

// failingAction creates an action with no script. Executing it fails
// before any server is contacted.
func failingAction(t *testing.T, db *store.DB, name string) *types.Action {
	t.Helper()
	a, err := db.Actions.Create(name, "", nil, types.ActionConfig{})
	if err != nil {
		t.Fatalf("Create action: %v", err)
	}
	return a
}

func TestExecuteNoneCompletes(t *testing.T) {
	e, db, operator := newTestExecutor(t)

	u, err := e.Execute(context.Background(), operator, types.Execution{Type: types.ExecNone})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !u.Success || u.Status != types.UpdateComplete {
		t.Errorf("update success=%v status=%s, want successful complete", u.Success, u.Status)
	}
	if u.Target != types.SystemTarget() {
		t.Errorf("target = %v, want system", u.Target)
	}

	// The update is persisted like any other.
	got, err := db.GetUpdate(u.ID)
	if err != nil {
		t.Fatalf("GetUpdate: %v", err)
	}
	if !got.Success {
		t.Error("persisted update not successful")
	}
}

func TestRunProcedureSequentialAbort(t *testing.T) {
	e, db, operator := newTestExecutor(t)
	failingAction(t, db, "broken")

	p, err := db.Procedures.Create("rollout", "", nil, types.ProcedureConfig{Stages: []types.ProcedureStage{
		{Name: "first", Kind: types.StageSequence, Items: []types.ProcedureStageItem{
			{Enabled: true, Execution: types.Execution{Type: types.ExecRunAction, Params: types.ExecutionParams{Action: "broken"}}},
			{Enabled: true, Execution: types.Execution{Type: types.ExecNone}},
		}},
		{Name: "second", Kind: types.StageSequence, Items: []types.ProcedureStageItem{
			{Enabled: true, Execution: types.Execution{Type: types.ExecNone}},
		}},
	}})
	if err != nil {
		t.Fatalf("Create procedure: %v", err)
	}

	u, err := e.Execute(context.Background(), operator, types.Execution{
		Type: types.ExecRunProcedure, Params: types.ExecutionParams{Procedure: p.ID},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if u.Success {
		t.Error("procedure with failing stage reported success")
	}

	var aborted bool
	for _, l := range u.Logs {
		if strings.Contains(l.Stderr, "skipping 1 remaining") {
			aborted = true
		}
	}
	if !aborted {
		t.Errorf("no abort log naming the remaining stage, logs = %+v", u.Logs)
	}

	// Only the failing child ran: the second item of the first stage and
	// all of the second stage were skipped.
	children, err := db.ListUpdates(store.UpdateQuery{Operation: types.OpRunAction})
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if len(children) != 1 {
		t.Errorf("action child updates = %d, want 1", len(children))
	}
	skipped, err := db.ListUpdates(store.UpdateQuery{Operation: types.OpNone})
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped items still ran, %d None updates", len(skipped))
	}
}

func TestRunProcedureParallelStage(t *testing.T) {
	e, db, operator := newTestExecutor(t)

	p, err := db.Procedures.Create("fanout", "", nil, types.ProcedureConfig{Stages: []types.ProcedureStage{
		{Name: "all", Kind: types.StageParallel, Items: []types.ProcedureStageItem{
			{Enabled: true, Execution: types.Execution{Type: types.ExecNone}},
			{Enabled: true, Execution: types.Execution{Type: types.ExecNone}},
			{Enabled: true, Execution: types.Execution{Type: types.ExecNone}},
		}},
	}})
	if err != nil {
		t.Fatalf("Create procedure: %v", err)
	}

	u, err := e.Execute(context.Background(), operator, types.Execution{
		Type: types.ExecRunProcedure, Params: types.ExecutionParams{Procedure: p.ID},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !u.Success {
		t.Errorf("parallel stage of no-ops failed: %+v", u.Logs)
	}

	children, err := db.ListUpdates(store.UpdateQuery{Operation: types.OpNone})
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if len(children) != 3 {
		t.Errorf("child updates = %d, want 3", len(children))
	}
}

func TestRunProcedureParallelStageCollectsFailure(t *testing.T) {
	e, db, operator := newTestExecutor(t)
	failingAction(t, db, "broken")

	p, err := db.Procedures.Create("fanout", "", nil, types.ProcedureConfig{Stages: []types.ProcedureStage{
		{Kind: types.StageParallel, Items: []types.ProcedureStageItem{
			{Enabled: true, Execution: types.Execution{Type: types.ExecNone}},
			{Enabled: true, Execution: types.Execution{Type: types.ExecRunAction, Params: types.ExecutionParams{Action: "broken"}}},
		}},
	}})
	if err != nil {
		t.Fatalf("Create procedure: %v", err)
	}

	u, err := e.Execute(context.Background(), operator, types.Execution{
		Type: types.ExecRunProcedure, Params: types.ExecutionParams{Procedure: p.ID},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if u.Success {
		t.Error("stage with a failed item reported success")
	}

	// Every item of a parallel stage still runs; failure surfaces after
	// the whole stage settles.
	children, err := db.ListUpdates(store.UpdateQuery{Operation: types.OpNone})
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if len(children) != 1 {
		t.Errorf("sibling item updates = %d, want 1", len(children))
	}
}

func TestRunProcedureEmptyStages(t *testing.T) {
	e, db, operator := newTestExecutor(t)

	p, err := db.Procedures.Create("noop", "", nil, types.ProcedureConfig{Stages: []types.ProcedureStage{
		{Name: "disabled", Kind: types.StageSequence, Items: []types.ProcedureStageItem{
			{Enabled: false, Execution: types.Execution{Type: types.ExecNone}},
		}},
	}})
	if err != nil {
		t.Fatalf("Create procedure: %v", err)
	}

	u, err := e.Execute(context.Background(), operator, types.Execution{
		Type: types.ExecRunProcedure, Params: types.ExecutionParams{Procedure: p.ID},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !u.Success {
		t.Errorf("procedure with only disabled items failed: %+v", u.Logs)
	}

	var noted bool
	for _, l := range u.Logs {
		if strings.Contains(l.Stdout, "no enabled executions") {
			noted = true
		}
	}
	if !noted {
		t.Errorf("empty stage not noted, logs = %+v", u.Logs)
	}
}

func TestImageDomain(t *testing.T) {
	tests := []struct {
		image string
		want  string
	}{
		{"redis:7", ""},
		{"library/redis:7", ""},
		{"ghcr.io/acme/api:1.2", "ghcr.io"},
		{"localhost:5000/api", "localhost:5000"},
	}
	for _, tt := range tests {
		if got := imageDomain(tt.image); got != tt.want {
			t.Errorf("imageDomain(%q) = %q, want %q", tt.image, got, tt.want)
		}
	}
}

func TestRegistryTokenLookup(t *testing.T) {
	e, db, _ := newTestExecutor(t)
	e.cfg.RegistryAccounts = []config.RegistryAccount{
		{Domain: "ghcr.io", Username: "bot", Token: "reg-12345"},
	}
	interp, err := NewInterpolator(db)
	if err != nil {
		t.Fatalf("NewInterpolator: %v", err)
	}

	if got := e.registryToken("ghcr.io", "bot", interp); got != "reg-12345" {
		t.Errorf("token = %q, want stored token", got)
	}
	if got := interp.RedactString("push with reg-12345"); got != "push with <REGISTRY_TOKEN>" {
		t.Errorf("RedactString = %q, want token scrubbed", got)
	}

	if got := e.registryToken("ghcr.io", "", interp); got != "" {
		t.Errorf("token without account = %q, want empty", got)
	}
	if got := e.registryToken("docker.io", "bot", interp); got != "" {
		t.Errorf("token for unknown domain = %q, want empty", got)
	}
}

func TestSaveRedactsSecrets(t *testing.T) {
	e, db, operator := newTestExecutor(t)
	if err := db.PutVariable(&types.Variable{Name: "API_TOKEN", Value: "tok-12345", IsSecret: true}); err != nil {
		t.Fatalf("PutVariable: %v", err)
	}
	interp, err := NewInterpolator(db)
	if err != nil {
		t.Fatalf("NewInterpolator: %v", err)
	}

	u := e.pipeline.Make(types.SystemTarget(), types.OpDeploy, operator.ID)
	if _, err := e.pipeline.Add(u); err != nil {
		t.Fatalf("Add: %v", err)
	}
	u.PushLog(types.Log{Stage: "pull image", Stdout: "login with tok-12345", Success: true})

	e.save(u, interp)

	got, err := db.GetUpdate(u.ID)
	if err != nil {
		t.Fatalf("GetUpdate: %v", err)
	}
	if strings.Contains(got.Logs[0].Stdout, "tok-12345") {
		t.Errorf("mid-run save persisted raw secret: %q", got.Logs[0].Stdout)
	}
	if !strings.Contains(got.Logs[0].Stdout, "<API_TOKEN>") {
		t.Errorf("secret not replaced by placeholder: %q", got.Logs[0].Stdout)
	}
}
