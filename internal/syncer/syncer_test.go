package syncer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "convoy.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, &config.Config{}, nil, logging.New(false, "error"))
}

const tomlDoc = `
[[deployment]]
name = "web"
description = "frontend"
tags = ["prod"]
deploy = true

[deployment.config]
server_id = "srv-1"

[[variable]]
name = "REGION"
value = "eu-west"
`

func TestParseDocTOML(t *testing.T) {
	doc, err := ParseDoc("resources.toml", []byte(tomlDoc))
	if err != nil {
		t.Fatalf("ParseDoc: %v", err)
	}
	if len(doc.Deployments) != 1 {
		t.Fatalf("deployments = %d, want 1", len(doc.Deployments))
	}
	d := doc.Deployments[0]
	if d.Name != "web" || d.Description != "frontend" || !d.Deploy {
		t.Errorf("deployment = %+v, want name web, description frontend, deploy", d)
	}
	if got := d.Config["server_id"]; got != "srv-1" {
		t.Errorf("config server_id = %v, want srv-1", got)
	}
	if len(doc.Variables) != 1 || doc.Variables[0].Name != "REGION" {
		t.Errorf("variables = %+v, want one REGION", doc.Variables)
	}
}

func TestParseDocYAML(t *testing.T) {
	data := []byte(`
server:
  - name: edge
    tags: [prod]
    config:
      address: https://edge:8120
`)
	doc, err := ParseDoc("resources.yaml", data)
	if err != nil {
		t.Fatalf("ParseDoc: %v", err)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].Name != "edge" {
		t.Fatalf("servers = %+v, want one named edge", doc.Servers)
	}
	if got := doc.Servers[0].Config["address"]; got != "https://edge:8120" {
		t.Errorf("config address = %v", got)
	}
}

func TestParseDocsMergesAndValidates(t *testing.T) {
	files := map[string][]byte{
		"a.toml": []byte("[[server]]\nname = \"one\"\n"),
		"b.toml": []byte("[[server]]\nname = \"two\"\n"),
	}
	doc, err := ParseDocs(files)
	if err != nil {
		t.Fatalf("ParseDocs: %v", err)
	}
	if len(doc.Servers) != 2 {
		t.Errorf("servers = %d, want 2 after merge", len(doc.Servers))
	}

	// Duplicates across files are rejected.
	files["b.toml"] = []byte("[[server]]\nname = \"one\"\n")
	if _, err := ParseDocs(files); err == nil {
		t.Error("duplicate server name accepted")
	}

	// Unnamed declarations are rejected.
	if _, err := ParseDocs(map[string][]byte{"c.toml": []byte("[[server]]\ndescription = \"x\"\n")}); err == nil {
		t.Error("unnamed server accepted")
	}
}

func TestPlanCreate(t *testing.T) {
	e := testEngine(t)
	doc := &Doc{Deployments: []ResourceSpec{{
		Name:   "web",
		Tags:   []string{"prod"},
		Config: map[string]any{"server_id": "srv-1"},
	}}}

	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "h1")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if len(plan.Diffs) != 1 {
		t.Fatalf("diffs = %d, want 1", len(plan.Diffs))
	}
	d := plan.Diffs[0]
	if d.Kind != DiffCreate || d.Type != types.ResourceDeployment || d.Name != "web" {
		t.Errorf("diff = %+v, want Create deployment web", d)
	}
	if d.Patch["server_id"] != "srv-1" {
		t.Errorf("create patch = %v, want declared config", d.Patch)
	}
	if plan.Hash != "h1" {
		t.Errorf("plan hash = %q, want %q", plan.Hash, "h1")
	}
}

func TestPlanUpdateChangedFieldsOnly(t *testing.T) {
	e := testEngine(t)
	for _, name := range []string{"srv-1", "srv-2"} {
		if _, err := e.db.Servers.Create(name, "", nil, types.ServerConfig{}); err != nil {
			t.Fatalf("Create server: %v", err)
		}
	}
	if _, err := e.db.Deployments.Create("web", "", nil, types.DeploymentConfig{
		ServerID: "srv-1",
		Network:  "bridge",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := &Doc{Deployments: []ResourceSpec{{
		Name:   "web",
		Config: map[string]any{"server_id": "srv-2"},
	}}}
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if len(plan.Diffs) != 1 {
		t.Fatalf("diffs = %d, want 1", len(plan.Diffs))
	}
	d := plan.Diffs[0]
	if d.Kind != DiffUpdate {
		t.Fatalf("kind = %q, want Update", d.Kind)
	}
	if d.Patch["server_id"] != "srv-2" {
		t.Errorf("patch server_id = %v, want srv-2", d.Patch["server_id"])
	}
	if _, ok := d.Patch["network"]; ok {
		t.Error("patch carries unchanged network field")
	}
}

func TestPlanUnchangedIsEmpty(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("edge", "gateway", []string{"prod"}, types.ServerConfig{
		Address: "https://edge:8120",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := &Doc{Servers: []ResourceSpec{{
		Name:        "edge",
		Description: "gateway",
		Tags:        []string{"prod"},
		Config:      map[string]any{"address": "https://edge:8120"},
	}}}
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("plan not empty for matching state: %+v", plan.Diffs)
	}
}

func TestPlanDescriptionAndTagChanges(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("edge", "old", []string{"dev"}, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := &Doc{Servers: []ResourceSpec{{
		Name:        "edge",
		Description: "new",
		Tags:        []string{"prod"},
	}}}
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if len(plan.Diffs) != 1 {
		t.Fatalf("diffs = %d, want 1", len(plan.Diffs))
	}
	d := plan.Diffs[0]
	if d.Description == nil || *d.Description != "new" {
		t.Errorf("description diff = %v, want new", d.Description)
	}
	if d.Tags == nil || len(*d.Tags) != 1 || (*d.Tags)[0] != "prod" {
		t.Errorf("tags diff = %v, want [prod]", d.Tags)
	}
	if len(d.Patch) != 0 {
		t.Errorf("patch = %v, want empty for meta-only change", d.Patch)
	}
}

func TestPlanDeployOnlyDiff(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("srv-1", "", nil, types.ServerConfig{}); err != nil {
		t.Fatalf("Create server: %v", err)
	}
	if _, err := e.db.Deployments.Create("web", "", nil, types.DeploymentConfig{ServerID: "srv-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Unchanged but flagged: joins the plan so the deploy pass sees it.
	doc := &Doc{Deployments: []ResourceSpec{{
		Name:   "web",
		Deploy: true,
		Config: map[string]any{"server_id": "srv-1"},
	}}}
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if len(plan.Diffs) != 1 {
		t.Fatalf("diffs = %d, want 1", len(plan.Diffs))
	}
	d := plan.Diffs[0]
	if d.Kind != DiffUpdate || !d.Deploy || len(d.Patch) != 0 {
		t.Errorf("diff = %+v, want deploy-only Update with empty patch", d)
	}
}

func TestPlanDelete(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("keep", "", []string{"prod"}, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.db.Servers.Create("stray", "", []string{"prod"}, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := &Doc{Servers: []ResourceSpec{{Name: "keep"}}}

	// Without delete enabled, undeclared resources survive.
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	for _, d := range plan.Diffs {
		if d.Kind == DiffDelete {
			t.Errorf("delete diff without delete enabled: %+v", d)
		}
	}

	plan, err = e.buildPlan(doc, &types.ResourceSyncConfig{Delete: true}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	var deletes []string
	for _, d := range plan.Diffs {
		if d.Kind == DiffDelete {
			deletes = append(deletes, d.Name)
		}
	}
	if len(deletes) != 1 || deletes[0] != "stray" {
		t.Errorf("deletes = %v, want [stray]", deletes)
	}

	// An empty document with delete enabled prunes every live resource
	// in scope.
	plan, err = e.buildPlan(&Doc{}, &types.ResourceSyncConfig{Delete: true}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	deletes = deletes[:0]
	for _, d := range plan.Diffs {
		if d.Kind == DiffDelete {
			deletes = append(deletes, d.Name)
		}
	}
	if len(deletes) != 2 {
		t.Errorf("empty-document deletes = %v, want both servers", deletes)
	}
}

func TestPlanDeleteEmptyDocScopedByTags(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("managed", "", []string{"prod"}, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.db.Servers.Create("outside", "", []string{"staging"}, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	plan, err := e.buildPlan(&Doc{}, &types.ResourceSyncConfig{Delete: true, MatchTags: []string{"prod"}}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	var deletes []string
	for _, d := range plan.Diffs {
		if d.Kind == DiffDelete {
			deletes = append(deletes, d.Name)
		}
	}
	if len(deletes) != 1 || deletes[0] != "managed" {
		t.Errorf("deletes = %v, want only the tag-scoped resource", deletes)
	}
}

func TestPlanDeleteScopedByMatchTags(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("managed", "", []string{"prod"}, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.db.Servers.Create("unmanaged", "", []string{"staging"}, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := &Doc{Servers: []ResourceSpec{{Name: "other", Tags: []string{"prod"}}}}
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{Delete: true, MatchTags: []string{"prod"}}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	var deletes []string
	for _, d := range plan.Diffs {
		if d.Kind == DiffDelete {
			deletes = append(deletes, d.Name)
		}
	}
	if len(deletes) != 1 || deletes[0] != "managed" {
		t.Errorf("deletes = %v, want only the tag-scoped resource", deletes)
	}
}

func TestPlanVariables(t *testing.T) {
	e := testEngine(t)
	if err := e.db.PutVariable(&types.Variable{Name: "KEEP", Value: "same"}); err != nil {
		t.Fatalf("PutVariable: %v", err)
	}
	if err := e.db.PutVariable(&types.Variable{Name: "DRIFT", Value: "old"}); err != nil {
		t.Fatalf("PutVariable: %v", err)
	}
	if err := e.db.PutVariable(&types.Variable{Name: "STRAY", Value: "x"}); err != nil {
		t.Fatalf("PutVariable: %v", err)
	}

	doc := &Doc{Variables: []types.Variable{
		{Name: "KEEP", Value: "same"},
		{Name: "DRIFT", Value: "new"},
		{Name: "FRESH", Value: "v"},
	}}
	plan := &Plan{}
	if err := e.planVariables(doc, &types.ResourceSyncConfig{Delete: true}, plan); err != nil {
		t.Fatalf("planVariables: %v", err)
	}

	kinds := map[string]DiffKind{}
	for _, v := range plan.Variables {
		kinds[v.Variable.Name] = v.Kind
	}
	if kinds["FRESH"] != DiffCreate {
		t.Errorf("FRESH = %q, want Create", kinds["FRESH"])
	}
	if kinds["DRIFT"] != DiffUpdate {
		t.Errorf("DRIFT = %q, want Update", kinds["DRIFT"])
	}
	if kinds["STRAY"] != DiffDelete {
		t.Errorf("STRAY = %q, want Delete", kinds["STRAY"])
	}
	if _, ok := kinds["KEEP"]; ok {
		t.Error("unchanged variable diffed")
	}
}

func TestPlanGroupsResolvesUsernames(t *testing.T) {
	e := testEngine(t)
	alice := &types.User{Username: "alice"}
	if err := e.db.CreateUser(alice); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	doc := &Doc{UserGroups: []UserGroupSpec{{Name: "ops", Users: []string{"alice", "nobody"}}}}
	plan := &Plan{}
	if err := e.planGroups(doc, &types.ResourceSyncConfig{}, plan); err != nil {
		t.Fatalf("planGroups: %v", err)
	}
	if len(plan.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(plan.Groups))
	}
	g := plan.Groups[0]
	if g.Kind != DiffCreate || g.Name != "ops" {
		t.Errorf("group diff = %+v, want Create ops", g)
	}
	// Unknown usernames are skipped, known ones map to ids.
	if len(g.Users) != 1 || g.Users[0] != alice.ID {
		t.Errorf("members = %v, want [%s]", g.Users, alice.ID)
	}
}

func TestApplyPlanThenReplanEmpty(t *testing.T) {
	e := testEngine(t)
	doc := &Doc{
		Servers: []ResourceSpec{{
			Name:   "edge",
			Tags:   []string{"prod"},
			Config: map[string]any{"address": "https://edge:8120", "enabled": true},
		}},
		Deployments: []ResourceSpec{{
			Name:   "web",
			Config: map[string]any{"network": "bridge"},
		}},
		Variables: []types.Variable{{Name: "REGION", Value: "eu-west"}},
	}

	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	u := &types.Update{}
	applied, err := e.applyPlan(plan, u)
	if err != nil {
		t.Fatalf("applyPlan: %v", err)
	}
	if applied != 3 {
		t.Errorf("applied = %d, want 3", applied)
	}

	srv, err := e.db.Servers.GetByName("edge")
	if err != nil {
		t.Fatalf("GetByName after apply: %v", err)
	}
	if srv.Config.Address != "https://edge:8120" || !srv.Config.Enabled {
		t.Errorf("applied server config = %+v", srv.Config)
	}

	// Syncing the same document again changes nothing.
	again, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("second buildPlan: %v", err)
	}
	if !again.Empty() {
		t.Errorf("replan after apply not empty: %+v", again)
	}
}

func TestApplyPlanDelete(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("stray", "", nil, types.ServerConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := &Doc{Servers: []ResourceSpec{{Name: "keep"}}}
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{Delete: true}, "")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if _, err := e.applyPlan(plan, &types.Update{}); err != nil {
		t.Fatalf("applyPlan: %v", err)
	}

	if _, err := e.db.Servers.GetByName("stray"); err == nil {
		t.Error("pruned server still resolvable")
	}
	if _, err := e.db.Servers.GetByName("keep"); err != nil {
		t.Errorf("declared server missing after apply: %v", err)
	}
}

// fakeDeployer records deploy order and fails the targets it is told to.
type fakeDeployer struct {
	mu    sync.Mutex
	order []string
	fail  map[string]bool
}

func (f *fakeDeployer) Execute(_ context.Context, _ *types.User, exec types.Execution) (*types.Update, error) {
	name := exec.Params.Deployment
	if name == "" {
		name = exec.Params.Stack
	}
	f.mu.Lock()
	f.order = append(f.order, name)
	f.mu.Unlock()
	return &types.Update{ID: "child-" + name, Success: !f.fail[name]}, nil
}

func deployPassFixture(t *testing.T, fail map[string]bool) (*Engine, *fakeDeployer, *types.Update) {
	t.Helper()
	e := testEngine(t)
	d := &fakeDeployer{fail: fail}
	e.deployer = d

	operator := &types.User{Username: "operator"}
	if err := e.db.CreateUser(operator); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return e, d, &types.Update{Operator: operator.ID}
}

func TestDeployPassOrdersByAfter(t *testing.T) {
	e, d, u := deployPassFixture(t, nil)
	if _, err := e.db.Deployments.Create("db", "", nil, types.DeploymentConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.db.Deployments.Create("web", "", nil, types.DeploymentConfig{
		After: []string{"db"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	plan := &Plan{Diffs: []ResourceDiff{
		{Type: types.ResourceDeployment, Name: "web", Kind: DiffUpdate, Deploy: true},
		{Type: types.ResourceDeployment, Name: "db", Kind: DiffUpdate, Deploy: true},
	}}
	e.deployPass(context.Background(), plan, u)

	if len(d.order) != 2 || d.order[0] != "db" || d.order[1] != "web" {
		t.Errorf("deploy order = %v, want [db web]", d.order)
	}
	for _, log := range u.Logs {
		if !log.Success {
			t.Errorf("deploy pass log failed: %+v", log)
		}
	}
}

func TestDeployPassCoversConfigChanges(t *testing.T) {
	e, d, u := deployPassFixture(t, nil)
	if _, err := e.db.Deployments.Create("web", "", nil, types.DeploymentConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Changed config without the deploy flag still redeploys.
	plan := &Plan{Diffs: []ResourceDiff{
		{Type: types.ResourceDeployment, Name: "web", Kind: DiffUpdate, Patch: store.ConfigPatch{"network": "host"}},
	}}
	e.deployPass(context.Background(), plan, u)

	if len(d.order) != 1 || d.order[0] != "web" {
		t.Errorf("deploy order = %v, want [web]", d.order)
	}
}

func TestDeployPassAbortsOnFailedRound(t *testing.T) {
	e, d, u := deployPassFixture(t, map[string]bool{"db": true})
	if _, err := e.db.Deployments.Create("db", "", nil, types.DeploymentConfig{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.db.Deployments.Create("web", "", nil, types.DeploymentConfig{
		After: []string{"db"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	plan := &Plan{Diffs: []ResourceDiff{
		{Type: types.ResourceDeployment, Name: "db", Kind: DiffUpdate, Deploy: true},
		{Type: types.ResourceDeployment, Name: "web", Kind: DiffUpdate, Deploy: true},
	}}
	e.deployPass(context.Background(), plan, u)

	if len(d.order) != 1 || d.order[0] != "db" {
		t.Errorf("deploy order = %v, want the failed round only", d.order)
	}
}

func TestDeployPassRejectsCycle(t *testing.T) {
	e, d, u := deployPassFixture(t, nil)
	if _, err := e.db.Deployments.Create("a", "", nil, types.DeploymentConfig{After: []string{"b"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.db.Deployments.Create("b", "", nil, types.DeploymentConfig{After: []string{"a"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	plan := &Plan{Diffs: []ResourceDiff{
		{Type: types.ResourceDeployment, Name: "a", Kind: DiffUpdate, Deploy: true},
		{Type: types.ResourceDeployment, Name: "b", Kind: DiffUpdate, Deploy: true},
	}}
	e.deployPass(context.Background(), plan, u)

	if len(d.order) != 0 {
		t.Errorf("deploy order = %v, want nothing deployed under a cycle", d.order)
	}
	var failed bool
	for _, log := range u.Logs {
		if !log.Success {
			failed = true
		}
	}
	if !failed {
		t.Error("cycle left no failed log on the update")
	}
}

func TestRefreshSyncPlansWithoutApplying(t *testing.T) {
	e := testEngine(t)
	syncRes, err := e.db.Syncs.Create("fleet", "", nil, types.ResourceSyncConfig{
		Source: types.SyncFileSource{
			Type:   "UiDefined",
			Params: types.SyncFileSourceParams{FileContents: "[[server]]\nname = \"edge\"\n"},
		},
	})
	if err != nil {
		t.Fatalf("Create sync: %v", err)
	}

	u := &types.Update{}
	e.RefreshSync(context.Background(), syncRes, u)

	// The declared server stays a pending diff; nothing is applied.
	if _, err := e.db.Servers.GetByName("edge"); err == nil {
		t.Error("refresh applied the plan, want pending only")
	}
	got, err := e.db.Syncs.Get(syncRes.ID)
	if err != nil {
		t.Fatalf("Get sync: %v", err)
	}
	if got.Info.PendingHash == "" {
		t.Error("pending hash not stored after refresh")
	}
	if !got.Info.LastSyncTS.IsZero() {
		t.Errorf("refresh stamped last sync ts %v, want untouched", got.Info.LastSyncTS)
	}

	// Executing the sync applies the diff and stamps the timestamp.
	e.ExecuteSync(context.Background(), syncRes, &types.Update{})
	if _, err := e.db.Servers.GetByName("edge"); err != nil {
		t.Errorf("execute did not apply declared server: %v", err)
	}
	got, err = e.db.Syncs.Get(syncRes.ID)
	if err != nil {
		t.Fatalf("Get sync: %v", err)
	}
	if got.Info.LastSyncTS.IsZero() {
		t.Error("execute did not stamp last sync ts")
	}
}

func TestExportRoundTrip(t *testing.T) {
	e := testEngine(t)
	if _, err := e.db.Servers.Create("edge", "gateway", []string{"prod"}, types.ServerConfig{
		Address: "https://edge:8120",
		Enabled: true,
	}); err != nil {
		t.Fatalf("Create server: %v", err)
	}
	if _, err := e.db.Deployments.Create("web", "", nil, types.DeploymentConfig{
		ServerID: "edge",
		Image:    types.DeploymentImage{Type: "Image", Params: types.DeploymentImageParams{Image: "nginx:1"}},
	}); err != nil {
		t.Fatalf("Create deployment: %v", err)
	}
	if err := e.db.PutVariable(&types.Variable{Name: "REGION", Value: "eu-west"}); err != nil {
		t.Fatalf("PutVariable: %v", err)
	}

	out, err := e.Export(types.Query{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	doc, err := ParseDoc("export.toml", out)
	if err != nil {
		t.Fatalf("ParseDoc of export: %v", err)
	}
	if len(doc.Servers) != 1 || len(doc.Deployments) != 1 || len(doc.Variables) != 1 {
		t.Fatalf("export parse = %d servers / %d deployments / %d variables, want 1 each",
			len(doc.Servers), len(doc.Deployments), len(doc.Variables))
	}

	// Syncing the export against the same state is a no-op.
	plan, err := e.buildPlan(doc, &types.ResourceSyncConfig{}, "")
	if err != nil {
		t.Fatalf("buildPlan on export: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("export replan not empty: %+v", plan.Diffs)
	}
}
