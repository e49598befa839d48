package store

import (
	"reflect"
	"testing"

	"github.com/convoy-ops/convoy/internal/types"
)

func TestApplyPatchMergesFields(t *testing.T) {
	current := types.DeploymentConfig{
		ServerID: "srv-1",
		Network:  "bridge",
		Restart:  "unless-stopped",
	}
	patch := ConfigPatch{"network": "host"}

	got, err := ApplyPatch(current, patch)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if got.Network != "host" {
		t.Errorf("Network = %q, want %q", got.Network, "host")
	}
	if got.ServerID != "srv-1" || got.Restart != "unless-stopped" {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestApplyPatchReplacesVariantWhole(t *testing.T) {
	current := types.DeploymentConfig{
		Image: types.DeploymentImage{
			Type:   "Build",
			Params: types.DeploymentImageParams{BuildID: "bld-1", Version: "1.2.3"},
		},
	}
	patch := ConfigPatch{
		"image": map[string]any{
			"type":   "Image",
			"params": map[string]any{"image": "nginx:latest"},
		},
	}

	got, err := ApplyPatch(current, patch)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if got.Image.Type != "Image" {
		t.Errorf("Image.Type = %q, want %q", got.Image.Type, "Image")
	}
	// The old variant's params must not bleed into the new one.
	if got.Image.Params.BuildID != "" || got.Image.Params.Version != "" {
		t.Errorf("old variant params survived the switch: %+v", got.Image.Params)
	}
	if got.Image.Params.Image != "nginx:latest" {
		t.Errorf("Image.Params.Image = %q, want %q", got.Image.Params.Image, "nginx:latest")
	}
}

func TestApplyPatchReplacesArraysWhole(t *testing.T) {
	current := types.DeploymentConfig{
		Environment: []types.EnvVar{{Variable: "A", Value: "1"}, {Variable: "B", Value: "2"}},
	}
	patch := ConfigPatch{
		"environment": []any{map[string]any{"variable": "C", "value": "3"}},
	}

	got, err := ApplyPatch(current, patch)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	want := []types.EnvVar{{Variable: "C", Value: "3"}}
	if !reflect.DeepEqual(got.Environment, want) {
		t.Errorf("Environment = %+v, want %+v", got.Environment, want)
	}
}

func TestDiffConfigsEmptyOnEqual(t *testing.T) {
	cfg := types.ServerConfig{Address: "https://h:8120", Enabled: true}
	diff, err := DiffConfigs(cfg, cfg)
	if err != nil {
		t.Fatalf("DiffConfigs: %v", err)
	}
	if len(diff) != 0 {
		t.Errorf("diff of equal configs = %+v, want empty", diff)
	}
}

func TestDiffConfigsChangedFieldsOnly(t *testing.T) {
	cur := types.ServerConfig{Address: "https://a:8120", Region: "eu", Enabled: true}
	prop := cur
	prop.Address = "https://b:8120"

	diff, err := DiffConfigs(cur, prop)
	if err != nil {
		t.Fatalf("DiffConfigs: %v", err)
	}
	if len(diff) != 1 {
		t.Fatalf("diff = %+v, want exactly one field", diff)
	}
	if diff["address"] != "https://b:8120" {
		t.Errorf("diff[address] = %v, want %q", diff["address"], "https://b:8120")
	}
}

// Applying the diff of two configs onto the first must yield the second.
func TestDiffThenApplyRoundTrip(t *testing.T) {
	cur := types.DeploymentConfig{
		ServerID: "srv-1",
		Image: types.DeploymentImage{
			Type:   "Image",
			Params: types.DeploymentImageParams{Image: "redis:7"},
		},
		Network:     "bridge",
		Environment: []types.EnvVar{{Variable: "A", Value: "1"}},
	}
	prop := cur
	prop.Image = types.DeploymentImage{
		Type:   "Build",
		Params: types.DeploymentImageParams{BuildID: "bld-9"},
	}
	prop.Network = ""
	prop.Environment = nil

	diff, err := DiffConfigs(cur, prop)
	if err != nil {
		t.Fatalf("DiffConfigs: %v", err)
	}
	got, err := ApplyPatch(cur, diff)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if !reflect.DeepEqual(got, prop) {
		t.Errorf("round trip = %+v, want %+v", got, prop)
	}
}
