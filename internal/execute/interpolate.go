package execute

import (
	"strings"

	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// Interpolator substitutes [[NAME]] variable references in config strings
// and scrubs secret values back out of captured logs.
type Interpolator struct {
	values  map[string]string
	secrets map[string]string // value -> redaction placeholder
}

// NewInterpolator snapshots the current variable set. Build one per
// execution so a run sees a consistent view.
func NewInterpolator(db *store.DB) (*Interpolator, error) {
	vars, err := db.ListVariables()
	if err != nil {
		return nil, err
	}
	in := &Interpolator{
		values:  make(map[string]string, len(vars)),
		secrets: make(map[string]string),
	}
	for _, v := range vars {
		in.values[v.Name] = v.Value
		if v.IsSecret && v.Value != "" {
			in.secrets[v.Value] = "<" + v.Name + ">"
		}
	}
	return in, nil
}

// AddSecret registers an out-of-band secret (git or registry token) for
// redaction without making it interpolatable.
func (in *Interpolator) AddSecret(value, name string) {
	if value != "" {
		in.secrets[value] = "<" + name + ">"
	}
}

// Apply replaces every [[NAME]] reference with the variable's value.
// Unknown references are left verbatim.
func (in *Interpolator) Apply(s string) string {
	if !strings.Contains(s, "[[") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "[[")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "]]")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[start+2 : start+end]
		b.WriteString(s[:start])
		if value, ok := in.values[name]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(s[start : start+end+2])
		}
		s = s[start+end+2:]
	}
}

// ApplyEnv interpolates the values of an env var list, returning a copy.
func (in *Interpolator) ApplyEnv(env []types.EnvVar) []types.EnvVar {
	if len(env) == 0 {
		return nil
	}
	out := make([]types.EnvVar, len(env))
	for i, e := range env {
		out[i] = types.EnvVar{Variable: e.Variable, Value: in.Apply(e.Value)}
	}
	return out
}

// RedactString replaces any secret values appearing in s.
func (in *Interpolator) RedactString(s string) string {
	for value, placeholder := range in.secrets {
		s = strings.ReplaceAll(s, value, placeholder)
	}
	return s
}

// Redact scrubs secret values out of every log of the update. Runs before
// the update is persisted so secrets never reach the store.
func (in *Interpolator) Redact(u *types.Update) {
	if len(in.secrets) == 0 {
		return
	}
	for i := range u.Logs {
		u.Logs[i].Command = in.RedactString(u.Logs[i].Command)
		u.Logs[i].Stdout = in.RedactString(u.Logs[i].Stdout)
		u.Logs[i].Stderr = in.RedactString(u.Logs[i].Stderr)
	}
}
