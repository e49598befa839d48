package api

import (
	"encoding/json"
	"net/http"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// handleExecute decodes an execution request and runs it synchronously,
// returning the finished Update. Permission and locking live in the
// executor.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var exec types.Execution
	if err := json.NewDecoder(r.Body).Decode(&exec); err != nil {
		writeError(w, oops.Wrap(oops.InvalidConfig, err, "decode execution"))
		return
	}
	if exec.Type == "" {
		writeError(w, oops.New(oops.InvalidConfig, "execution is missing a type"))
		return
	}
	u, err := s.executor.Execute(r.Context(), user, exec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
