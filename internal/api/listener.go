package api

import (
	"io"
	"net/http"

	"github.com/convoy-ops/convoy/internal/oops"
)

// Webhook payloads are small; anything larger is junk.
const maxWebhookBody = 1 << 20

// handleListener bridges provider webhooks into executions. The signature
// travels in X-Hub-Signature-256; verification happens against the raw body
// before anything is parsed.
func (s *Server) handleListener(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, oops.Wrap(oops.InvalidConfig, err, "read webhook body"))
		return
	}

	typ := r.PathValue("type")
	id := r.PathValue("id")
	action := r.PathValue("action")
	signature := r.Header.Get("X-Hub-Signature-256")

	if err := s.listener.Handle(typ, id, action, signature, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
