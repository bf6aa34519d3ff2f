package handlers

import (
	"net/http"

	"github.com/telemed/dr-ai-service/internal/policy"
	"github.com/telemed/dr-ai-service/pkg/logging"
)

// PolicyHandler exposes the operational endpoint that re-reads the
// policy documents from disk without a restart.
type PolicyHandler struct {
	safety        *policy.SafetyStore
	consultations *policy.ConsultationStore
	logger        *logging.Logger
}

// NewPolicyHandler wires the policy stores into an HTTP handler.
func NewPolicyHandler(safety *policy.SafetyStore, consultations *policy.ConsultationStore, logger *logging.Logger) *PolicyHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PolicyHandler{safety: safety, consultations: consultations, logger: logger}
}

// HandleReload serves POST /api/ai/policies/reload. A document that fails
// to parse keeps its previous snapshot, so reload never degrades service.
func (h *PolicyHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.safety.Reload()
	h.consultations.Reload()
	h.logger.Info("policy documents reloaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
