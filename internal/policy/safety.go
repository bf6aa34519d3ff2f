// Package policy loads the externally governed clinical policy documents.
// Both documents are human-edited YAML files that clinical staff can change
// without a redeploy; the stores reload them on demand and swap the whole
// snapshot atomically so in-flight requests never observe a half-updated
// policy.
package policy

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/telemed/dr-ai-service/pkg/logging"
)

// SafetyPolicy holds the keyword lists driving question classification and
// the response-side deny list. Immutable once loaded.
type SafetyPolicy struct {
	EmergencyKeywords  []string `yaml:"emergency_keywords"`
	NewSymptomKeywords []string `yaml:"new_symptom_keywords"`
	OutOfScopeKeywords []string `yaml:"out_of_scope_keywords"`
	DenyPhrases        []string `yaml:"deny_phrases"`
}

// defaultSafetyPolicy is the conservative built-in fallback used when the
// policy file is missing or unparseable. The service must stay safe by
// default rather than crash or run without validation.
func defaultSafetyPolicy() *SafetyPolicy {
	return &SafetyPolicy{
		EmergencyKeywords: []string{
			"dor no peito",
			"falta de ar",
			"sangramento",
			"confusão mental",
			"alergia grave",
			"suicídio",
			"desmaio",
		},
		NewSymptomKeywords: []string{
			"estou sentindo",
			"piorou",
			"novo sintoma",
		},
		OutOfScopeKeywords: []string{
			"posso tomar",
			"outro remédio",
			"aumentar a dose",
		},
		DenyPhrases: []string{
			"você deve tomar",
			"recomendo que você",
			"aumente a dose",
			"pode parar de tomar",
		},
	}
}

// SafetyStore serves the current SafetyPolicy snapshot to all requests.
type SafetyStore struct {
	path    string
	logger  *logging.Logger
	current atomic.Pointer[SafetyPolicy]
}

// NewSafetyStore loads the policy at path and returns the store. A load
// failure is logged and replaced by the built-in defaults; it never fails
// construction.
func NewSafetyStore(path string, logger *logging.Logger) *SafetyStore {
	if logger == nil {
		logger = logging.Default()
	}
	s := &SafetyStore{path: path, logger: logger}
	s.Reload()
	return s
}

// Current returns the active policy snapshot. Lock-free; safe for
// concurrent readers.
func (s *SafetyStore) Current() *SafetyPolicy {
	return s.current.Load()
}

// Reload re-reads the policy file and swaps the snapshot atomically.
// Idempotent and safe to call concurrently with in-flight reads.
func (s *SafetyStore) Reload() {
	loaded, err := loadSafetyPolicy(s.path)
	if err != nil {
		s.logger.Error("failed to load safety policy, using built-in defaults",
			"path", s.path,
			"error", err,
		)
		// Keep a previously loaded good snapshot if we have one.
		if s.current.Load() == nil {
			s.current.Store(defaultSafetyPolicy())
		}
		return
	}

	s.current.Store(loaded)
	s.logger.Info("safety policy loaded",
		"path", s.path,
		"emergency", len(loaded.EmergencyKeywords),
		"new_symptoms", len(loaded.NewSymptomKeywords),
		"out_of_scope", len(loaded.OutOfScopeKeywords),
		"deny_phrases", len(loaded.DenyPhrases),
	)
}

func loadSafetyPolicy(path string) (*SafetyPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read safety policy: %w", err)
	}

	var p SafetyPolicy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("policy: parse safety policy: %w", err)
	}
	if len(p.EmergencyKeywords) == 0 {
		return nil, fmt.Errorf("policy: safety policy has no emergency keywords")
	}
	return &p, nil
}
