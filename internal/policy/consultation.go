package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/telemed/dr-ai-service/internal/textnorm"
	"github.com/telemed/dr-ai-service/pkg/logging"
)

// warningThresholdRatio is the fraction of the specialty limit past which a
// non-blocking follow-up warning is attached. Fixed product policy, not
// configurable per specialty.
const warningThresholdRatio = 0.8

const defaultKey = "default"

// ConsultationPolicy maps normalized specialty names to the maximum number
// of days since the last encounter for which the assistant may still
// answer, plus the message templates rendered on the warn/block paths.
type ConsultationPolicy struct {
	MaxDaysSinceConsultation map[string]int       `yaml:"max_days_since_consultation"`
	Messages                 ConsultationMessages `yaml:"messages"`
}

// ConsultationMessages are templates with {days}, {limit} and {specialty}
// placeholders.
type ConsultationMessages struct {
	WarningNearLimit string `yaml:"warning_near_limit"`
	Expired          string `yaml:"expired"`
}

func defaultConsultationPolicy() *ConsultationPolicy {
	return &ConsultationPolicy{
		MaxDaysSinceConsultation: map[string]int{
			defaultKey: 90,
		},
		Messages: ConsultationMessages{
			WarningNearLimit: "Sua última consulta foi há {days} dias. Considere agendar um retorno em breve.",
			Expired:          "Sua consulta foi há {days} dias (limite: {limit} dias para {specialty}). Por segurança, você precisa agendar uma nova consulta.",
		},
	}
}

// AgeValidation is the outcome of checking days-since-consultation against
// the specialty limit.
type AgeValidation struct {
	Valid     bool
	Limit     int
	DaysSince int
	// Message is set when Valid is false and explains the expiry.
	Message string
	// Warning is set when Valid is true but the consultation is close to
	// the limit. Non-blocking.
	Warning string
}

// ConsultationStore serves the current ConsultationPolicy snapshot.
type ConsultationStore struct {
	path    string
	logger  *logging.Logger
	current atomic.Pointer[ConsultationPolicy]
}

// NewConsultationStore loads the policy at path. Load failures fall back to
// the built-in default policy and never fail construction.
func NewConsultationStore(path string, logger *logging.Logger) *ConsultationStore {
	if logger == nil {
		logger = logging.Default()
	}
	s := &ConsultationStore{path: path, logger: logger}
	s.Reload()
	return s
}

// Current returns the active policy snapshot.
func (s *ConsultationStore) Current() *ConsultationPolicy {
	return s.current.Load()
}

// Reload re-reads the policy file and swaps the snapshot atomically.
func (s *ConsultationStore) Reload() {
	loaded, err := loadConsultationPolicy(s.path)
	if err != nil {
		s.logger.Error("failed to load consultation age policy, using built-in defaults",
			"path", s.path,
			"error", err,
		)
		if s.current.Load() == nil {
			s.current.Store(defaultConsultationPolicy())
		}
		return
	}

	s.current.Store(loaded)
	s.logger.Info("consultation age policy loaded",
		"path", s.path,
		"specialties", len(loaded.MaxDaysSinceConsultation),
		"default_days", loaded.MaxDaysSinceConsultation[defaultKey],
	)
}

// MaxDays resolves the day limit for a specialty, falling back to the
// default entry. Specialty names are accent/case folded and spaces become
// underscores so "Clínica Geral" finds "clinica_geral".
func (s *ConsultationStore) MaxDays(specialty string) int {
	p := s.Current()

	fallback := p.MaxDaysSinceConsultation[defaultKey]
	if fallback == 0 {
		fallback = 90
	}
	if strings.TrimSpace(specialty) == "" {
		return fallback
	}

	key := strings.ReplaceAll(textnorm.Normalize(specialty), " ", "_")
	if limit, ok := p.MaxDaysSinceConsultation[key]; ok && limit > 0 {
		return limit
	}
	return fallback
}

// ValidateConsultationAge checks daysSince against the specialty limit.
// Past the limit it blocks with the expired message; past 80% of the limit
// it passes with a follow-up warning attached.
func (s *ConsultationStore) ValidateConsultationAge(daysSince int, specialty string) AgeValidation {
	p := s.Current()
	limit := s.MaxDays(specialty)

	if daysSince > limit {
		return AgeValidation{
			Valid:     false,
			Limit:     limit,
			DaysSince: daysSince,
			Message:   renderTemplate(p.Messages.Expired, daysSince, limit, specialty),
		}
	}

	if float64(daysSince) > float64(limit)*warningThresholdRatio {
		return AgeValidation{
			Valid:     true,
			Limit:     limit,
			DaysSince: daysSince,
			Warning:   renderTemplate(p.Messages.WarningNearLimit, daysSince, limit, specialty),
		}
	}

	return AgeValidation{Valid: true, Limit: limit, DaysSince: daysSince}
}

func renderTemplate(tmpl string, days, limit int, specialty string) string {
	if strings.TrimSpace(specialty) == "" {
		specialty = "sua especialidade"
	}
	out := strings.ReplaceAll(tmpl, "{days}", strconv.Itoa(days))
	out = strings.ReplaceAll(out, "{limit}", strconv.Itoa(limit))
	out = strings.ReplaceAll(out, "{specialty}", specialty)
	return out
}

func loadConsultationPolicy(path string) (*ConsultationPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read consultation policy: %w", err)
	}

	var p ConsultationPolicy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("policy: parse consultation policy: %w", err)
	}
	if len(p.MaxDaysSinceConsultation) == 0 {
		return nil, fmt.Errorf("policy: consultation policy has no limits")
	}
	if p.Messages.Expired == "" || p.Messages.WarningNearLimit == "" {
		return nil, fmt.Errorf("policy: consultation policy is missing message templates")
	}
	return &p, nil
}
