// Package safety classifies patient questions against the clinical keyword
// policy and gates generated answers against the deny list.
package safety

import (
	"fmt"

	"github.com/telemed/dr-ai-service/internal/policy"
	"github.com/telemed/dr-ai-service/internal/textnorm"
)

// MatchType tags the outcome of question classification. Values are ordered
// by clinical risk; classification always returns the highest-risk match.
type MatchType string

const (
	MatchEmergency  MatchType = "emergency"
	MatchNewSymptom MatchType = "new_symptom"
	MatchOutOfScope MatchType = "out_of_scope"
	MatchNone       MatchType = ""
)

// Verdict is the result of validating a patient question.
type Verdict struct {
	Safe    bool
	Type    MatchType
	Keyword string
	Reason  string
}

// DenyListError reports a deny-list phrase found in a generated answer.
type DenyListError struct {
	Phrase string
}

func (e *DenyListError) Error() string {
	return fmt.Sprintf("safety: disallowed clinical content detected: %q", e.Phrase)
}

// Validator applies the current safety policy snapshot to questions and
// generated answers.
type Validator struct {
	policies *policy.SafetyStore
}

// NewValidator creates a validator reading from the given policy store.
func NewValidator(policies *policy.SafetyStore) *Validator {
	return &Validator{policies: policies}
}

// rule binds a keyword group to its classification tag. Slice order is the
// priority order: a question matching both an emergency term and an
// out-of-scope term is always classified as emergency, because false
// negatives on safety cost more than false negatives on scope.
type rule struct {
	matchType MatchType
	keywords  func(*policy.SafetyPolicy) []string
	reason    string
}

var questionRules = []rule{
	{MatchEmergency, func(p *policy.SafetyPolicy) []string { return p.EmergencyKeywords }, "Palavra-chave de emergência detectada"},
	{MatchNewSymptom, func(p *policy.SafetyPolicy) []string { return p.NewSymptomKeywords }, "Possível sintoma novo detectado"},
	{MatchOutOfScope, func(p *policy.SafetyPolicy) []string { return p.OutOfScopeKeywords }, "Pergunta fora do escopo"},
}

// ValidateQuestion classifies a question in strict priority order; the
// first matching rule wins.
func (v *Validator) ValidateQuestion(question string) Verdict {
	p := v.policies.Current()

	for _, r := range questionRules {
		if m := textnorm.FindKeyword(question, r.keywords(p)); m.Found {
			return Verdict{
				Safe:    false,
				Type:    r.matchType,
				Keyword: m.Keyword,
				Reason:  fmt.Sprintf("%s: %q", r.reason, m.Keyword),
			}
		}
	}

	return Verdict{Safe: true, Type: MatchNone}
}

// IsEmergency reports whether the question matches any emergency keyword.
// Used as a defensive re-check after model generation: the keyword gate
// outranks model judgment.
func (v *Validator) IsEmergency(question string) bool {
	p := v.policies.Current()
	return textnorm.FindKeyword(question, p.EmergencyKeywords).Found
}

// ValidateResponse is the post-generation gate: it returns a DenyListError
// when the generated text contains any deny-list phrase, regardless of how
// the answer is typed. Last line of defense against the model inventing
// new clinical advice.
func (v *Validator) ValidateResponse(generated string) error {
	p := v.policies.Current()
	if m := textnorm.FindKeyword(generated, p.DenyPhrases); m.Found {
		return &DenyListError{Phrase: m.Keyword}
	}
	return nil
}
