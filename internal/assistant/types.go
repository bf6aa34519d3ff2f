// Package assistant implements the safety-gated answering pipeline: rate
// limiting, question classification, consultation recency checks, model
// invocation under timeout/retry/fallback discipline and audited output.
package assistant

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// AnswerType discriminates the caller-visible behaviour of an answer: it
// decides whether the UI shows a clarification, an emergency CTA or a
// handoff to the care team.
type AnswerType string

const (
	TypeEsclarecimento   AnswerType = "esclarecimento"
	TypeEscalaEmergencia AnswerType = "escala_emergencia"
	TypeForaEscopo       AnswerType = "fora_escopo"
	TypeErro             AnswerType = "erro"
)

var validTypes = map[AnswerType]bool{
	TypeEsclarecimento:   true,
	TypeEscalaEmergencia: true,
	TypeForaEscopo:       true,
	TypeErro:             true,
}

// consultDateRe is the dd/mm/yyyy contract for metadados.data_consulta.
var consultDateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// Metadata travels with every structured answer.
type Metadata struct {
	Medico            string `json:"medico"`
	DataConsulta      string `json:"data_consulta"`
	Especialidade     string `json:"especialidade,omitempty"`
	DiasDesdeConsulta int    `json:"dias_desde_consulta,omitempty"`
	LimiteDias        int    `json:"limite_dias,omitempty"`
	Aviso             string `json:"aviso,omitempty"`
	PalavraChave      string `json:"palavra_chave,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_sec,omitempty"`
}

// StructuredAnswer is the canonical output contract of the pipeline.
// Created exactly once per request and never mutated afterwards.
type StructuredAnswer struct {
	Tipo      AnswerType `json:"tipo"`
	Mensagem  string     `json:"mensagem"`
	Metadados Metadata   `json:"metadados"`
}

// Validate enforces the response schema: known tipo, non-empty mensagem,
// data_consulta either empty or dd/mm/yyyy.
func (a StructuredAnswer) Validate() error {
	if !validTypes[a.Tipo] {
		return fmt.Errorf("assistant: invalid answer type %q", a.Tipo)
	}
	if strings.TrimSpace(a.Mensagem) == "" {
		return fmt.Errorf("assistant: answer message is empty")
	}
	if d := a.Metadados.DataConsulta; d != "" && !consultDateRe.MatchString(d) {
		return fmt.Errorf("assistant: invalid consultation date %q", d)
	}
	return nil
}

// SafeFallbackAnswer is the fixed payload returned when every model
// attempt fails: the patient is never shown silence or a raw error.
func SafeFallbackAnswer() StructuredAnswer {
	return StructuredAnswer{
		Tipo:     TypeErro,
		Mensagem: "Não consegui processar sua pergunta de forma segura. Vou te conectar com a equipe médica agora.",
	}
}

// ParseStructuredAnswer extracts the first well-formed JSON object from raw
// model output and validates it against the answer schema. Models are
// instructed to emit pure JSON but occasionally wrap it in prose.
func ParseStructuredAnswer(raw string) (StructuredAnswer, error) {
	content := strings.TrimSpace(raw)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return StructuredAnswer{}, fmt.Errorf("assistant: no JSON object in model output")
	}
	content = content[start : end+1]

	var answer StructuredAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return StructuredAnswer{}, fmt.Errorf("assistant: decode model output: %w", err)
	}
	if err := answer.Validate(); err != nil {
		return StructuredAnswer{}, err
	}
	return answer, nil
}
