package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/telemed/dr-ai-service/internal/audit"
	"github.com/telemed/dr-ai-service/internal/encounter"
	"github.com/telemed/dr-ai-service/internal/observability/metrics"
	"github.com/telemed/dr-ai-service/internal/policy"
	"github.com/telemed/dr-ai-service/internal/ratelimit"
	"github.com/telemed/dr-ai-service/internal/safety"
	"github.com/telemed/dr-ai-service/pkg/logging"
)

var tracer = otel.Tracer("assistant")

// AnswerRequest is one inbound patient question.
type AnswerRequest struct {
	Question  string
	PatientID int64
	IP        string
}

// AnswerResult pairs the structured answer with transport hints. Status is
// http.StatusTooManyRequests only for admission rejections; every other
// outcome, including total model failure, is a 200 with a typed answer.
type AnswerResult struct {
	Answer        StructuredAnswer
	Status        int
	RetryAfterSec int
}

// Service runs the ordered answering pipeline: rate limit, safety
// classification, consultation recency, model invocation, audit.
type Service struct {
	limiter       ratelimit.Limiter
	validator     *safety.Validator
	consultations *policy.ConsultationStore
	encounters    encounter.Repository
	invoker       *Invoker
	sink          *audit.Sink
	metrics       *metrics.AnswerMetrics
	logger        *logging.Logger
	now           func() time.Time
}

// NewService wires the pipeline stages together.
func NewService(
	limiter ratelimit.Limiter,
	validator *safety.Validator,
	consultations *policy.ConsultationStore,
	encounters encounter.Repository,
	invoker *Invoker,
	sink *audit.Sink,
	m *metrics.AnswerMetrics,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		limiter:       limiter,
		validator:     validator,
		consultations: consultations,
		encounters:    encounters,
		invoker:       invoker,
		sink:          sink,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Answer runs one question through every gate in order. It never returns
// an error: each failure mode maps to a typed StructuredAnswer.
func (s *Service) Answer(ctx context.Context, req AnswerRequest) AnswerResult {
	ctx, span := tracer.Start(ctx, "assistant.answer")
	defer span.End()
	span.SetAttributes(attribute.Int64("telemed.patient_id", req.PatientID))

	// Admission gate.
	decision, err := s.limiter.Allow(ctx, ratelimit.Request{
		PatientID: strconv.FormatInt(req.PatientID, 10),
		IP:        req.IP,
	})
	if err != nil {
		s.logger.Warn("rate limiter error, admitting request", "error", err)
		decision = ratelimit.Decision{OK: true}
	}
	if !decision.OK {
		retryAfter := decision.RetryAfterSec()
		s.metrics.ObserveRateLimitBlock(string(decision.Scope))
		span.SetAttributes(attribute.Bool("telemed.rate_limited", true))
		return AnswerResult{
			Status:        http.StatusTooManyRequests,
			RetryAfterSec: retryAfter,
			Answer: StructuredAnswer{
				Tipo:      TypeErro,
				Mensagem:  fmt.Sprintf("Muitas requisições. Tente novamente em %d segundos.", retryAfter),
				Metadados: Metadata{RetryAfterSeconds: retryAfter},
			},
		}
	}

	// Safety gate: classify the question before anything else runs.
	verdict := s.validator.ValidateQuestion(req.Question)
	s.metrics.ObserveSafetyValidation(string(verdict.Type), !verdict.Safe)
	if !verdict.Safe {
		span.SetAttributes(attribute.String("telemed.safety_match", string(verdict.Type)))
		answer := s.classificationAnswer(verdict)
		s.metrics.ObserveEscalation(string(answer.Tipo))
		s.audit(ctx, 0, req, answer, Outcome{})
		return AnswerResult{Status: http.StatusOK, Answer: answer}
	}

	// Grounding: the most recent encounter and its orientations.
	encCtx, err := s.encounters.LastEncounter(ctx, req.PatientID)
	if err != nil {
		s.logger.Error("encounter lookup failed", "patient_id", req.PatientID, "error", err)
		answer := SafeFallbackAnswer()
		s.audit(ctx, 0, req, answer, Outcome{SafeDefault: true})
		return AnswerResult{Status: http.StatusOK, Answer: answer}
	}
	if encCtx == nil {
		answer := StructuredAnswer{
			Tipo:     TypeForaEscopo,
			Mensagem: "Não encontrei sua última consulta no sistema. Posso encaminhar ao médico?",
		}
		s.audit(ctx, 0, req, answer, Outcome{})
		return AnswerResult{Status: http.StatusOK, Answer: answer}
	}

	doctorName := encCtx.Encounter.DoctorName
	consultDate := encCtx.Encounter.Date.Format("02/01/2006")
	specialty := encCtx.Encounter.Specialty

	// Recency gate: stale consultations are not safe grounding.
	daysSince := encCtx.DaysSince(s.now())
	ageCheck := s.consultations.ValidateConsultationAge(daysSince, specialty)
	if !ageCheck.Valid {
		span.SetAttributes(attribute.Bool("telemed.consultation_expired", true))
		answer := StructuredAnswer{
			Tipo:     TypeForaEscopo,
			Mensagem: ageCheck.Message,
			Metadados: Metadata{
				Medico:            doctorName,
				DataConsulta:      consultDate,
				Especialidade:     specialty,
				DiasDesdeConsulta: daysSince,
				LimiteDias:        ageCheck.Limit,
			},
		}
		s.metrics.ObserveEscalation(string(TypeForaEscopo))
		s.audit(ctx, encCtx.Encounter.ID, req, answer, Outcome{})
		return AnswerResult{Status: http.StatusOK, Answer: answer}
	}

	// Model invocation under retry/fallback/safe-default discipline.
	answer, outcome := s.invoker.Ask(ctx, AskRequest{
		Question:         req.Question,
		OrientationsText: encCtx.OrientationsText(),
		DoctorName:       doctorName,
		ConsultDate:      consultDate,
		Specialty:        specialty,
	})
	span.SetAttributes(
		attribute.String("telemed.answer_tipo", string(answer.Tipo)),
		attribute.Bool("telemed.fallback_used", outcome.FallbackUsed),
	)

	if ageCheck.Warning != "" && answer.Tipo == TypeEsclarecimento {
		answer.Metadados.Aviso = ageCheck.Warning
	}
	if answer.Tipo != TypeEsclarecimento {
		s.metrics.ObserveEscalation(string(answer.Tipo))
	}

	s.audit(ctx, encCtx.Encounter.ID, req, answer, outcome)
	return AnswerResult{Status: http.StatusOK, Answer: answer}
}

// classificationAnswer maps a safety verdict to its terminal structured
// answer. New-symptom reports escalate to the care team like emergencies
// do, with a softer message.
func (s *Service) classificationAnswer(v safety.Verdict) StructuredAnswer {
	switch v.Type {
	case safety.MatchEmergency:
		return StructuredAnswer{
			Tipo:      TypeEscalaEmergencia,
			Mensagem:  fmt.Sprintf("ATENÇÃO: Detectei sinais de possível emergência médica (%s). Vou te conectar com a equipe médica AGORA. Por favor, aguarde.", v.Keyword),
			Metadados: Metadata{PalavraChave: v.Keyword},
		}
	case safety.MatchNewSymptom:
		return StructuredAnswer{
			Tipo:      TypeEscalaEmergencia,
			Mensagem:  fmt.Sprintf("Percebo que você está relatando algo novo (%s). Preciso encaminhar você para avaliação médica. Vou conectar você com a equipe agora.", v.Keyword),
			Metadados: Metadata{PalavraChave: v.Keyword},
		}
	default:
		return StructuredAnswer{
			Tipo:      TypeForaEscopo,
			Mensagem:  fmt.Sprintf("Essa questão (%s) está fora do meu escopo de esclarecer orientações existentes. Posso agendar um contato com seu médico para discutir isso?", v.Keyword),
			Metadados: Metadata{PalavraChave: v.Keyword},
		}
	}
}

func (s *Service) audit(ctx context.Context, encounterID int64, req AnswerRequest, answer StructuredAnswer, outcome Outcome) {
	if s.sink == nil {
		return
	}

	reason := ""
	if answer.Tipo != TypeEsclarecimento {
		reason = string(answer.Tipo)
	}

	s.sink.Record(ctx, audit.Interaction{
		EncounterID:      encounterID,
		PatientID:        req.PatientID,
		Question:         req.Question,
		Answer:           answer.Mensagem,
		Escalation:       answer.Tipo == TypeForaEscopo,
		Emergency:        answer.Tipo == TypeEscalaEmergencia,
		EscalationReason: reason,
		ModelMetadata: audit.ModelMetadata{
			Model:        outcome.ModelUsed,
			FallbackUsed: outcome.FallbackUsed,
			Specialty:    answer.Metadados.Especialidade,
			Version:      "v1",
		},
	})
}
