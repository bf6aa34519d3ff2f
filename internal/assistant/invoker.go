package assistant

import (
	"context"
	"math/rand"
	"time"

	"github.com/telemed/dr-ai-service/internal/observability/metrics"
	"github.com/telemed/dr-ai-service/internal/safety"
	"github.com/telemed/dr-ai-service/pkg/logging"
)

// InvokerConfig tunes the retry/fallback state machine.
type InvokerConfig struct {
	// Timeout bounds each individual model call.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts per model after the
	// first one.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per attempt with
	// jitter.
	BackoffBase time.Duration
	Temperature float32
	MaxTokens   int32
}

func (c InvokerConfig) withDefaults() InvokerConfig {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	return c
}

// AskRequest carries the question plus the grounded encounter context.
type AskRequest struct {
	Question         string
	OrientationsText string
	DoctorName       string
	ConsultDate      string
	Specialty        string
}

// Outcome reports how the answer was produced, for auditing and telemetry.
type Outcome struct {
	ModelUsed    string
	Attempts     int
	FallbackUsed bool
	SafeDefault  bool
	// EmergencyOverride is set when the keyword gate overrode a
	// non-emergency model answer.
	EmergencyOverride bool
}

// Invoker drives the model call state machine:
// primary (with retries) -> fallback (with retries) -> safe default.
type Invoker struct {
	primary   LLMClient
	fallback  LLMClient
	validator *safety.Validator
	metrics   *metrics.AnswerMetrics
	logger    *logging.Logger
	cfg       InvokerConfig
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewInvoker creates the model invoker. fallback may be nil; when it is
// nil or shares the primary's model id it is never consulted.
func NewInvoker(primary, fallback LLMClient, validator *safety.Validator, m *metrics.AnswerMetrics, logger *logging.Logger, cfg InvokerConfig) *Invoker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Invoker{
		primary:   primary,
		fallback:  fallback,
		validator: validator,
		metrics:   m,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		sleep:     sleepCtx,
	}
}

// Ask produces a schema-valid structured answer for the question, never an
// error: total model failure degrades to the fixed safe fallback payload.
func (inv *Invoker) Ask(ctx context.Context, req AskRequest) (StructuredAnswer, Outcome) {
	// Nothing grounded to answer from: do not even call the model.
	if req.OrientationsText == "" {
		return StructuredAnswer{
			Tipo:     TypeForaEscopo,
			Mensagem: "Não localizei orientações registradas na sua última consulta. Posso encaminhar para o médico?",
			Metadados: Metadata{
				Medico:       req.DoctorName,
				DataConsulta: req.ConsultDate,
			},
		}, Outcome{}
	}

	llmReq := LLMRequest{
		System: BuildSystemPrompt(PromptContext{
			DoctorName:       req.DoctorName,
			ConsultDate:      req.ConsultDate,
			Specialty:        req.Specialty,
			OrientationsText: req.OrientationsText,
		}),
		UserMessage: BuildUserMessage(req.Question),
		MaxTokens:   inv.cfg.MaxTokens,
		Temperature: inv.cfg.Temperature,
	}

	outcome := Outcome{}

	answer, ok := inv.tryModel(ctx, inv.primary, llmReq, false, &outcome)
	if !ok && inv.hasDistinctFallback() {
		outcome.FallbackUsed = true
		inv.metrics.ObserveFallbackUsed()
		inv.logger.Warn("primary model exhausted, switching to fallback",
			"primary", inv.primary.ModelID(),
			"fallback", inv.fallback.ModelID(),
		)
		answer, ok = inv.tryModel(ctx, inv.fallback, llmReq, true, &outcome)
	}

	if !ok {
		inv.logger.Error("all model attempts failed, returning safe default",
			"attempts", outcome.Attempts,
		)
		outcome.SafeDefault = true
		fallback := SafeFallbackAnswer()
		fallback.Metadados.Medico = req.DoctorName
		fallback.Metadados.DataConsulta = req.ConsultDate
		return fallback, outcome
	}

	answer = inv.fillMetadata(answer, req)
	answer, outcome.EmergencyOverride = inv.applyEmergencyOverride(answer, req.Question)
	return answer, outcome
}

func (inv *Invoker) hasDistinctFallback() bool {
	return inv.fallback != nil && inv.fallback.ModelID() != inv.primary.ModelID()
}

// tryModel runs one model through its attempt budget. Schema violations
// and deny-list hits count as failed attempts like transport errors do.
func (inv *Invoker) tryModel(ctx context.Context, client LLMClient, req LLMRequest, isFallback bool, outcome *Outcome) (StructuredAnswer, bool) {
	modelID := client.ModelID()

	for attempt := 0; attempt <= inv.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := inv.sleep(ctx, backoffDelay(inv.cfg.BackoffBase, attempt-1)); err != nil {
				return StructuredAnswer{}, false
			}
		}
		outcome.Attempts++

		answer, err := inv.callOnce(ctx, client, req, isFallback)
		if err == nil {
			outcome.ModelUsed = modelID
			inv.metrics.ObserveAttempt(modelID, isFallback, true)
			return answer, true
		}

		inv.metrics.ObserveAttempt(modelID, isFallback, false)
		inv.logger.Warn("model attempt failed",
			"model", modelID,
			"attempt", attempt+1,
			"fallback", isFallback,
			"error", err,
		)

		if ctx.Err() != nil {
			return StructuredAnswer{}, false
		}
	}
	return StructuredAnswer{}, false
}

func (inv *Invoker) callOnce(ctx context.Context, client LLMClient, req LLMRequest, isFallback bool) (StructuredAnswer, error) {
	callCtx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Complete(callCtx, req)
	inv.metrics.ObserveModelLatency(client.ModelID(), isFallback, time.Since(start).Seconds())
	if err != nil {
		return StructuredAnswer{}, err
	}

	answer, err := ParseStructuredAnswer(resp.Text)
	if err != nil {
		inv.metrics.ObserveSchemaInvalid()
		return StructuredAnswer{}, err
	}

	// Last line of defense: a deny-list phrase in the generated text is
	// treated exactly like a failed attempt.
	if err := inv.validator.ValidateResponse(answer.Mensagem); err != nil {
		inv.metrics.ObserveDenyListHit()
		return StructuredAnswer{}, err
	}

	return answer, nil
}

// fillMetadata backfills doctor/date/specialty when the model left them
// out; the encounter record, not the model, is the source of truth.
func (inv *Invoker) fillMetadata(answer StructuredAnswer, req AskRequest) StructuredAnswer {
	if answer.Metadados.Medico == "" {
		answer.Metadados.Medico = req.DoctorName
	}
	if answer.Metadados.DataConsulta == "" || !consultDateRe.MatchString(answer.Metadados.DataConsulta) {
		answer.Metadados.DataConsulta = req.ConsultDate
	}
	if answer.Metadados.Especialidade == "" {
		answer.Metadados.Especialidade = req.Specialty
	}
	return answer
}

// applyEmergencyOverride re-checks the original question against the
// emergency keywords after a successful model call. The keyword gate
// always outranks model judgment.
func (inv *Invoker) applyEmergencyOverride(answer StructuredAnswer, question string) (StructuredAnswer, bool) {
	if answer.Tipo == TypeEscalaEmergencia || !inv.validator.IsEmergency(question) {
		return answer, false
	}

	inv.logger.Warn("emergency keywords in question but model answered otherwise, forcing escalation",
		"model_tipo", string(answer.Tipo),
	)
	answer.Tipo = TypeEscalaEmergencia
	answer.Mensagem = "ATENÇÃO: Detectei sinais de possível emergência. " + answer.Mensagem
	return answer, true
}

func backoffDelay(base time.Duration, retry int) time.Duration {
	delay := base << retry
	jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
