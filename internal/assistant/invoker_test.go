package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed/dr-ai-service/internal/observability/metrics"
	"github.com/telemed/dr-ai-service/internal/policy"
	"github.com/telemed/dr-ai-service/internal/safety"
)

type fakeLLM struct {
	id    string
	calls int
	fn    func(call int) (LLMResponse, error)
}

func (f *fakeLLM) ModelID() string { return f.id }

func (f *fakeLLM) Complete(_ context.Context, _ LLMRequest) (LLMResponse, error) {
	f.calls++
	return f.fn(f.calls)
}

func alwaysJSON(text string) func(int) (LLMResponse, error) {
	return func(int) (LLMResponse, error) {
		return LLMResponse{Text: text}, nil
	}
}

func alwaysErr(err error) func(int) (LLMResponse, error) {
	return func(int) (LLMResponse, error) {
		return LLMResponse{}, err
	}
}

const validAnswerJSON = `{"tipo":"esclarecimento","mensagem":"Com base nas orientações do(a) Dr. Silva em 10/01/2026, tome com água.","metadados":{"medico":"Dr. Silva","data_consulta":"10/01/2026"}}`

func newTestValidator(t *testing.T) *safety.Validator {
	t.Helper()
	store := policy.NewSafetyStore("testdata/does-not-exist.yaml", nil)
	return safety.NewValidator(store)
}

func newTestInvoker(t *testing.T, primary, fallback LLMClient, cfg InvokerConfig) *Invoker {
	t.Helper()
	m := metrics.NewAnswerMetrics(prometheus.NewRegistry())
	inv := NewInvoker(primary, fallback, newTestValidator(t), m, nil, cfg)
	inv.sleep = func(context.Context, time.Duration) error { return nil }
	return inv
}

func askReq(question string) AskRequest {
	return AskRequest{
		Question:         question,
		OrientationsText: "- medicacao: tomar dipirona de 8 em 8 horas",
		DoctorName:       "Dr. Silva",
		ConsultDate:      "10/01/2026",
		Specialty:        "clinica geral",
	}
}

func TestAskWithoutOrientationsSkipsModel(t *testing.T) {
	primary := &fakeLLM{id: "primary", fn: alwaysJSON(validAnswerJSON)}
	inv := newTestInvoker(t, primary, nil, InvokerConfig{})

	req := askReq("posso tomar com leite?")
	req.OrientationsText = ""

	answer, outcome := inv.Ask(context.Background(), req)
	assert.Equal(t, TypeForaEscopo, answer.Tipo)
	assert.Zero(t, primary.calls)
	assert.Zero(t, outcome.Attempts)
	assert.Equal(t, "Dr. Silva", answer.Metadados.Medico)
}

func TestAskPrimarySucceeds(t *testing.T) {
	primary := &fakeLLM{id: "primary", fn: alwaysJSON(validAnswerJSON)}
	inv := newTestInvoker(t, primary, nil, InvokerConfig{MaxRetries: 2})

	answer, outcome := inv.Ask(context.Background(), askReq("posso tomar com leite?"))
	require.Equal(t, TypeEsclarecimento, answer.Tipo)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "primary", outcome.ModelUsed)
	assert.False(t, outcome.FallbackUsed)
	assert.False(t, outcome.SafeDefault)
}

func TestAskFallsBackAfterPrimaryExhausted(t *testing.T) {
	primary := &fakeLLM{id: "primary", fn: alwaysErr(errors.New("deadline exceeded"))}
	fallback := &fakeLLM{id: "fallback", fn: alwaysJSON(validAnswerJSON)}
	inv := newTestInvoker(t, primary, fallback, InvokerConfig{MaxRetries: 1})

	answer, outcome := inv.Ask(context.Background(), askReq("posso tomar com leite?"))
	require.Equal(t, TypeEsclarecimento, answer.Tipo)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 3, outcome.Attempts)
	assert.True(t, outcome.FallbackUsed)
	assert.Equal(t, "fallback", outcome.ModelUsed)
}

func TestAskRetriesOnInvalidJSON(t *testing.T) {
	primary := &fakeLLM{id: "primary", fn: func(call int) (LLMResponse, error) {
		if call == 1 {
			return LLMResponse{Text: "desculpe, não consegui"}, nil
		}
		return LLMResponse{Text: validAnswerJSON}, nil
	}}
	inv := newTestInvoker(t, primary, nil, InvokerConfig{MaxRetries: 1})

	answer, outcome := inv.Ask(context.Background(), askReq("posso tomar com leite?"))
	assert.Equal(t, TypeEsclarecimento, answer.Tipo)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestAskAllModelsFailReturnsSafeDefault(t *testing.T) {
	primary := &fakeLLM{id: "primary", fn: alwaysErr(errors.New("boom"))}
	fallback := &fakeLLM{id: "fallback", fn: alwaysErr(errors.New("boom"))}
	inv := newTestInvoker(t, primary, fallback, InvokerConfig{MaxRetries: 1})

	answer, outcome := inv.Ask(context.Background(), askReq("posso tomar com leite?"))
	assert.Equal(t, TypeErro, answer.Tipo)
	assert.Equal(t, SafeFallbackAnswer().Mensagem, answer.Mensagem)
	assert.True(t, outcome.SafeDefault)
	assert.True(t, outcome.FallbackUsed)
	assert.Equal(t, "Dr. Silva", answer.Metadados.Medico)
	assert.Equal(t, "10/01/2026", answer.Metadados.DataConsulta)
}

func TestAskDenyListPhraseRejectsAnswer(t *testing.T) {
	// "aumente a dose" is on the built-in deny list.
	bad := `{"tipo":"esclarecimento","mensagem":"aumente a dose para duas vezes ao dia","metadados":{}}`
	primary := &fakeLLM{id: "primary", fn: alwaysJSON(bad)}
	inv := newTestInvoker(t, primary, nil, InvokerConfig{MaxRetries: 1})

	answer, outcome := inv.Ask(context.Background(), askReq("posso tomar com leite?"))
	assert.Equal(t, TypeErro, answer.Tipo)
	assert.Equal(t, SafeFallbackAnswer().Mensagem, answer.Mensagem)
	assert.True(t, outcome.SafeDefault)
	assert.Equal(t, 2, primary.calls)
}

func TestAskEmergencyOverridesModelAnswer(t *testing.T) {
	primary := &fakeLLM{id: "primary", fn: alwaysJSON(validAnswerJSON)}
	inv := newTestInvoker(t, primary, nil, InvokerConfig{})

	answer, outcome := inv.Ask(context.Background(), askReq("estou com dor no peito, posso tomar com leite?"))
	assert.Equal(t, TypeEscalaEmergencia, answer.Tipo)
	assert.True(t, outcome.EmergencyOverride)
	assert.Contains(t, answer.Mensagem, "ATENÇÃO: Detectei sinais de possível emergência.")
}

func TestAskFillsMissingMetadataFromEncounter(t *testing.T) {
	bare := `{"tipo":"esclarecimento","mensagem":"Tome com água.","metadados":{}}`
	primary := &fakeLLM{id: "primary", fn: alwaysJSON(bare)}
	inv := newTestInvoker(t, primary, nil, InvokerConfig{})

	answer, _ := inv.Ask(context.Background(), askReq("posso tomar com leite?"))
	assert.Equal(t, "Dr. Silva", answer.Metadados.Medico)
	assert.Equal(t, "10/01/2026", answer.Metadados.DataConsulta)
	assert.Equal(t, "clinica geral", answer.Metadados.Especialidade)
}
