package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips accents", "Está com dor?", "esta com dor"},
		{"upper case and punctuation", "FALTA DE AR!!!", "falta de ar"},
		{"cedilla and tilde", "Você está bem?", "voce esta bem"},
		{"collapses whitespace", "dor   no \t peito", "dor no peito"},
		{"empty input", "", ""},
		{"only punctuation", "?!...", ""},
		{"already normalized", "dor no peito", "dor no peito"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Está com dor no peito?",
		"FALTA DE AR!!!",
		"posso tomar outro remédio",
		"",
		"Sangramento   intenso, confusão mental...",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestContainsKeyword(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		keyword string
		want    bool
	}{
		{"exact phrase", "Estou com dor no peito", "dor no peito", true},
		{"word boundary blocks partial match", "Adorei o atendimento", "dor", false},
		{"accent insensitive", "estou com confusao mental", "confusão mental", true},
		{"case insensitive", "FALTA DE AR", "falta de ar", true},
		{"absent keyword", "tudo certo por aqui", "sangramento", false},
		{"empty keyword", "qualquer texto", "", false},
		{"empty text", "", "dor", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsKeyword(tt.text, tt.keyword))
		})
	}
}

func TestFindKeyword(t *testing.T) {
	keywords := []string{"dor no peito", "falta de ar", "sangramento"}

	m := FindKeyword("sinto falta de ar e sangramento", keywords)
	assert.True(t, m.Found)
	assert.Equal(t, "falta de ar", m.Keyword, "first match in list order wins")

	m = FindKeyword("pergunta tranquila sobre dieta", keywords)
	assert.False(t, m.Found)
	assert.Empty(t, m.Keyword)
}
