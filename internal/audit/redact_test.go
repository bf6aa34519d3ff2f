package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeStore(t *testing.T) {
	text := "posso tomar o remédio com leite?"
	truncated, digest := SafeStore(text, 500)

	assert.Equal(t, text, truncated, "short text is kept whole")
	sum := sha256.Sum256([]byte(text))
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)
}

func TestSafeStoreTruncates(t *testing.T) {
	long := strings.Repeat("a", 600)
	truncated, digest := SafeStore(long, 500)

	assert.Len(t, truncated, 500)
	assert.NotEmpty(t, digest)

	// Digest covers the full text, not the excerpt.
	_, shortDigest := SafeStore(long[:500], 500)
	assert.NotEqual(t, shortDigest, digest)
}

func TestSafeStoreEmpty(t *testing.T) {
	truncated, digest := SafeStore("", 500)
	assert.Empty(t, truncated)
	assert.Empty(t, digest)
}

func TestSafeStoreMultibyteBoundary(t *testing.T) {
	text := strings.Repeat("ã", 10)
	truncated, _ := SafeStore(text, 5)
	assert.Equal(t, strings.Repeat("ã", 5), truncated, "truncation counts runes, not bytes")
}

func TestPseudonymize(t *testing.T) {
	a := Pseudonymize(42, "salt-1")
	b := Pseudonymize(42, "salt-1")
	c := Pseudonymize(43, "salt-1")
	d := Pseudonymize(42, "salt-2")

	assert.Len(t, a, 16)
	assert.Equal(t, a, b, "stable for the same id and salt")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)

	assert.Equal(t, "42", Pseudonymize(42, ""), "no salt falls back to the raw id")
}

func TestRedactPII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "contato: paciente@example.com obrigado", "contato: <email> obrigado"},
		{"phone", "me liga no (11) 98765-4321", "me liga no <telefone>"},
		{"cpf", "meu cpf é 123.456.789-01", "meu cpf é <cpf>"},
		{"rg", "rg 12.345.678-X aqui", "rg <rg> aqui"},
		{"clean text untouched", "dor de cabeça leve", "dor de cabeça leve"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactPII(tt.in))
		})
	}
}
