// Package audit persists a compliance-grade, PII-redacted trace of every
// answered question. Full question/answer text never reaches storage or
// logs: only a truncated excerpt plus a one-way digest, enough for pattern
// analysis and complaint investigation.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
)

// MaxStoredTextLen bounds the question/answer excerpt kept in the audit
// record.
const MaxStoredTextLen = 500

// SafeStore truncates text to max runes and computes a SHA-256 digest of
// the full content. The digest supports duplicate detection without
// retaining the original.
func SafeStore(text string, max int) (truncated, digest string) {
	if text == "" {
		return "", ""
	}

	sum := sha256.Sum256([]byte(text))
	digest = hex.EncodeToString(sum[:])

	runes := []rune(text)
	if len(runes) > max {
		runes = runes[:max]
	}
	return string(runes), digest
}

// Pseudonymize maps a patient id to a stable 16-hex-char token using an
// HMAC keyed by salt. Without a salt the raw id is returned; callers log a
// warning in that case.
func Pseudonymize(patientID int64, salt string) string {
	if salt == "" {
		return strconv.FormatInt(patientID, 10)
	}
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(strconv.FormatInt(patientID, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	phoneRe = regexp.MustCompile(`\b(?:\+?55\s?)?(?:\(?\d{2}\)?\s?)?\d{4,5}[- ]?\d{4}\b`)
	cpfRe   = regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b|\b\d{11}\b`)
	rgRe    = regexp.MustCompile(`\b\d{1,2}\.\d{3}\.\d{3}-[\dX]\b`)
)

// RedactPII masks e-mails, Brazilian phone numbers, CPF and RG documents
// in free text before it is written to application logs.
func RedactPII(text string) string {
	if text == "" {
		return text
	}
	out := emailRe.ReplaceAllString(text, "<email>")
	out = phoneRe.ReplaceAllString(out, "<telefone>")
	out = cpfRe.ReplaceAllString(out, "<cpf>")
	out = rgRe.ReplaceAllString(out, "<rg>")
	return out
}
