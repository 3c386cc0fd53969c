package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputValidator_Valid(t *testing.T) {
	v := NewInputValidator()
	for _, input := range []string{
		"Increase Physical Activity",
		"Add 15 minutes of moderate exercise 3x weekly.\nReview in 4 weeks.",
		strings.Repeat("ab", 1000),
		"",
	} {
		assert.NoError(t, v.Validate(input))
	}
}

func TestInputValidator_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		v     *InputValidator
		input string
		want  error
	}{
		{"too large", &InputValidator{MaxSize: 10}, strings.Repeat("a", 11), ErrInputTooLarge},
		{"null byte", NewInputValidator(), "Metformin\x00", ErrNullByteDetected},
		{"escape sequence", NewInputValidator(), "\x1b[31mred", ErrControlCharacter},
		{"newline in name", &InputValidator{MaxSize: 200}, "two\nlines", ErrControlCharacter},
		{"repetition", NewInputValidator(), strings.Repeat("!", 101), ErrRepetitiveContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Validate(tt.input))
		})
	}
}

func TestValidateNameAndText(t *testing.T) {
	assert.NoError(t, ValidateName("Weekly Glucose Monitoring"))
	assert.Equal(t, ErrControlCharacter, ValidateName("Weekly\nMonitoring"))
	assert.Equal(t, ErrInputTooLarge, ValidateName(strings.Repeat("ab", 101)))
	assert.NoError(t, ValidateText("Line one.\nLine two."))
}
