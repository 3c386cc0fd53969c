package security

import (
	"errors"
	"unicode"
)

var (
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrControlCharacter  = errors.New("control character in input")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

// InputValidator screens free text such as catalog names and descriptions
type InputValidator struct {
	MaxSize       int
	MaxRepetition int
	AllowNewlines bool
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:       4 * 1024,
		MaxRepetition: 100,
		AllowNewlines: true,
	}
}

func (v *InputValidator) Validate(input string) error {
	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}

	for _, r := range input {
		if r == 0 {
			return ErrNullByteDetected
		}
		if unicode.IsControl(r) {
			if v.AllowNewlines && (r == '\n' || r == '\t' || r == '\r') {
				continue
			}
			return ErrControlCharacter
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

var (
	textValidator = NewInputValidator()
	nameValidator = &InputValidator{MaxSize: 200, MaxRepetition: 50}
)

// ValidateText checks a multi-line free text field
func ValidateText(input string) error {
	return textValidator.Validate(input)
}

// ValidateName checks a single-line label
func ValidateName(input string) error {
	return nameValidator.Validate(input)
}
