package store

import (
	"strings"
	"testing"
)

func TestValidateQueueName(t *testing.T) {
	valid := []string{
		"orders",
		"q",
		"emails_outbound",
		"tenant-7.retries",
		strings.Repeat("a", 48),
	}
	for _, name := range valid {
		if err := ValidateQueueName(name); err != nil {
			t.Errorf("ValidateQueueName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		strings.Repeat("a", 49),
		"orders$",
		"orders;drop",
		"orders--comment",
		"orders'",
		`orders"`,
	}
	for _, name := range invalid {
		err := ValidateQueueName(name)
		if err == nil {
			t.Errorf("ValidateQueueName(%q) = nil, want error", name)
			continue
		}
		if !IsValidation(err) {
			t.Errorf("ValidateQueueName(%q) = %v, want a validation error", name, err)
		}
	}
}
