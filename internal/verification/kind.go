package verification

import (
	"fmt"
	"time"

	"onboarding/internal/backend"
)

// Kind identifies an out-of-band verification flow.
type Kind string

const (
	// KindAadhaar is the DigiLocker redirect flow.
	KindAadhaar Kind = "aadhaar"
	// KindESign is the document e-sign redirect flow.
	KindESign Kind = "esign"
	// KindUPICollect is the UPI collect request used for bank linking.
	KindUPICollect Kind = "upi_collect"
)

// ParseKind validates a raw kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindAadhaar, KindESign, KindUPICollect:
		return k, nil
	}
	return "", fmt.Errorf("unknown verification kind %q", raw)
}

// CompletionField names the status field whose presence marks completion.
type CompletionField string

const (
	FieldName              CompletionField = "name"
	FieldDocumentURL       CompletionField = "document_url"
	FieldAccountHolderName CompletionField = "account_holder_name"
)

func (f CompletionField) valueOf(resp backend.StatusResponse) string {
	switch f {
	case FieldName:
		return resp.Name
	case FieldDocumentURL:
		return resp.DocumentURL
	case FieldAccountHolderName:
		return resp.AccountHolderName
	}
	return ""
}

// KindConfig is the polling budget and completion rule of one kind.
type KindConfig struct {
	Interval    time.Duration   `yaml:"interval"`
	Timeout     time.Duration   `yaml:"timeout"`
	MaxAttempts int             `yaml:"max_attempts"`
	Watchdog    time.Duration   `yaml:"watchdog"`
	Completion  CompletionField `yaml:"completion"`
	// MatchName reconciles the reported holder name with the stored
	// government-ID name before completing.
	MatchName bool `yaml:"match_name"`
	// InitRetries bounds retries of the initialize call on transient errors.
	InitRetries uint64 `yaml:"init_retries"`
}

// Validate checks that the budget is usable.
func (c KindConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	switch c.Completion {
	case FieldName, FieldDocumentURL, FieldAccountHolderName:
	default:
		return fmt.Errorf("unknown completion field %q", c.Completion)
	}
	return nil
}

// DefaultKinds returns the standard budgets.
func DefaultKinds() map[Kind]KindConfig {
	return map[Kind]KindConfig{
		KindAadhaar: {
			Interval:    2 * time.Second,
			Timeout:     5 * time.Minute,
			Watchdog:    time.Second,
			Completion:  FieldName,
			InitRetries: 3,
		},
		KindESign: {
			Interval:    2 * time.Second,
			Timeout:     10 * time.Minute,
			Watchdog:    time.Second,
			Completion:  FieldDocumentURL,
			InitRetries: 3,
		},
		KindUPICollect: {
			Interval:    3 * time.Second,
			Timeout:     7 * time.Minute,
			MaxAttempts: 150,
			Watchdog:    time.Second,
			Completion:  FieldAccountHolderName,
			MatchName:   true,
			InitRetries: 3,
		},
	}
}
