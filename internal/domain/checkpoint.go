// Package domain holds the checkpoint vocabulary shared by the onboarding
// engine: step identifiers, completion records and their typed payloads.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StepID identifies a server-recorded onboarding checkpoint. Values match the
// backend's identifiers.
type StepID string

const (
	StepPAN                    StepID = "PAN"
	StepAadhaar                StepID = "AADHAAR"
	StepAadhaarMismatchDetails StepID = "AADHAAR_MISMATCH_DETAILS"
	StepInvestmentSegment      StepID = "INVESTMENT_SEGMENT"
	StepIncomeProof            StepID = "INCOME_PROOF"
	StepUserDetail             StepID = "USER_DETAIL"
	StepPersonalDetail         StepID = "PERSONAL_DETAIL"
	StepOtherDetail            StepID = "OTHER_DETAIL"
	StepBankValidation         StepID = "BANK_VALIDATION"
	StepIPV                    StepID = "IPV"
	StepSignature              StepID = "SIGNATURE"
	StepAddNominees            StepID = "ADD_NOMINEES"
	StepPANVerificationRecord  StepID = "PAN_VERIFICATION_RECORD"
	StepESign                  StepID = "ESIGN"
	StepPasswordSetup          StepID = "PASSWORD_SETUP"
	StepMPINSetup              StepID = "MPIN_SETUP"
	StepCompleteBankValidation StepID = "COMPLETE_BANK_VALIDATION"
	StepCompleteUPIValidation  StepID = "COMPLETE_UPI_VALIDATION"
)

// AllSteps lists every checkpoint in backend order.
var AllSteps = []StepID{
	StepPAN,
	StepAadhaar,
	StepAadhaarMismatchDetails,
	StepInvestmentSegment,
	StepIncomeProof,
	StepUserDetail,
	StepPersonalDetail,
	StepOtherDetail,
	StepBankValidation,
	StepIPV,
	StepSignature,
	StepAddNominees,
	StepPANVerificationRecord,
	StepESign,
	StepPasswordSetup,
	StepMPINSetup,
	StepCompleteBankValidation,
	StepCompleteUPIValidation,
}

// ParseStepID validates a raw identifier, accepting any letter case.
func ParseStepID(raw string) (StepID, error) {
	candidate := StepID(strings.ToUpper(strings.TrimSpace(raw)))
	for _, s := range AllSteps {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown checkpoint step %q", raw)
}

func (s StepID) String() string {
	return string(s)
}

// IsDocument reports whether the step's record is an uploaded or signed
// artifact. These are only complete when the payload carries a url.
func (s StepID) IsDocument() bool {
	switch s {
	case StepIncomeProof, StepIPV, StepSignature, StepPANVerificationRecord, StepESign:
		return true
	}
	return false
}

// UsesDocumentEndpoint reports whether the backend serves the step from the
// documents resource instead of the checkpoint resource.
func (s StepID) UsesDocumentEndpoint() bool {
	return s.IsDocument() || s == StepBankValidation
}

// Record is the completion state of one checkpoint. Records are replaced
// wholesale on every fetch and never mutated in place.
type Record struct {
	Step      StepID  `json:"step"`
	Data      Payload `json:"data,omitempty"`
	Completed bool    `json:"completed"`
}

// Incomplete returns the record for a step the backend has no data for.
func Incomplete(step StepID) Record {
	return Record{Step: step}
}

// NewRecord builds a record from a decoded payload and applies the
// completion rule.
func NewRecord(step StepID, data Payload) Record {
	return Record{Step: step, Data: data, Completed: IsComplete(step, data)}
}

// IsComplete applies the completion rule for a step: a payload must exist,
// document steps additionally need a non-empty url and the password step
// needs the password to be set.
func IsComplete(step StepID, data Payload) bool {
	if data == nil {
		return false
	}
	switch {
	case step.IsDocument():
		doc, ok := data.(DocumentPayload)
		return ok && strings.TrimSpace(doc.URL) != ""
	case step == StepPasswordSetup:
		pw, ok := data.(PasswordPayload)
		return ok && pw.PasswordSet
	}
	return true
}

// UnmarshalJSON decodes the payload into the type owned by the record's step.
// Completion is recomputed rather than trusted.
func (r *Record) UnmarshalJSON(b []byte) error {
	var wire struct {
		Step StepID          `json:"step"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	step, err := ParseStepID(string(wire.Step))
	if err != nil {
		return err
	}
	data, err := DecodePayload(step, wire.Data)
	if err != nil {
		return err
	}
	*r = NewRecord(step, data)
	return nil
}
