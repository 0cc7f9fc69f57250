package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the typed body of a checkpoint record. Each step decodes into
// exactly one concrete payload type at the checkpoint boundary.
type Payload interface {
	payloadKind() string
}

// PANPayload is the PAN check result.
type PANPayload struct {
	PAN         string `json:"pan"`
	Name        string `json:"name"`
	DateOfBirth string `json:"dob,omitempty"`
}

// AadhaarPayload is the biometric/DigiLocker Aadhaar verification result.
type AadhaarPayload struct {
	Name          string `json:"name"`
	MaskedAadhaar string `json:"masked_aadhaar,omitempty"`
	Gender        string `json:"gender,omitempty"`
	DateOfBirth   string `json:"dob,omitempty"`
}

// MismatchPayload records a disagreement between PAN and Aadhaar data.
type MismatchPayload struct {
	PANName     string `json:"pan_name"`
	AadhaarName string `json:"aadhaar_name"`
	Reason      string `json:"reason,omitempty"`
}

// SegmentPayload holds the selected trading segments.
type SegmentPayload struct {
	Segments            []string `json:"segments"`
	RequiresIncomeProof bool     `json:"requires_income_proof,omitempty"`
}

// Derivative segments that always need income proof.
const (
	SegmentFNO       = "F&O"
	SegmentCurrency  = "Currency"
	SegmentCommodity = "Commodity"
)

// NeedsIncomeProof reports whether the selection or the server flag demands
// an income proof upload.
func (p SegmentPayload) NeedsIncomeProof() bool {
	if p.RequiresIncomeProof {
		return true
	}
	for _, s := range p.Segments {
		switch strings.TrimSpace(s) {
		case SegmentFNO, SegmentCurrency, SegmentCommodity:
			return true
		}
	}
	return false
}

// DocumentPayload is an uploaded or signed artifact.
type DocumentPayload struct {
	URL        string `json:"url"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// BankPayload is the linked bank account.
type BankPayload struct {
	AccountHolderName string `json:"account_holder_name"`
	AccountNumber     string `json:"account_number,omitempty"`
	IFSC              string `json:"ifsc,omitempty"`
	Method            string `json:"method,omitempty"`
}

// PasswordPayload reports whether the account password exists.
type PasswordPayload struct {
	PasswordSet bool `json:"password_set"`
}

// DetailPayload carries form answers the engine does not interpret.
type DetailPayload map[string]any

func (PANPayload) payloadKind() string      { return "pan" }
func (AadhaarPayload) payloadKind() string  { return "aadhaar" }
func (MismatchPayload) payloadKind() string { return "mismatch" }
func (SegmentPayload) payloadKind() string  { return "segment" }
func (DocumentPayload) payloadKind() string { return "document" }
func (BankPayload) payloadKind() string     { return "bank" }
func (PasswordPayload) payloadKind() string { return "password" }
func (DetailPayload) payloadKind() string   { return "detail" }

// DecodePayload decodes a raw response body into the payload type owned by
// step. An empty or null body decodes to nil.
func DecodePayload(step StepID, raw []byte) (Payload, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return nil, nil
	}
	switch {
	case step == StepPAN:
		return decodeAs[PANPayload](step, raw)
	case step == StepAadhaar:
		return decodeAs[AadhaarPayload](step, raw)
	case step == StepAadhaarMismatchDetails:
		return decodeAs[MismatchPayload](step, raw)
	case step == StepInvestmentSegment:
		return decodeAs[SegmentPayload](step, raw)
	case step.IsDocument():
		return decodeAs[DocumentPayload](step, raw)
	case step == StepBankValidation:
		return decodeAs[BankPayload](step, raw)
	case step == StepPasswordSetup:
		return decodeAs[PasswordPayload](step, raw)
	default:
		return decodeAs[DetailPayload](step, raw)
	}
}

func decodeAs[T Payload](step StepID, raw []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", step, err)
	}
	return v, nil
}
