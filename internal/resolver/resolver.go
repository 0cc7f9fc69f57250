// Package resolver maps checkpoint records to the wizard position the user
// should see next.
//
// Resolve is pure: the same Input always yields the same Index. Missing or
// still-loading records count as not completed.
package resolver

import "onboarding/internal/domain"

// Input is everything the resolution depends on.
type Input struct {
	Records             map[domain.StepID]domain.Record
	EmailVerified       bool
	MobileVerified      bool
	RequiresIncomeProof bool
	RequiresPanUpload   bool
}

func (in Input) completed(step domain.StepID) bool {
	r, ok := in.Records[step]
	return ok && r.Completed
}

// IncomeProofRequired reports whether the segment selection or the explicit
// flag demands an income proof.
func (in Input) IncomeProofRequired() bool {
	if in.RequiresIncomeProof {
		return true
	}
	r, ok := in.Records[domain.StepInvestmentSegment]
	if !ok || !r.Completed {
		return false
	}
	seg, ok := r.Data.(domain.SegmentPayload)
	return ok && seg.NeedsIncomeProof()
}

// IncomeProofPending reports whether segments are chosen but the required
// income proof is still missing.
func (in Input) IncomeProofPending() bool {
	return in.completed(domain.StepInvestmentSegment) &&
		in.IncomeProofRequired() &&
		!in.completed(domain.StepIncomeProof)
}

// Layout returns the layout variant selected by the input.
func (in Input) Layout() Layout {
	return LayoutFor(in.RequiresPanUpload)
}

type rule struct {
	screen Screen
	met    func(Input) bool
}

func completedStep(step domain.StepID) func(Input) bool {
	return func(in Input) bool { return in.completed(step) }
}

// chain is evaluated in order; the first unmet rule names the screen.
var chain = []rule{
	{ScreenEmail, func(in Input) bool { return in.EmailVerified }},
	{ScreenMobile, func(in Input) bool { return in.MobileVerified }},
	{ScreenPAN, completedStep(domain.StepPAN)},
	// A recorded mismatch reopens Aadhaar remediation whatever its own flag says.
	{ScreenAadhaar, func(in Input) bool { return !in.completed(domain.StepAadhaarMismatchDetails) }},
	{ScreenAadhaar, completedStep(domain.StepAadhaar)},
	{ScreenInvestmentSegment, func(in Input) bool {
		return in.completed(domain.StepInvestmentSegment) && !in.IncomeProofPending()
	}},
	{ScreenUserDetail, completedStep(domain.StepUserDetail)},
	{ScreenPersonalDetail, completedStep(domain.StepPersonalDetail)},
	{ScreenOtherDetail, completedStep(domain.StepOtherDetail)},
	{ScreenBankValidation, func(in Input) bool {
		return in.completed(domain.StepBankValidation) ||
			in.completed(domain.StepCompleteBankValidation) ||
			in.completed(domain.StepCompleteUPIValidation)
	}},
	{ScreenIPV, completedStep(domain.StepIPV)},
	{ScreenSignature, completedStep(domain.StepSignature)},
	{ScreenAddNominees, completedStep(domain.StepAddNominees)},
	{ScreenPANUpload, func(in Input) bool {
		return !in.RequiresPanUpload || in.completed(domain.StepPANVerificationRecord)
	}},
	{ScreenESign, completedStep(domain.StepESign)},
	{ScreenPasswordSetup, completedStep(domain.StepPasswordSetup)},
	{ScreenMPINSetup, completedStep(domain.StepMPINSetup)},
}

// ResolveScreen returns the first screen whose condition is unmet.
func ResolveScreen(in Input) Screen {
	for _, r := range chain {
		if !r.met(in) {
			return r.screen
		}
	}
	return ScreenCongratulations
}

// Resolve returns the position of ResolveScreen in the input's layout.
func Resolve(in Input) Index {
	return in.Layout().MustIndexOf(ResolveScreen(in))
}
