package resolver

import (
	"fmt"

	"onboarding/internal/domain"
)

// Screen names one wizard position. Most screens are owned by a checkpoint
// step; the contact verification screens and the final screen are not.
type Screen string

const (
	ScreenEmail             Screen = "email"
	ScreenMobile            Screen = "mobile"
	ScreenPAN               Screen = "pan"
	ScreenAadhaar           Screen = "aadhaar"
	ScreenInvestmentSegment Screen = "investment_segment"
	ScreenIncomeProof       Screen = "income_proof"
	ScreenUserDetail        Screen = "user_detail"
	ScreenPersonalDetail    Screen = "personal_detail"
	ScreenOtherDetail       Screen = "other_detail"
	ScreenBankValidation    Screen = "bank_validation"
	ScreenIPV               Screen = "ipv"
	ScreenSignature         Screen = "signature"
	ScreenAddNominees       Screen = "add_nominees"
	ScreenPANUpload         Screen = "pan_upload"
	ScreenESign             Screen = "esign"
	ScreenPasswordSetup     Screen = "password_setup"
	ScreenMPINSetup         Screen = "mpin_setup"
	ScreenCongratulations   Screen = "congratulations"
)

// Index is a position in a Layout. Its meaning depends on the layout
// variant, so it is only comparable within one variant.
type Index int

// Layout is one ordered variant of the wizard.
type Layout struct {
	screens []Screen
	index   map[Screen]Index
}

var (
	baseScreens = []Screen{
		ScreenEmail,
		ScreenMobile,
		ScreenPAN,
		ScreenAadhaar,
		ScreenInvestmentSegment,
		ScreenIncomeProof,
		ScreenUserDetail,
		ScreenPersonalDetail,
		ScreenOtherDetail,
		ScreenBankValidation,
		ScreenIPV,
		ScreenSignature,
		ScreenAddNominees,
		ScreenESign,
		ScreenPasswordSetup,
		ScreenMPINSetup,
		ScreenCongratulations,
	}

	standardLayout  = newLayout(baseScreens)
	panUploadLayout = newLayout(insertAfter(baseScreens, ScreenAddNominees, ScreenPANUpload))
)

func newLayout(screens []Screen) Layout {
	l := Layout{screens: screens, index: make(map[Screen]Index, len(screens))}
	for i, s := range screens {
		l.index[s] = Index(i)
	}
	return l
}

func insertAfter(screens []Screen, after, s Screen) []Screen {
	out := make([]Screen, 0, len(screens)+1)
	for _, cur := range screens {
		out = append(out, cur)
		if cur == after {
			out = append(out, s)
		}
	}
	return out
}

// LayoutFor returns the layout variant for the PAN upload requirement.
func LayoutFor(requiresPanUpload bool) Layout {
	if requiresPanUpload {
		return panUploadLayout
	}
	return standardLayout
}

// Len is the number of positions.
func (l Layout) Len() int {
	return len(l.screens)
}

// IndexOf returns the position of s, false when the variant lacks it.
func (l Layout) IndexOf(s Screen) (Index, bool) {
	i, ok := l.index[s]
	return i, ok
}

// MustIndexOf is IndexOf for screens present in every variant.
func (l Layout) MustIndexOf(s Screen) Index {
	i, ok := l.index[s]
	if !ok {
		panic(fmt.Sprintf("resolver: screen %q not in layout", s))
	}
	return i
}

// StepAt returns the screen at i.
func (l Layout) StepAt(i Index) (Screen, bool) {
	if i < 0 || int(i) >= len(l.screens) {
		return "", false
	}
	return l.screens[i], true
}

// Final is the congratulations position.
func (l Layout) Final() Index {
	return Index(len(l.screens) - 1)
}

// Screens returns a copy of the ordered screens.
func (l Layout) Screens() []Screen {
	return append([]Screen(nil), l.screens...)
}

// Routes maps each screen to the checkpoint step whose record it owns.
// Screens absent from the table own no checkpoint.
var Routes = map[Screen]domain.StepID{
	ScreenPAN:               domain.StepPAN,
	ScreenAadhaar:           domain.StepAadhaar,
	ScreenInvestmentSegment: domain.StepInvestmentSegment,
	ScreenIncomeProof:       domain.StepIncomeProof,
	ScreenUserDetail:        domain.StepUserDetail,
	ScreenPersonalDetail:    domain.StepPersonalDetail,
	ScreenOtherDetail:       domain.StepOtherDetail,
	ScreenBankValidation:    domain.StepBankValidation,
	ScreenIPV:               domain.StepIPV,
	ScreenSignature:         domain.StepSignature,
	ScreenAddNominees:       domain.StepAddNominees,
	ScreenPANUpload:         domain.StepPANVerificationRecord,
	ScreenESign:             domain.StepESign,
	ScreenPasswordSetup:     domain.StepPasswordSetup,
	ScreenMPINSetup:         domain.StepMPINSetup,
}

// secondary lists steps reported from a screen other than the one they
// are routed from.
var secondary = map[domain.StepID]Screen{
	domain.StepAadhaarMismatchDetails: ScreenAadhaar,
	domain.StepCompleteBankValidation: ScreenBankValidation,
	domain.StepCompleteUPIValidation:  ScreenBankValidation,
}

// ScreenFor returns the screen that reports completion of step.
func ScreenFor(step domain.StepID) (Screen, bool) {
	if s, ok := secondary[step]; ok {
		return s, true
	}
	for s, owned := range Routes {
		if owned == step {
			return s, true
		}
	}
	return "", false
}
