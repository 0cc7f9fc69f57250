package resolver

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/domain"
)

func done(step domain.StepID, data domain.Payload) domain.Record {
	return domain.Record{Step: step, Data: data, Completed: true}
}

// throughAadhaar returns records for a user verified up to Aadhaar.
func throughAadhaar() map[domain.StepID]domain.Record {
	return map[domain.StepID]domain.Record{
		domain.StepPAN:     done(domain.StepPAN, domain.PANPayload{PAN: "ABCDE1234F"}),
		domain.StepAadhaar: done(domain.StepAadhaar, domain.AadhaarPayload{Name: "Ravi"}),
	}
}

func verified(records map[domain.StepID]domain.Record) Input {
	return Input{Records: records, EmailVerified: true, MobileVerified: true}
}

func TestResolvePreconditions(t *testing.T) {
	l := LayoutFor(false)

	assert.Equal(t, l.MustIndexOf(ScreenEmail), Resolve(Input{}))
	assert.Equal(t, l.MustIndexOf(ScreenMobile), Resolve(Input{EmailVerified: true}))
	assert.Equal(t, l.MustIndexOf(ScreenPAN), Resolve(verified(nil)))
}

func TestResolveSegments(t *testing.T) {
	t.Run("cash segment skips income proof", func(t *testing.T) {
		records := throughAadhaar()
		records[domain.StepInvestmentSegment] = done(domain.StepInvestmentSegment, domain.SegmentPayload{Segments: []string{"Cash"}})

		assert.Equal(t, ScreenUserDetail, ResolveScreen(verified(records)))
	})

	t.Run("derivatives without income proof block on segment", func(t *testing.T) {
		records := throughAadhaar()
		records[domain.StepInvestmentSegment] = done(domain.StepInvestmentSegment, domain.SegmentPayload{Segments: []string{"F&O"}})

		in := verified(records)
		assert.Equal(t, in.Layout().MustIndexOf(ScreenInvestmentSegment), Resolve(in))
		assert.True(t, in.IncomeProofPending())
	})

	t.Run("derivatives with income proof continue", func(t *testing.T) {
		records := throughAadhaar()
		records[domain.StepInvestmentSegment] = done(domain.StepInvestmentSegment, domain.SegmentPayload{Segments: []string{"Commodity"}})
		records[domain.StepIncomeProof] = done(domain.StepIncomeProof, domain.DocumentPayload{URL: "https://cdn/itr.pdf"})

		assert.Equal(t, ScreenUserDetail, ResolveScreen(verified(records)))
	})

	t.Run("explicit requirement blocks cash", func(t *testing.T) {
		records := throughAadhaar()
		records[domain.StepInvestmentSegment] = done(domain.StepInvestmentSegment, domain.SegmentPayload{Segments: []string{"Cash"}})
		in := verified(records)
		in.RequiresIncomeProof = true

		assert.Equal(t, ScreenInvestmentSegment, ResolveScreen(in))
	})

	t.Run("server flag blocks cash", func(t *testing.T) {
		records := throughAadhaar()
		records[domain.StepInvestmentSegment] = done(domain.StepInvestmentSegment,
			domain.SegmentPayload{Segments: []string{"Cash"}, RequiresIncomeProof: true})

		assert.Equal(t, ScreenInvestmentSegment, ResolveScreen(verified(records)))
	})
}

func TestResolveMismatchOverride(t *testing.T) {
	records := throughAadhaar()
	records[domain.StepInvestmentSegment] = done(domain.StepInvestmentSegment, domain.SegmentPayload{Segments: []string{"Cash"}})
	records[domain.StepAadhaarMismatchDetails] = done(domain.StepAadhaarMismatchDetails,
		domain.MismatchPayload{PANName: "RAVI KUMAR", AadhaarName: "RAVI SHARMA"})

	in := verified(records)
	assert.Equal(t, in.Layout().MustIndexOf(ScreenAadhaar), Resolve(in))
}

func TestResolveBankValidationPaths(t *testing.T) {
	for _, step := range []domain.StepID{
		domain.StepBankValidation,
		domain.StepCompleteBankValidation,
		domain.StepCompleteUPIValidation,
	} {
		t.Run(step.String(), func(t *testing.T) {
			records := throughAadhaar()
			for _, s := range []domain.StepID{domain.StepInvestmentSegment, domain.StepUserDetail, domain.StepPersonalDetail, domain.StepOtherDetail} {
				records[s] = done(s, domain.DetailPayload{"ok": true})
			}
			records[domain.StepInvestmentSegment] = done(domain.StepInvestmentSegment, domain.SegmentPayload{Segments: []string{"Cash"}})
			records[step] = done(step, domain.DetailPayload{"status": "ok"})

			assert.Equal(t, ScreenIPV, ResolveScreen(verified(records)))
		})
	}
}

func TestResolvePanUploadVariant(t *testing.T) {
	records := allComplete()
	delete(records, domain.StepPANVerificationRecord)
	delete(records, domain.StepESign)
	delete(records, domain.StepPasswordSetup)
	delete(records, domain.StepMPINSetup)

	in := verified(records)
	assert.Equal(t, ScreenESign, ResolveScreen(in))

	in.RequiresPanUpload = true
	assert.Equal(t, ScreenPANUpload, ResolveScreen(in))
	assert.Equal(t, LayoutFor(true).MustIndexOf(ScreenPANUpload), Resolve(in))

	esignStandard := LayoutFor(false).MustIndexOf(ScreenESign)
	esignUpload := LayoutFor(true).MustIndexOf(ScreenESign)
	assert.Equal(t, esignStandard+1, esignUpload)
}

func TestResolveCongratulations(t *testing.T) {
	in := verified(allComplete())
	in.RequiresPanUpload = true
	assert.Equal(t, LayoutFor(true).Final(), Resolve(in))
	assert.Equal(t, LayoutFor(false).Final(), Resolve(verified(allComplete())))
}

func TestResolveIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 200 {
		in := randomInput(rng)
		first := Resolve(in)
		for range 3 {
			require.Equal(t, first, Resolve(in))
		}
	}
}

func TestResolveProgressIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for range 500 {
		in := randomInput(rng)
		before := Resolve(in)
		for _, step := range domain.AllSteps {
			if step == domain.StepAadhaarMismatchDetails || in.completed(step) {
				continue
			}
			after := in
			after.Records = clone(in.Records)
			after.Records[step] = completeRecord(step)
			assert.GreaterOrEqual(t, Resolve(after), before, "completing %s moved the wizard back", step)
		}
	}
}

func TestLayout(t *testing.T) {
	l := LayoutFor(false)
	_, ok := l.IndexOf(ScreenPANUpload)
	assert.False(t, ok)

	s, ok := l.StepAt(l.MustIndexOf(ScreenIPV))
	assert.True(t, ok)
	assert.Equal(t, ScreenIPV, s)

	_, ok = l.StepAt(Index(l.Len()))
	assert.False(t, ok)
	_, ok = l.StepAt(-1)
	assert.False(t, ok)

	assert.Panics(t, func() { l.MustIndexOf(ScreenPANUpload) })
	assert.Equal(t, LayoutFor(false).Len()+1, LayoutFor(true).Len())
}

func TestRoutes(t *testing.T) {
	for _, step := range domain.AllSteps {
		_, ok := ScreenFor(step)
		assert.True(t, ok, "step %s has no screen", step)
	}
	s, _ := ScreenFor(domain.StepCompleteUPIValidation)
	assert.Equal(t, ScreenBankValidation, s)
	s, _ = ScreenFor(domain.StepPANVerificationRecord)
	assert.Equal(t, ScreenPANUpload, s)
}

func completeRecord(step domain.StepID) domain.Record {
	switch {
	case step == domain.StepInvestmentSegment:
		return done(step, domain.SegmentPayload{Segments: []string{"Cash"}})
	case step.IsDocument():
		return done(step, domain.DocumentPayload{URL: "https://cdn/" + step.String()})
	default:
		return done(step, domain.DetailPayload{"ok": true})
	}
}

func allComplete() map[domain.StepID]domain.Record {
	records := make(map[domain.StepID]domain.Record)
	for _, step := range domain.AllSteps {
		if step == domain.StepAadhaarMismatchDetails {
			continue
		}
		records[step] = completeRecord(step)
	}
	return records
}

func randomInput(rng *rand.Rand) Input {
	records := make(map[domain.StepID]domain.Record)
	for _, step := range domain.AllSteps {
		if rng.IntN(3) == 0 {
			continue
		}
		rec := completeRecord(step)
		if step == domain.StepInvestmentSegment && rng.IntN(2) == 0 {
			rec = done(step, domain.SegmentPayload{Segments: []string{"F&O"}})
		}
		records[step] = rec
	}
	return Input{
		Records:             records,
		EmailVerified:       rng.IntN(8) != 0,
		MobileVerified:      rng.IntN(8) != 0,
		RequiresIncomeProof: rng.IntN(4) == 0,
		RequiresPanUpload:   rng.IntN(2) == 0,
	}
}

func clone(m map[domain.StepID]domain.Record) map[domain.StepID]domain.Record {
	out := make(map[domain.StepID]domain.Record, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
