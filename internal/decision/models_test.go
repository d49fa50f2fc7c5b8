package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
)

func TestOverriddenStatus(t *testing.T) {
	tests := []struct {
		current Status
		want    Status
	}{
		{StatusApproved, StatusDenied},
		{StatusDenied, StatusApproved},
		{StatusFlagged, StatusApproved},
		{StatusUnderReview, StatusApproved},
	}
	for _, tc := range tests {
		t.Run(string(tc.current), func(t *testing.T) {
			assert.Equal(t, tc.want, OverriddenStatus(tc.current))
		})
	}
}

func validDecision() *Decision {
	return &Decision{
		UserID:       id.NewUserID(),
		EntityType:   EntityTransaction,
		DecisionType: TypeFraudCheck,
		Status:       StatusApproved,
		Model: Model{
			Name:       "fraud-detector",
			Version:    "2.1.0",
			Confidence: 0.92,
		},
		Explanation: Explanation{
			Summary: "No anomalies detected",
			Factors: []Factor{
				{Name: "amount_band", Value: "low", Weight: 0.5, Impact: ImpactPositive},
			},
		},
	}
}

func TestValidateAcceptsWellFormedDecision(t *testing.T) {
	assert.NoError(t, Validate(validDecision()))
}

func TestValidateAcceptsPreReleaseModelVersion(t *testing.T) {
	d := validDecision()
	d.Model.Version = "1.0.0-beta.3"
	assert.NoError(t, Validate(d))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Decision)
	}{
		{"missing user", func(d *Decision) { d.UserID = id.UserID{} }},
		{"bad entity type", func(d *Decision) { d.EntityType = "spaceship" }},
		{"bad decision type", func(d *Decision) { d.DecisionType = "horoscope" }},
		{"bad status", func(d *Decision) { d.Status = "maybe" }},
		{"missing model name", func(d *Decision) { d.Model.Name = "" }},
		{"non-semver version", func(d *Decision) { d.Model.Version = "v2" }},
		{"confidence above one", func(d *Decision) { d.Model.Confidence = 1.2 }},
		{"negative confidence", func(d *Decision) { d.Model.Confidence = -0.1 }},
		{"missing summary", func(d *Decision) { d.Explanation.Summary = "" }},
		{"no factors", func(d *Decision) { d.Explanation.Factors = nil }},
		{"unnamed factor", func(d *Decision) { d.Explanation.Factors[0].Name = "" }},
		{"factor weight out of range", func(d *Decision) { d.Explanation.Factors[0].Weight = 1.5 }},
		{"factor impact invalid", func(d *Decision) { d.Explanation.Factors[0].Impact = "sideways" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := validDecision()
			tc.mutate(d)
			err := Validate(d)
			assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
		})
	}
}
