package decision

import (
	"fmt"
	"regexp"

	dErrors "consentgate/pkg/domain-errors"
)

// semverPattern accepts MAJOR.MINOR.PATCH with an optional pre-release tag,
// e.g. "2.1.0" or "1.0.0-beta.3".
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

// Validate checks a decision before any write. Every rule here rejects with
// CodeValidation so nothing invalid ever reaches the store.
func Validate(d *Decision) error {
	if d.UserID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if !d.EntityType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid entity type: %s", d.EntityType))
	}
	if !d.DecisionType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid decision type: %s", d.DecisionType))
	}
	if !d.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid decision status: %s", d.Status))
	}
	if d.Model.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "model name is required")
	}
	if !semverPattern.MatchString(d.Model.Version) {
		return dErrors.New(dErrors.CodeValidation, "model version must be semver")
	}
	if d.Model.Confidence < 0 || d.Model.Confidence > 1 {
		return dErrors.New(dErrors.CodeValidation, "confidence must be within [0, 1]")
	}
	if d.Explanation.Summary == "" {
		return dErrors.New(dErrors.CodeValidation, "explanation summary is required")
	}
	if len(d.Explanation.Factors) == 0 {
		return dErrors.New(dErrors.CodeValidation, "explanation must include at least one factor")
	}
	for i, f := range d.Explanation.Factors {
		if f.Name == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("factor %d: name is required", i))
		}
		if f.Weight < 0 || f.Weight > 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("factor %q: weight must be within [0, 1]", f.Name))
		}
		if !f.Impact.IsValid() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("factor %q: invalid impact %s", f.Name, f.Impact))
		}
	}
	return nil
}
