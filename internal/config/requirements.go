package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Resolve selects the single requirements file for a runtime version: the
// rule whose constraint matches wins, every other version falls back to the
// default file. Ambiguous rule sets and versions with no selectable file are
// reported as errors so each matrix entry resolves to exactly one manifest.
func (r Requirements) Resolve(version string) (string, error) {
	if r.Empty() {
		return "", nil
	}

	parsed, err := semver.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("runtime version %q is not comparable: %w", version, err)
	}

	var matched []RequirementRule
	for _, rule := range r.Rules {
		constraint, err := semver.NewConstraint(rule.When)
		if err != nil {
			return "", fmt.Errorf("requirements rule %q: %w", rule.When, err)
		}
		if constraint.Check(parsed) {
			matched = append(matched, rule)
		}
	}

	switch len(matched) {
	case 0:
		if r.Default == "" {
			return "", fmt.Errorf("version %q matches no requirements rule and no default file is set", version)
		}
		return r.Default, nil
	case 1:
		return matched[0].File, nil
	default:
		return "", fmt.Errorf("version %q matches %d requirements rules", version, len(matched))
	}
}
