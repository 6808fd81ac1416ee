package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	griderrors "github.com/gridci/gridci/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern  = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	stepIDPattern  = regexp.MustCompile(`^[a-z0-9_]+$`)
	runtimePattern = regexp.MustCompile(`^\d+(?:\.\d+){0,2}(?:-[0-9A-Za-z.]+)?$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("runtime_version", func(fl validator.FieldLevel) bool {
			return runtimePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("version_constraint", func(fl validator.FieldLevel) bool {
			_, err := semver.NewConstraint(fl.Field().String())
			return err == nil
		})

		validateInst = v
	})

	return validateInst
}

// ValidateConfig performs schema and cross-field validation on the configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return griderrors.NewValidationError("config", "configuration is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	if err := validateMatrix(cfg.Matrix); err != nil {
		return err
	}

	if err := validateRequirements(cfg); err != nil {
		return err
	}

	if cfg.Build != nil {
		if err := v.Struct(cfg.Build); err != nil {
			return convertValidationError(err)
		}
	}

	for i, snap := range cfg.Snapshots {
		if snap.Format == "zip" && snap.Ref != "" {
			return griderrors.NewValidationError(
				fmt.Sprintf("snapshots[%d].ref", i),
				"zip snapshots cannot select a ref; encode the branch in the archive URL",
				nil,
			)
		}
	}

	if err := validateSteps(cfg.Steps); err != nil {
		return err
	}

	return nil
}

// validateMatrix enforces referential integrity between the allow-failure
// list and the declared versions.
func validateMatrix(m Matrix) error {
	declared := make(map[string]struct{}, len(m.Include))
	for i, version := range m.Include {
		if _, dup := declared[version]; dup {
			return griderrors.NewValidationError(
				fmt.Sprintf("matrix.include[%d]", i),
				fmt.Sprintf("duplicate version %q", version),
				nil,
			)
		}
		declared[version] = struct{}{}
	}

	for i, version := range m.AllowFailures {
		if _, ok := declared[version]; !ok {
			return griderrors.NewValidationError(
				fmt.Sprintf("matrix.allow_failures[%d]", i),
				fmt.Sprintf("version %q is not declared in matrix.include", version),
				nil,
			)
		}
	}

	return nil
}

// validateRequirements checks every declared version resolves to exactly one
// requirements file.
func validateRequirements(cfg *Config) error {
	if cfg.Requirements.Empty() {
		return nil
	}

	for _, version := range cfg.Matrix.Include {
		if _, err := cfg.Requirements.Resolve(version); err != nil {
			return griderrors.NewValidationError("requirements", err.Error(), err)
		}
	}

	return nil
}

func validateSteps(steps []Step) error {
	stepIndex := make(map[string]int, len(steps))

	for i, step := range steps {
		if _, exists := stepIndex[step.ID]; exists {
			return griderrors.NewValidationError(fieldForStep(i, "id"), fmt.Sprintf("duplicate step id %q", step.ID), nil)
		}

		if reservedStepID(step.ID) {
			return griderrors.NewValidationError(fieldForStep(i, "id"), fmt.Sprintf("step id %q is reserved for pipeline-generated steps", step.ID), nil)
		}

		if err := ValidateStep(step); err != nil {
			return err
		}

		stepIndex[step.ID] = i
	}

	for i, step := range steps {
		for _, dep := range step.Needs {
			if _, ok := stepIndex[dep]; !ok {
				return griderrors.NewValidationError(fieldForStep(i, "needs"), fmt.Sprintf("references unknown step %q", dep), nil)
			}
		}
	}

	if cycle := detectCycle(steps); len(cycle) > 0 {
		return griderrors.NewValidationError("steps", fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")), nil)
	}

	return nil
}

// Identifiers the pipeline synthesizes for its own phases. User steps may
// not claim them, so generated and declared steps can never collide.
var (
	reservedStepIDs      = []string{"addons_apt", "install_requirements", "build_target"}
	reservedStepPrefixes = []string{"install_", "script_", "snapshot_", "provision_alias_"}
)

func reservedStepID(id string) bool {
	for _, reserved := range reservedStepIDs {
		if id == reserved {
			return true
		}
	}
	for _, prefix := range reservedStepPrefixes {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// ValidateStep validates a single step independent of other configuration properties.
func ValidateStep(step Step) error {
	v := validatorInstance()
	if err := v.Struct(step); err != nil {
		return convertValidationError(err)
	}

	switch step.Type {
	case "apt":
		if step.Apt == nil {
			return griderrors.NewValidationError(step.ID, "apt configuration is required", nil)
		}
		if err := v.Struct(step.Apt); err != nil {
			return convertValidationError(err)
		}
	case "pip":
		if step.Pip == nil {
			return griderrors.NewValidationError(step.ID, "pip configuration is required", nil)
		}
		if err := v.Struct(step.Pip); err != nil {
			return convertValidationError(err)
		}
		if step.Pip.Requirements == "" && len(step.Pip.Packages) == 0 && step.Pip.Editable == "" {
			return griderrors.NewValidationError(step.ID, "pip step needs a requirements file, packages, or an editable source", nil)
		}
	case "symlink":
		if step.Symlink == nil {
			return griderrors.NewValidationError(step.ID, "symlink configuration is required", nil)
		}
		if err := v.Struct(step.Symlink); err != nil {
			return convertValidationError(err)
		}
	case "script":
		if step.Script == nil {
			return griderrors.NewValidationError(step.ID, "script configuration is required", nil)
		}
		if err := v.Struct(step.Script); err != nil {
			return convertValidationError(err)
		}
	case "snapshot":
		if step.Snapshot == nil {
			return griderrors.NewValidationError(step.ID, "snapshot configuration is required", nil)
		}
		if err := v.Struct(step.Snapshot); err != nil {
			return convertValidationError(err)
		}
	case "compile":
		if step.Compile == nil {
			return griderrors.NewValidationError(step.ID, "compile configuration is required", nil)
		}
		if err := v.Struct(step.Compile); err != nil {
			return convertValidationError(err)
		}
	default:
		return griderrors.NewValidationError(step.ID, fmt.Sprintf("unknown step type %q", step.Type), nil)
	}

	return nil
}
