package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/RuFFyGTLP/TC/pkg/agent"
)

var environments = []string{"development", "staging", "production"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("env", func(fl validator.FieldLevel) bool {
		return slices.Contains(environments, fl.Field().String())
	})
	_ = v.RegisterValidation("agent_name", func(fl validator.FieldLevel) bool {
		_, ok := agent.SystemPrompt(fl.Field().String())
		return ok
	})
	v.RegisterStructValidation(validateStorage, StorageConfig{})
	v.RegisterStructValidation(validateTracing, TracingConfig{})
	v.RegisterStructValidation(validateAgents, ChatConfig{})
	return v
}

// validateAgents checks every per-agent override. Map values are not
// reached by the dive on Agents, which only covers the keys.
func validateAgents(sl validator.StructLevel) {
	c := sl.Current().Interface().(ChatConfig)
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		err := sl.Validator().Struct(c.Agents[name])
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			continue
		}
		for _, fe := range fieldErrs {
			field := "Agents[" + name + "]." + fe.StructField()
			sl.ReportError(fe.Value(), field, field, fe.Tag(), fe.Param())
		}
	}
}

// validateStorage requires the location of the selected backend.
func validateStorage(sl validator.StructLevel) {
	s := sl.Current().Interface().(StorageConfig)
	switch s.Type {
	case "badger":
		if strings.TrimSpace(s.Badger.Path) == "" {
			sl.ReportError(s.Badger.Path, "Badger.Path", "Path", "backend", s.Type)
		}
	case "sqlite":
		if strings.TrimSpace(s.SQLite.Path) == "" {
			sl.ReportError(s.SQLite.Path, "SQLite.Path", "Path", "backend", s.Type)
		}
	case "redis":
		if strings.TrimSpace(s.Redis.Address) == "" {
			sl.ReportError(s.Redis.Address, "Redis.Address", "Address", "backend", s.Type)
		}
	}
}

func validateTracing(sl validator.StructLevel) {
	t := sl.Current().Interface().(TracingConfig)
	if t.Enabled && strings.TrimSpace(t.Endpoint) == "" {
		sl.ReportError(t.Endpoint, "Endpoint", "Endpoint", "required_if_enabled", "")
	}
}

// ConfigError is one invalid field.
type ConfigError struct {
	Field   string
	Message string
	Value   any
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors lists every invalid field found in one pass.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, ce := range e {
		fmt.Fprintf(&sb, "  - %s\n", ce.Error())
	}
	return sb.String()
}

// ValidateWithDetails validates cfg and reports failures as ValidationErrors.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	details := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ConfigError{
			Field:   fe.Namespace(),
			Message: describe(fe),
			Value:   fe.Value(),
		})
	}
	return details
}

func describe(fe validator.FieldError) string {
	p := fe.Param()
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + p
	case "max":
		return "must be at most " + p
	case "gte":
		return "must be greater than or equal to " + p
	case "lte":
		return "must be less than or equal to " + p
	case "oneof":
		return "must be one of [" + p + "]"
	case "ltfield":
		return "must be less than " + p
	case "ltefield":
		return "must not exceed " + p
	case "url":
		return "must be a valid URL"
	case "env":
		return "must be one of [" + strings.Join(environments, " ") + "]"
	case "agent_name":
		return "must be one of [" + strings.Join(agent.Names(), " ") + "]"
	case "backend":
		return "is required by storage type " + p
	case "required_if_enabled":
		return "is required when tracing is enabled"
	default:
		return "failed validation: " + fe.Tag()
	}
}
