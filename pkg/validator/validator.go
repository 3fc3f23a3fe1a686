package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"
)

var (
	questionnaireCodeRegex = regexp.MustCompile(`^[a-z0-9_-]{2,64}$`)
	questionCodeRegex      = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{0,63}$`)

	once     sync.Once
	instance *playground.Validate
)

// FieldErrors maps JSON field names to human readable messages
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e[k])
	}
	return strings.Join(parts, "; ")
}

func get() *playground.Validate {
	once.Do(func() {
		v := playground.New(playground.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})

		_ = v.RegisterValidation("qncode", func(fl playground.FieldLevel) bool {
			return questionnaireCodeRegex.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("qcode", func(fl playground.FieldLevel) bool {
			return questionCodeRegex.MatchString(fl.Field().String())
		})

		instance = v
	})
	return instance
}

// ValidateStruct validates a struct based on validate tags.
// Failures are returned as FieldErrors keyed by JSON field name.
func ValidateStruct(s interface{}) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors playground.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	fields := make(FieldErrors, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fieldPath(fe)] = message(fe)
	}
	return fields
}

// Var validates a single value against a tag expression
func Var(value interface{}, tag string) error {
	return get().Var(value, tag)
}

func fieldPath(fe playground.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "qncode":
		return "must be 2-64 characters of a-z, 0-9, '_' or '-'"
	case "qcode":
		return "must start with a letter and contain only letters, digits, '_', '.' or '-'"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if Var(email, "email") != nil {
		return errors.New("invalid email format")
	}
	return nil
}

// ValidateQuestionnaireCode validates a questionnaire code
func ValidateQuestionnaireCode(code string) error {
	if !questionnaireCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid questionnaire code %q", code)
	}
	return nil
}

// ValidateQuestionCode validates a question code
func ValidateQuestionCode(code string) error {
	if !questionCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid question code %q", code)
	}
	return nil
}

// ValidatePassword validates a password
func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

// ValidateRequired validates that a field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// SanitizeString sanitizes a string by removing potentially dangerous characters
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	return s
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	email = SanitizeString(email)
	email = strings.ToLower(email)
	return email
}
