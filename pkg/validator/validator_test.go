package validator

import (
	"errors"
	"testing"
)

func TestValidateStruct(t *testing.T) {
	type TestStruct struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Code     string `json:"code" validate:"required,qncode"`
		Status   string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	}

	tests := []struct {
		name      string
		input     TestStruct
		wantField string
	}{
		{
			name:  "valid struct",
			input: TestStruct{Email: "test@example.com", Password: "password123", Code: "cog1"},
		},
		{
			name:      "missing required field",
			input:     TestStruct{Email: "test@example.com", Password: "password123"},
			wantField: "code",
		},
		{
			name:      "invalid email",
			input:     TestStruct{Email: "invalid-email", Password: "password123", Code: "cog1"},
			wantField: "email",
		},
		{
			name:      "password too short",
			input:     TestStruct{Email: "test@example.com", Password: "short", Code: "cog1"},
			wantField: "password",
		},
		{
			name:      "upper case code",
			input:     TestStruct{Email: "test@example.com", Password: "password123", Code: "COG1"},
			wantField: "code",
		},
		{
			name:      "unknown status",
			input:     TestStruct{Email: "test@example.com", Password: "password123", Code: "cog1", Status: "archived"},
			wantField: "status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("ValidateStruct() unexpected error = %v", err)
				}
				return
			}

			var fields FieldErrors
			if !errors.As(err, &fields) {
				t.Fatalf("expected FieldErrors, got %v", err)
			}
			if _, ok := fields[tt.wantField]; !ok {
				t.Errorf("expected error for %s, got %v", tt.wantField, fields)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"test@example.com", false},
		{"user.name+tag@example.co.uk", false},
		{"invalid", true},
		{"@example.com", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if err := ValidateEmail(tt.email); (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCodes(t *testing.T) {
	if err := ValidateQuestionnaireCode("cog1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateQuestionnaireCode("x"); err == nil {
		t.Error("single character code should be rejected")
	}
	if err := ValidateQuestionCode("q1_edad"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateQuestionCode("1q"); err == nil {
		t.Error("question code must start with a letter")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("password123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Error("short password should fail")
	}
	if err := ValidatePassword(""); err == nil {
		t.Error("empty password should fail")
	}
}

func TestSanitize(t *testing.T) {
	if got := SanitizeString("  hello\x00world  "); got != "helloworld" {
		t.Errorf("SanitizeString() = %q", got)
	}
	if got := SanitizeEmail("  Test@Example.COM "); got != "test@example.com" {
		t.Errorf("SanitizeEmail() = %q", got)
	}
}
