package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorRules(t *testing.T) {
	longName := "a very long description that keeps going well past the limit"

	tests := []struct {
		name      string
		validate  func(v *Validator)
		wantError bool
	}{
		{
			name: "required string present",
			validate: func(v *Validator) {
				v.Field("filename", "receipt.pdf", Required)
			},
		},
		{
			name: "required string blank",
			validate: func(v *Validator) {
				v.Field("filename", "   ", Required)
			},
			wantError: true,
		},
		{
			name: "required nil pointer",
			validate: func(v *Validator) {
				var s *string
				v.Field("merchant", s, Required)
			},
			wantError: true,
		},
		{
			name: "uuid accepts canonical form",
			validate: func(v *Validator) {
				v.Field("user_id", "0c9adf4f-6043-4e1b-a5bd-6f88e929a848", UUID)
			},
		},
		{
			name: "uuid rejects garbage",
			validate: func(v *Validator) {
				v.Field("user_id", "not-a-uuid", UUID)
			},
			wantError: true,
		},
		{
			name: "max length within bound",
			validate: func(v *Validator) {
				v.Field("category", "Travel", MaxLength(100))
			},
		},
		{
			name: "max length exceeded",
			validate: func(v *Validator) {
				v.Field("category", longName, MaxLength(10))
			},
			wantError: true,
		},
		{
			name: "min length violated",
			validate: func(v *Validator) {
				v.Field("description", "ab", MinLength(3))
			},
			wantError: true,
		},
		{
			name: "rules accumulate across fields",
			validate: func(v *Validator) {
				v.Field("filename", "", Required)
				v.Field("user_id", "nope", UUID)
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.validate(v)
			if tt.wantError {
				assert.True(t, v.HasErrors())
				assert.Error(t, v.Error())
			} else {
				assert.False(t, v.HasErrors())
				assert.NoError(t, v.Error())
			}
		})
	}
}

func TestValidateAndReturnError(t *testing.T) {
	v := NewValidator()
	v.Field("user_id", "bogus", UUID)

	err := ValidateAndReturnError(v)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "user_id")

	assert.NoError(t, ValidateAndReturnError(NewValidator()))
}
