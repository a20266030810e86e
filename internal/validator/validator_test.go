package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test structs
type TestSopRequest struct {
	ParentSopID string `json:"parentSopId" validate:"required,sopid"`
	Title       string `json:"title" validate:"required,min=3,max=100"`
}

type TestSessionRequest struct {
	TemplateID string `json:"template_id" validate:"required,uuid"`
	Name       string `json:"name" validate:"required,min=3,max=100"`
	Timeout    int    `json:"timeout" validate:"gte=60,lte=86400"`
}

func TestValidateStruct_Success(t *testing.T) {
	req := TestSessionRequest{
		TemplateID: "123e4567-e89b-12d3-a456-426614174000",
		Name:       "Test Session",
		Timeout:    3600,
	}

	err := ValidateStruct(req)
	assert.NoError(t, err)
}

func TestValidateStruct_RequiredFields(t *testing.T) {
	req := TestSessionRequest{
		// Missing required fields
	}

	err := ValidateStruct(req)
	assert.Error(t, err)
}

func TestValidateRequest_Success(t *testing.T) {
	req := TestSopRequest{
		ParentSopID: "SOP-042",
		Title:       "Incident Escalation",
	}

	errs := ValidateRequest(req)
	assert.Nil(t, errs)
}

func TestValidateRequest_MultipleErrors(t *testing.T) {
	req := TestSopRequest{
		ParentSopID: "not-a-sop-id",
		Title:       "ab", // too short
	}

	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "parentsopid")
	assert.Contains(t, errs, "title")
}

func TestValidateSopID_Valid(t *testing.T) {
	validIDs := []string{
		"SOP-001",
		"SOP-042-#01",
		"SOP-042-#01-#03",
	}

	for _, id := range validIDs {
		req := TestSopRequest{
			ParentSopID: id,
			Title:       "Valid Title",
		}

		errs := ValidateRequest(req)
		assert.Nil(t, errs, "sopid should be valid: %s", id)
	}
}

func TestValidateSopID_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"missing prefix", "042"},
		{"too few digits", "SOP-42"},
		{"lowercase prefix", "sop-042"},
		{"malformed child segment", "SOP-042-01"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestSopRequest{
				ParentSopID: tt.id,
				Title:       "Valid Title",
			}

			errs := ValidateRequest(req)
			assert.NotNil(t, errs)
			assert.Contains(t, errs, "parentsopid")
		})
	}
}

func TestValidateUUID_Valid(t *testing.T) {
	req := TestSessionRequest{
		TemplateID: "123e4567-e89b-12d3-a456-426614174000",
		Name:       "Test",
		Timeout:    60,
	}

	errs := ValidateRequest(req)
	assert.Nil(t, errs)
}

func TestValidateUUID_Invalid(t *testing.T) {
	invalidUUIDs := []string{
		"not-a-uuid",
		"123456",
		"123e4567-e89b-12d3-a456",
		"",
	}

	for _, uuid := range invalidUUIDs {
		req := TestSessionRequest{
			TemplateID: uuid,
			Name:       "Test",
			Timeout:    60,
		}

		errs := ValidateRequest(req)
		assert.NotNil(t, errs, "UUID should be invalid: %s", uuid)
		assert.Contains(t, errs, "templateid")
	}
}

func TestValidateMinMax_Strings(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{"valid", "Test Session", false},
		{"too short", "ab", true},
		{"too long", string(make([]byte, 101)), true},
		{"min length", "abc", false},
		{"max length", string(make([]byte, 100)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestSessionRequest{
				TemplateID: "123e4567-e89b-12d3-a456-426614174000",
				Name:       tt.value,
				Timeout:    60,
			}

			errs := ValidateRequest(req)
			if tt.shouldErr {
				assert.NotNil(t, errs)
				assert.Contains(t, errs, "name")
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}

func TestValidateRange_Numbers(t *testing.T) {
	tests := []struct {
		name      string
		timeout   int
		shouldErr bool
	}{
		{"valid", 3600, false},
		{"too small", 30, true},
		{"too large", 100000, true},
		{"min value", 60, false},
		{"max value", 86400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestSessionRequest{
				TemplateID: "123e4567-e89b-12d3-a456-426614174000",
				Name:       "Test",
				Timeout:    tt.timeout,
			}

			errs := ValidateRequest(req)
			if tt.shouldErr {
				assert.NotNil(t, errs)
				assert.Contains(t, errs, "timeout")
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}

func TestFormatValidationError(t *testing.T) {
	// Test that error messages are user-friendly
	req := TestSopRequest{
		ParentSopID: "",
		Title:       "",
	}

	errs := ValidateRequest(req)
	assert.NotNil(t, errs)

	// Check that error messages are descriptive
	for field, msg := range errs {
		assert.NotEmpty(t, msg, "Error message should not be empty for field: %s", field)
		assert.NotContains(t, msg, "Validation failed", "Should use custom error message")
	}
}
