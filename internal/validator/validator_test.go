package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/core"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestValidateNoneModeAlwaysSucceeds(t *testing.T) {
	res, err := Validate([]byte(`{"anything":123}`), core.EnforcementNone, []core.FieldConstraint{
		{FieldPath: "email", Required: true},
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestValidateStrictRejectsUnexpectedField(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "email", DataType: core.TypeString, Required: true},
		{FieldPath: "age", DataType: core.TypeInteger},
	}
	res, err := Validate([]byte(`{"email":"u@x","extra":1}`), core.EnforcementStrict, constraints)
	require.NoError(t, err)
	require.False(t, res.OK())

	var unexpected []core.FieldError
	for _, e := range res.Errors {
		if e.Code == CodeUnexpectedField {
			unexpected = append(unexpected, e)
		}
	}
	require.Len(t, unexpected, 1)
	assert.Equal(t, "extra", unexpected[0].FieldPath)
}

func TestValidateStrictMissingRequired(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "email", DataType: core.TypeString, Required: true},
	}
	res, err := Validate([]byte(`{}`), core.EnforcementStrict, constraints)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeMissingRequiredField, res.Errors[0].Code)
}

func TestValidateFlexibleAllowsExtraFields(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "email", DataType: core.TypeString, Required: true},
	}
	res, err := Validate([]byte(`{"email":"u@x","extra":1}`), core.EnforcementFlexible, constraints)
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestValidatePartialIgnoresUnconstrainedAbsentFields(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "age", DataType: core.TypeInteger},
	}
	res, err := Validate([]byte(`{"unrelated":"x"}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestValidateNullNotAllowed(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "age", DataType: core.TypeInteger, Nullable: false},
	}
	res, err := Validate([]byte(`{"age":null}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeNullNotAllowed, res.Errors[0].Code)
}

func TestValidateTypeMismatchNoCoercion(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "age", DataType: core.TypeInteger},
	}
	res, err := Validate([]byte(`{"age":"123"}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeTypeMismatch, res.Errors[0].Code)
}

func TestValidateRegexPattern(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "email", DataType: core.TypeString, RegexPattern: `^[^@]+@[^@]+$`},
	}
	res, err := Validate([]byte(`{"email":"not-an-email"}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodePatternMismatch, res.Errors[0].Code)
}

func TestValidateNumericBounds(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "age", DataType: core.TypeInteger, MinValue: floatPtr(0), MaxValue: floatPtr(120)},
	}
	tooSmall, err := Validate([]byte(`{"age":-1}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, tooSmall.Errors, 1)
	assert.Equal(t, CodeValueTooSmall, tooSmall.Errors[0].Code)

	tooLarge, err := Validate([]byte(`{"age":200}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, tooLarge.Errors, 1)
	assert.Equal(t, CodeValueTooLarge, tooLarge.Errors[0].Code)
}

func TestValidateStringLength(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "name", DataType: core.TypeString, MinLength: intPtr(2), MaxLength: intPtr(4)},
	}
	tooShort, err := Validate([]byte(`{"name":"a"}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, tooShort.Errors, 1)
	assert.Equal(t, CodeStringTooShort, tooShort.Errors[0].Code)

	tooLong, err := Validate([]byte(`{"name":"abcdefg"}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, tooLong.Errors, 1)
	assert.Equal(t, CodeStringTooLong, tooLong.Errors[0].Code)
}

func TestValidateAllowedValues(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "status", DataType: core.TypeString, AllowedValues: []string{"open", "closed"}},
	}
	res, err := Validate([]byte(`{"status":"pending"}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeValueNotAllowed, res.Errors[0].Code)
}

func TestValidateArrayElementType(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "tags", DataType: core.ArrayOf(core.TypeString), ArrayElementType: core.TypeString},
	}
	res, err := Validate([]byte(`{"tags":["a",1,"c"]}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeInvalidArrayElement, res.Errors[0].Code)
}

func TestValidateArrayLength(t *testing.T) {
	constraints := []core.FieldConstraint{
		{
			FieldPath: "tags", DataType: core.ArrayOf(core.TypeString),
			ArrayElementType: core.TypeString, MinLength: intPtr(2), MaxLength: intPtr(5),
		},
	}
	res, err := Validate([]byte(`{"tags":["a"]}`), core.EnforcementPartial, constraints)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeArrayTooShort, res.Errors[0].Code)
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "email", DataType: core.TypeString, Required: true},
		{FieldPath: "age", DataType: core.TypeInteger, MinValue: floatPtr(0)},
	}
	res, err := Validate([]byte(`{"age":-5,"extra":true}`), core.EnforcementStrict, constraints)
	require.NoError(t, err)
	// MISSING_REQUIRED_FIELD(email) + VALUE_TOO_SMALL(age) + UNEXPECTED_FIELD(extra)
	assert.Len(t, res.Errors, 3)
}

func TestValidateIsPure(t *testing.T) {
	constraints := []core.FieldConstraint{
		{FieldPath: "age", DataType: core.TypeInteger, MinValue: floatPtr(0)},
	}
	doc := []byte(`{"age":-1}`)
	first, err := Validate(doc, core.EnforcementPartial, constraints)
	require.NoError(t, err)
	second, err := Validate(doc, core.EnforcementPartial, constraints)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
