// Package validator enforces field constraints against a document under one
// of the four modes spec.md §4.5 defines.
package validator

import (
	"regexp"
	"strconv"

	"lattice/internal/core"
	"lattice/internal/jsonflat"
)

// Error codes, spec.md §4.5.
const (
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeUnexpectedField      = "UNEXPECTED_FIELD"
	CodeNullNotAllowed       = "NULL_NOT_ALLOWED"
	CodeTypeMismatch         = "TYPE_MISMATCH"
	CodePatternMismatch      = "PATTERN_MISMATCH"
	CodeValueTooSmall        = "VALUE_TOO_SMALL"
	CodeValueTooLarge        = "VALUE_TOO_LARGE"
	CodeStringTooShort       = "STRING_TOO_SHORT"
	CodeStringTooLong        = "STRING_TOO_LONG"
	CodeArrayTooShort        = "ARRAY_TOO_SHORT"
	CodeArrayTooLong         = "ARRAY_TOO_LONG"
	CodeValueNotAllowed      = "VALUE_NOT_ALLOWED"
	CodeInvalidArrayElement  = "INVALID_ARRAY_ELEMENT"
)

// Result is the outcome of Validate: either success (Errors is empty) or the
// full accumulated list of field errors.
type Result struct {
	Errors []core.FieldError
}

// OK reports whether validation passed.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// fieldObservation groups every flattened record observed for a single
// path, since an array field path may have multiple records (one per
// element).
type fieldObservation struct {
	records []jsonflat.Record
}

// Validate runs the per-field checks of spec.md §4.5 against raw, flattened
// under the given constraint list and enforcement mode. It never
// short-circuits: every applicable error is accumulated and returned
// together. Validate is a pure function of its inputs.
func Validate(raw []byte, mode core.EnforcementMode, constraints []core.FieldConstraint) (Result, error) {
	if mode == core.EnforcementNone {
		return Result{}, nil
	}

	records, err := jsonflat.Flatten(raw)
	if err != nil {
		return Result{}, err
	}

	byPath := make(map[string]*fieldObservation)
	for _, r := range records {
		obs, ok := byPath[r.Path]
		if !ok {
			obs = &fieldObservation{}
			byPath[r.Path] = obs
		}
		obs.records = append(obs.records, r)
	}

	constraintsByPath := make(map[string]core.FieldConstraint, len(constraints))
	for _, c := range constraints {
		constraintsByPath[c.FieldPath] = c
	}

	var errs []core.FieldError

	if mode == core.EnforcementStrict {
		for path := range byPath {
			if _, ok := constraintsByPath[path]; !ok {
				errs = append(errs, core.FieldError{
					FieldPath: path,
					Code:      CodeUnexpectedField,
					Message:   "field is not declared in the collection's constraints",
				})
			}
		}
	}

	for _, c := range constraints {
		// Partial mode ignores absent, constrained fields entirely unless
		// required — the presence check below fires regardless of mode.
		obs, present := byPath[c.FieldPath]

		if c.Required && !present {
			errs = append(errs, core.FieldError{
				FieldPath: c.FieldPath,
				Code:      CodeMissingRequiredField,
				Message:   "required field is missing",
				Expected:  "present",
			})
			continue
		}
		if !present {
			continue
		}

		for _, rec := range obs.records {
			errs = append(errs, validateRecord(c, rec)...)
		}
		errs = append(errs, validateArrayLength(c, obs.records)...)
	}

	return Result{Errors: errs}, nil
}

// validateArrayLength checks min/max length for an array-valued field: the
// length is the number of distinct array positions observed among the
// field's records, so a nested array-of-objects field is measured by how
// many elements it has, not by how many leaf records its subtree produced.
func validateArrayLength(c core.FieldConstraint, records []jsonflat.Record) []core.FieldError {
	if c.MinLength == nil && c.MaxLength == nil {
		return nil
	}
	positions := make(map[int]bool)
	arrayField := false
	for _, rec := range records {
		if rec.Position != nil {
			arrayField = true
			positions[*rec.Position] = true
		}
	}
	if !arrayField {
		return nil
	}
	length := len(positions)
	var errs []core.FieldError
	if c.MinLength != nil && length < *c.MinLength {
		errs = append(errs, core.FieldError{
			FieldPath: c.FieldPath, Code: CodeArrayTooShort,
			Message: "array has fewer elements than the minimum length", Actual: length, Expected: *c.MinLength,
		})
	}
	if c.MaxLength != nil && length > *c.MaxLength {
		errs = append(errs, core.FieldError{
			FieldPath: c.FieldPath, Code: CodeArrayTooLong,
			Message: "array has more elements than the maximum length", Actual: length, Expected: *c.MaxLength,
		})
	}
	return errs
}

func validateRecord(c core.FieldConstraint, rec jsonflat.Record) []core.FieldError {
	var errs []core.FieldError

	if rec.DataType == core.TypeNull {
		if !c.Nullable {
			errs = append(errs, core.FieldError{
				FieldPath: c.FieldPath,
				Code:      CodeNullNotAllowed,
				Message:   "null value not allowed",
			})
		}
		// Type, regex, bounds, and allowed-values checks don't apply to a
		// null value: there is nothing further to check once null is
		// accepted (or rejected above).
		return errs
	}

	// An array element's type is checked against ArrayElementType (reported
	// as INVALID_ARRAY_ELEMENT), not against the field's own DataType (which
	// names the array itself, e.g. "array<string>") — comparing a leaf
	// element's datatype to the array's own tag would always mismatch.
	isArrayElement := rec.Position != nil && c.ArrayElementType != ""
	expectedType := c.DataType
	if isArrayElement {
		expectedType = c.ArrayElementType
	}

	if expectedType != "" && rec.DataType != expectedType {
		code := CodeTypeMismatch
		message := "value type does not match declared type"
		if isArrayElement {
			code = CodeInvalidArrayElement
			message = "array element type does not match the declared element type"
		}
		errs = append(errs, core.FieldError{
			FieldPath: c.FieldPath,
			Code:      code,
			Message:   message,
			Actual:    rec.DataType,
			Expected:  expectedType,
		})
		// A type mismatch makes every further structural check (regex,
		// bounds, length, allowed values) meaningless for this record.
		return errs
	}

	value := ""
	if rec.Value != nil {
		value = *rec.Value
	}

	if expectedType == core.TypeString && c.RegexPattern != "" {
		if re, err := regexp.Compile(c.RegexPattern); err == nil && !re.MatchString(value) {
			errs = append(errs, core.FieldError{
				FieldPath: c.FieldPath,
				Code:      CodePatternMismatch,
				Message:   "value does not match the declared pattern",
				Actual:    value,
				Expected:  c.RegexPattern,
			})
		}
	}

	if expectedType == core.TypeInteger || expectedType == core.TypeNumber {
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			if c.MinValue != nil && n < *c.MinValue {
				errs = append(errs, core.FieldError{
					FieldPath: c.FieldPath, Code: CodeValueTooSmall,
					Message: "value is below the minimum", Actual: n, Expected: *c.MinValue,
				})
			}
			if c.MaxValue != nil && n > *c.MaxValue {
				errs = append(errs, core.FieldError{
					FieldPath: c.FieldPath, Code: CodeValueTooLarge,
					Message: "value exceeds the maximum", Actual: n, Expected: *c.MaxValue,
				})
			}
		}
	}

	if expectedType == core.TypeString && !isArrayElement {
		// Per-element string length inside an array is not validated
		// individually; MinLength/MaxLength on an array constraint measures
		// the array's element count (validateArrayLength), not each
		// element's string length.
		length := len([]rune(value))
		if c.MinLength != nil && length < *c.MinLength {
			errs = append(errs, core.FieldError{
				FieldPath: c.FieldPath, Code: CodeStringTooShort,
				Message: "string is shorter than the minimum length", Actual: length, Expected: *c.MinLength,
			})
		}
		if c.MaxLength != nil && length > *c.MaxLength {
			errs = append(errs, core.FieldError{
				FieldPath: c.FieldPath, Code: CodeStringTooLong,
				Message: "string exceeds the maximum length", Actual: length, Expected: *c.MaxLength,
			})
		}
	}

	if len(c.AllowedValues) > 0 {
		allowed := false
		for _, av := range c.AllowedValues {
			if av == value {
				allowed = true
				break
			}
		}
		if !allowed {
			errs = append(errs, core.FieldError{
				FieldPath: c.FieldPath, Code: CodeValueNotAllowed,
				Message: "value is not in the allowed set", Actual: value, Expected: c.AllowedValues,
			})
		}
	}

	return errs
}
