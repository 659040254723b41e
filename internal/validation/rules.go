package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Rule type identifiers, stable across locales and API responses.
const (
	RuleRequired     = "required"
	RuleStringLength = "string_length"
	RuleNumericRange = "numeric_range"
	RuleEnumValues   = "enum_values"
	RuleRegexPattern = "regex_pattern"
	RuleEmailFormat  = "email_format"
	RuleUUIDFormat   = "uuid_format"
	RuleDateRange    = "date_range"
)

// validate is the shared go-playground engine; rules delegate format
// checks (required, email, uuid, length, range, oneof) to its tags.
var validate = validator.New()

func failed(locale, ruleType, field string, params map[string]any, msgParams ...string) *Error {
	return &Error{
		Type:    ruleType,
		Field:   field,
		Message: Localize(locale, ruleType, append([]string{field}, msgParams...)...),
		Params:  params,
	}
}

// Required fails on nil, empty strings, and whitespace-only strings.
func Required(locale string) Rule {
	return func(field string, value any) *Error {
		if value == nil {
			return failed(locale, RuleRequired, field, nil)
		}
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		if err := validate.Var(value, "required"); err != nil {
			return failed(locale, RuleRequired, field, nil)
		}
		return nil
	}
}

// StringLength bounds the rune count of a string value inclusively.
func StringLength(locale string, min, max int) Rule {
	tag := fmt.Sprintf("min=%d,max=%d", min, max)
	params := map[string]any{"min": min, "max": max}
	return func(field string, value any) *Error {
		s, ok := value.(string)
		if !ok {
			return failed(locale, RuleStringLength, field, params, strconv.Itoa(min), strconv.Itoa(max))
		}
		if err := validate.Var(s, tag); err != nil {
			return failed(locale, RuleStringLength, field, params, strconv.Itoa(min), strconv.Itoa(max))
		}
		return nil
	}
}

// NumericRange bounds a numeric value inclusively.
func NumericRange(locale string, min, max float64) Rule {
	tag := fmt.Sprintf("gte=%v,lte=%v", min, max)
	params := map[string]any{"min": min, "max": max}
	minS := strconv.FormatFloat(min, 'f', -1, 64)
	maxS := strconv.FormatFloat(max, 'f', -1, 64)
	return func(field string, value any) *Error {
		var f float64
		switch v := value.(type) {
		case int:
			f = float64(v)
		case int64:
			f = float64(v)
		case float64:
			f = v
		case float32:
			f = float64(v)
		default:
			return failed(locale, RuleNumericRange, field, params, minS, maxS)
		}
		if err := validate.Var(f, tag); err != nil {
			return failed(locale, RuleNumericRange, field, params, minS, maxS)
		}
		return nil
	}
}

// EnumValues restricts a string to a fixed set.
func EnumValues(locale string, allowed ...string) Rule {
	tag := "oneof=" + strings.Join(allowed, " ")
	params := map[string]any{"allowed": allowed}
	joined := strings.Join(allowed, ", ")
	return func(field string, value any) *Error {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		if err := validate.Var(s, tag); err != nil {
			return failed(locale, RuleEnumValues, field, params, joined)
		}
		return nil
	}
}

// RegexPattern matches a string against a compiled pattern.
func RegexPattern(locale string, pattern *regexp.Regexp) Rule {
	params := map[string]any{"pattern": pattern.String()}
	return func(field string, value any) *Error {
		s, ok := value.(string)
		if !ok || !pattern.MatchString(s) {
			return failed(locale, RuleRegexPattern, field, params)
		}
		return nil
	}
}

// EmailFormat validates RFC 5322 address shape.
func EmailFormat(locale string) Rule {
	return func(field string, value any) *Error {
		s, _ := value.(string)
		if err := validate.Var(s, "email"); err != nil {
			return failed(locale, RuleEmailFormat, field, nil)
		}
		return nil
	}
}

// UUIDFormat validates canonical UUID text shape.
func UUIDFormat(locale string) Rule {
	return func(field string, value any) *Error {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		if err := validate.Var(s, "uuid"); err != nil {
			return failed(locale, RuleUUIDFormat, field, nil)
		}
		return nil
	}
}

// DateRange bounds a time.Time value inclusively.
func DateRange(locale string, min, max time.Time) Rule {
	params := map[string]any{"min": min.Format("2006-01-02"), "max": max.Format("2006-01-02")}
	return func(field string, value any) *Error {
		t, ok := value.(time.Time)
		if !ok || t.Before(min) || t.After(max) {
			return failed(locale, RuleDateRange, field, params,
				min.Format("2006-01-02"), max.Format("2006-01-02"))
		}
		return nil
	}
}
