package validation

import (
	"regexp"
	"testing"
	"time"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{"non-empty string", "hello", false},
		{"empty string", "", true},
		{"whitespace only", "   ", true},
		{"nil", nil, true},
		{"zero int", 0, true},
		{"non-zero int", 3, false},
	}

	rule := Required(LocaleEnUS)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule("field", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Required(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && err.Type != RuleRequired {
				t.Errorf("error type = %s, want %s", err.Type, RuleRequired)
			}
		})
	}
}

func TestStringLength(t *testing.T) {
	rule := StringLength(LocaleEnUS, 2, 5)
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"ab", false},
		{"abcde", false},
		{"a", true},
		{"abcdef", true},
	}
	for _, tt := range tests {
		err := rule("name", tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("StringLength(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestNumericRange(t *testing.T) {
	rule := NumericRange(LocaleEnUS, 1, 3)
	tests := []struct {
		value   any
		wantErr bool
	}{
		{1, false},
		{3, false},
		{2.5, false},
		{0, true},
		{4, true},
		{"two", true},
	}
	for _, tt := range tests {
		err := rule("pgy_level", tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("NumericRange(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestEnumValues(t *testing.T) {
	rule := EnumValues(LocaleEnUS, "AM", "PM")
	if err := rule("slot", "AM"); err != nil {
		t.Errorf("EnumValues(AM) unexpected error: %v", err)
	}
	if err := rule("slot", "EVENING"); err == nil {
		t.Error("EnumValues(EVENING) expected error, got nil")
	}
}

func TestRegexPattern(t *testing.T) {
	rule := RegexPattern(LocaleEnUS, regexp.MustCompile(`^[A-Z]{2,4}$`))
	if err := rule("abbreviation", "ICU"); err != nil {
		t.Errorf("RegexPattern(ICU) unexpected error: %v", err)
	}
	if err := rule("abbreviation", "icu"); err == nil {
		t.Error("RegexPattern(icu) expected error, got nil")
	}
}

func TestEmailFormat(t *testing.T) {
	rule := EmailFormat(LocaleEnUS)
	if err := rule("email", "resident@hospital.org"); err != nil {
		t.Errorf("EmailFormat valid address: unexpected error %v", err)
	}
	if err := rule("email", "not-an-email"); err == nil {
		t.Error("EmailFormat(not-an-email) expected error, got nil")
	}
}

func TestUUIDFormat(t *testing.T) {
	rule := UUIDFormat(LocaleEnUS)
	if err := rule("id", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"); err != nil {
		t.Errorf("UUIDFormat valid uuid: unexpected error %v", err)
	}
	if err := rule("id", "nope"); err == nil {
		t.Error("UUIDFormat(nope) expected error, got nil")
	}
}

func TestDateRange(t *testing.T) {
	min := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	max := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	rule := DateRange(LocaleEnUS, min, max)

	if err := rule("date", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Errorf("DateRange in-range: unexpected error %v", err)
	}
	if err := rule("date", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("DateRange before min: expected error, got nil")
	}
}

func TestLocalizedMessages(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{LocaleEnUS, "email is required"},
		{LocaleEsES, "email es obligatorio"},
		{LocaleFrFR, "email est obligatoire"},
		{"de_DE", "email is required"}, // unknown locale falls back to en_US
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			err := Required(tt.locale)("email", "")
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Message != tt.want {
				t.Errorf("message = %q, want %q", err.Message, tt.want)
			}
		})
	}
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	chain := Chain(Required(LocaleEnUS), StringLength(LocaleEnUS, 3, 10))
	err := chain("name", "")
	if err == nil || err.Type != RuleRequired {
		t.Fatalf("chain error = %+v, want required failure first", err)
	}
	if err := chain("name", "ab"); err == nil || err.Type != RuleStringLength {
		t.Fatalf("chain error = %+v, want string_length failure", err)
	}
	if err := chain("name", "valid"); err != nil {
		t.Fatalf("chain on valid value: unexpected %v", err)
	}
}
