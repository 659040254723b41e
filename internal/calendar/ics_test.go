package calendar

import (
	"strings"
	"testing"
	"time"
)

func TestWriteICSStructure(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	loc, err := time.LoadLocation(TZID)
	if err != nil {
		t.Fatal(err)
	}
	events := []Event{
		{
			UID:         "abc@schedcu",
			Start:       time.Date(2026, 1, 20, 8, 0, 0, 0, loc),
			End:         time.Date(2026, 1, 20, 12, 0, 0, 0, loc),
			Summary:     "Inpatient Medicine",
			Location:    "Main Hospital, 4th Floor",
			Description: "Dr. Chen, AM block",
		},
	}

	ics := WriteICS(events, now)

	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"VERSION:2.0\r\n",
		"TZID:America/New_York\r\n",
		"TZNAME:EDT\r\n",
		"TZNAME:EST\r\n",
		"DTSTART;TZID=America/New_York:20260120T080000\r\n",
		"DTEND;TZID=America/New_York:20260120T120000\r\n",
		"SUMMARY:Inpatient Medicine\r\n",
		"LOCATION:Main Hospital\\, 4th Floor\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(ics, want) {
			t.Errorf("ICS output missing %q", want)
		}
	}

	if strings.Count(ics, "BEGIN:VTIMEZONE") != 1 {
		t.Error("expected exactly one VTIMEZONE component")
	}
	if strings.Contains(strings.ReplaceAll(ics, "\r\n", ""), "\n") {
		t.Error("found bare LF line ending")
	}
}

func TestWriteICSPMBlockTimes(t *testing.T) {
	loc, _ := time.LoadLocation(TZID)
	ics := WriteICS([]Event{{
		UID:     "pm@schedcu",
		Start:   time.Date(2026, 3, 2, 13, 0, 0, 0, loc),
		End:     time.Date(2026, 3, 2, 17, 0, 0, 0, loc),
		Summary: "Clinic",
	}}, time.Now())

	if !strings.Contains(ics, "DTSTART;TZID=America/New_York:20260302T130000") {
		t.Error("PM block should start at 13:00 local")
	}
	if !strings.Contains(ics, "DTEND;TZID=America/New_York:20260302T170000") {
		t.Error("PM block should end at 17:00 local")
	}
}

func TestLineFolding(t *testing.T) {
	long := strings.Repeat("x", 200)
	ics := WriteICS([]Event{{
		UID:     "fold@schedcu",
		Start:   time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Summary: long,
	}}, time.Now())

	for _, l := range strings.Split(ics, "\r\n") {
		if len(l) > maxLineOctets {
			t.Fatalf("line exceeds %d octets: %d bytes", maxLineOctets, len(l))
		}
	}

	// Unfolding (strip CRLF+space) must restore the original text.
	unfolded := strings.ReplaceAll(ics, "\r\n ", "")
	if !strings.Contains(unfolded, "SUMMARY:"+long) {
		t.Error("unfolding did not restore the original summary")
	}
}

func TestEscapeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a;b", "a\\;b"},
		{"a,b", "a\\,b"},
		{"a\\b", "a\\\\b"},
		{"line1\nline2", "line1\\nline2"},
	}
	for _, tt := range tests {
		if got := escapeText(tt.in); got != tt.want {
			t.Errorf("escapeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
