// Package calendar renders assignment schedules as RFC 5545 iCalendar
// feeds and manages the token-authenticated subscriptions that serve
// them over webcal.
package calendar

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TZID is the fixed timezone of the published feed.
const TZID = "America/New_York"

const prodID = "-//schedcu//core//EN"

// maxLineOctets is the RFC 5545 content-line limit before folding.
const maxLineOctets = 75

// Event is one rendered half-day block on a person's feed.
type Event struct {
	UID         string
	Start       time.Time // local wall time in the feed timezone
	End         time.Time
	Summary     string
	Location    string
	Description string
}

// WriteICS renders a complete VCALENDAR. Line endings are CRLF and
// every content line is folded at 75 octets.
func WriteICS(events []Event, now time.Time) string {
	var b strings.Builder

	line(&b, "BEGIN:VCALENDAR")
	line(&b, "VERSION:2.0")
	line(&b, "PRODID:"+prodID)
	line(&b, "CALSCALE:GREGORIAN")
	line(&b, "METHOD:PUBLISH")
	writeTimezone(&b)

	stamp := now.UTC().Format("20060102T150405Z")
	for _, ev := range events {
		line(&b, "BEGIN:VEVENT")
		line(&b, "UID:"+escapeText(ev.UID))
		line(&b, "DTSTAMP:"+stamp)
		line(&b, fmt.Sprintf("DTSTART;TZID=%s:%s", TZID, ev.Start.Format("20060102T150405")))
		line(&b, fmt.Sprintf("DTEND;TZID=%s:%s", TZID, ev.End.Format("20060102T150405")))
		line(&b, "SUMMARY:"+escapeText(ev.Summary))
		if ev.Location != "" {
			line(&b, "LOCATION:"+escapeText(ev.Location))
		}
		if ev.Description != "" {
			line(&b, "DESCRIPTION:"+escapeText(ev.Description))
		}
		line(&b, "END:VEVENT")
	}

	line(&b, "END:VCALENDAR")
	return b.String()
}

// writeTimezone emits the America/New_York VTIMEZONE with the US
// daylight rules in effect since 2007.
func writeTimezone(b *strings.Builder) {
	line(b, "BEGIN:VTIMEZONE")
	line(b, "TZID:"+TZID)
	line(b, "BEGIN:DAYLIGHT")
	line(b, "TZOFFSETFROM:-0500")
	line(b, "TZOFFSETTO:-0400")
	line(b, "TZNAME:EDT")
	line(b, "DTSTART:19700308T020000")
	line(b, "RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=2SU")
	line(b, "END:DAYLIGHT")
	line(b, "BEGIN:STANDARD")
	line(b, "TZOFFSETFROM:-0400")
	line(b, "TZOFFSETTO:-0500")
	line(b, "TZNAME:EST")
	line(b, "DTSTART:19701101T020000")
	line(b, "RRULE:FREQ=YEARLY;BYMONTH=11;BYDAY=1SU")
	line(b, "END:STANDARD")
	line(b, "END:VTIMEZONE")
}

// line writes one content line, folding at 75 octets without splitting
// a UTF-8 sequence. Continuation lines begin with a single space.
func line(b *strings.Builder, s string) {
	first := true
	for len(s) > 0 {
		limit := maxLineOctets
		if !first {
			limit = maxLineOctets - 1 // the leading space counts
		}
		if len(s) <= limit {
			if !first {
				b.WriteByte(' ')
			}
			b.WriteString(s)
			break
		}
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if !first {
			b.WriteByte(' ')
		}
		b.WriteString(s[:cut])
		b.WriteString("\r\n")
		s = s[cut:]
		first = false
	}
	b.WriteString("\r\n")
}

// escapeText applies the TEXT escaping rules of RFC 5545 §3.3.11.
func escapeText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return r.Replace(s)
}
