package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/nutrivision/internal/locale"
)

var (
	bestBeforeMarkers = []string{"mindestens haltbar", "mhd", "best before"}
	useByMarkers      = []string{"zu verbrauchen", "verbrauchsdatum", "use by"}

	// Tried in order; day-first dates win over ISO-like year-first ones.
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})\b`),
		regexp.MustCompile(`\b(20\d{2})[./-](\d{1,2})[./-](\d{1,2})\b`),
	}
)

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// parseDate returns the first valid calendar date mentioned in text. A match
// that is not a real date (31.02.2026) falls through to the next pattern.
func parseDate(text string) (time.Time, bool) {
	for _, re := range datePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var parts [3]int
		for i := range parts {
			parts[i], _ = strconv.Atoi(m[i+1])
		}
		var y, mo, d int
		if len(m[1]) == 4 {
			y, mo, d = parts[0], parts[1], parts[2]
		} else {
			d, mo, y = parts[0], parts[1], parts[2]
			if y < 100 {
				y += 2000
			}
		}
		if t, ok := calendarDate(y, mo, d); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// calendarDate rejects dates that time.Date would silently normalize.
func calendarDate(y, m, d int) (time.Time, bool) {
	if y < 1 || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

// ExpiryGuidance answers best-before (MHD) and use-by questions. It reports
// ok=false when text mentions neither. When a date is mentioned it is
// compared with today's calendar date; use-by wording takes precedence over
// best-before when both appear. Without a parseable date the answer asks the
// user to restate it.
func ExpiryGuidance(text, lang string, today time.Time) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", false
	}
	bestBefore := containsAny(normalized, bestBeforeMarkers)
	useBy := containsAny(normalized, useByMarkers)
	if !bestBefore && !useBy {
		return "", false
	}

	date, ok := parseDate(normalized)
	if !ok {
		return locale.Pick(lang,
			"Bitte nenne das Datum im Format TT.MM.JJJJ, dann erklaere ich MHD vs Verbrauchsdatum.",
			"Please provide the date in DD.MM.YYYY format and I will explain best-before vs use-by.",
		), true
	}

	y, m, d := today.Date()
	passed := date.Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))

	switch {
	case useBy && passed:
		return locale.Pick(lang,
			"Verbrauchsdatum ueberschritten: bitte aus Sicherheitsgruenden nicht mehr verwenden.",
			"Use-by date has passed: for safety, do not consume it.",
		), true
	case useBy:
		return locale.Pick(lang,
			"Verbrauchsdatum noch gueltig. Nach Ablauf bitte entsorgen.",
			"Use-by date is still valid. Discard after that date.",
		), true
	case passed:
		return locale.Pick(lang,
			"MHD ueberschritten: Aussehen, Geruch und Geschmack pruefen; bei Auffaelligkeiten entsorgen.",
			"Best-before date passed: check appearance, smell, and taste; discard if anything seems off.",
		), true
	default:
		return locale.Pick(lang,
			"MHD noch gueltig. Nach Ablauf zuerst sensorisch pruefen.",
			"Best-before date is still valid. After that date, do a sensory check first.",
		), true
	}
}
