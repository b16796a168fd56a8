package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Domain parsers pull structure out of natural task and reminder phrasing.
// They are deliberately conservative: an unparseable fragment stays in the
// title rather than being guessed at.

var (
	dueClause      = regexp.MustCompile(`(?i)\s+(?:by|due|before)\s+(\S+(?:\s+\S+)?)\s*$`)
	priorityMarker = regexp.MustCompile(`(?i)\s*!p([123])\b`)
	priorityPhrase = regexp.MustCompile(`(?i)\s*\b(high|low)\s+priority\b`)
	relativeClause = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(minute|min|hour|hr)s?\b`)

	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
)

// parseDue strips a trailing due clause ("by tomorrow", "due friday",
// "by 2026-09-01") from text and resolves it against now. The cleaned
// title and the resolved time (nil if no clause parsed) are returned.
func parseDue(text string, now time.Time) (string, *time.Time) {
	m := dueClause.FindStringSubmatchIndex(text)
	if m == nil {
		return text, nil
	}

	phrase := strings.ToLower(strings.TrimSpace(text[m[2]:m[3]]))
	due, ok := resolveDuePhrase(phrase, now)
	if !ok {
		// Retry with just the first word of the clause: "by friday evening"
		// still resolves "friday", keeping "evening" in the title.
		first, _, found := strings.Cut(phrase, " ")
		if found {
			if d, ok2 := resolveDuePhrase(first, now); ok2 {
				title := strings.TrimSpace(text[:m[0]])
				rest := strings.TrimSpace(phrase[len(first):])
				if rest != "" {
					title = title + " " + rest
				}
				return title, &d
			}
		}
		return text, nil
	}
	return strings.TrimSpace(text[:m[0]]), &due
}

func resolveDuePhrase(phrase string, now time.Time) (time.Time, bool) {
	switch phrase {
	case "today":
		return endOfDay(now), true
	case "tomorrow":
		return endOfDay(now.AddDate(0, 0, 1)), true
	}
	if wd, ok := weekdays[phrase]; ok {
		days := int(wd-now.Weekday()+7) % 7
		if days == 0 {
			days = 7 // "by friday" on a Friday means next week
		}
		return endOfDay(now.AddDate(0, 0, days)), true
	}
	if t, err := time.Parse(time.RFC3339, phrase); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", phrase, now.Location()); err == nil {
		return endOfDay(t), true
	}
	return time.Time{}, false
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// parsePriority strips a priority marker ("!p1".."!p3", "high priority",
// "low priority") from text. 0 means no marker.
func parsePriority(text string) (string, int) {
	if m := priorityMarker.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return strings.TrimSpace(priorityMarker.ReplaceAllString(text, "")), n
	}
	if m := priorityPhrase.FindStringSubmatch(text); m != nil {
		cleaned := strings.TrimSpace(priorityPhrase.ReplaceAllString(text, ""))
		if strings.EqualFold(m[1], "high") {
			return cleaned, 1
		}
		return cleaned, 3
	}
	return text, 0
}

// parseRelative extracts a trailing relative-time clause ("in 10 minutes",
// "in 2 hours") and returns the remaining text plus the offset in minutes.
func parseRelative(text string) (string, int, bool) {
	m := relativeClause.FindStringSubmatch(text)
	if m == nil {
		return text, 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return text, 0, false
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "h") {
		n *= 60
	}
	cleaned := strings.TrimSpace(relativeClause.ReplaceAllString(text, ""))
	return cleaned, n, true
}
