// Package metadata extracts device identity and recording timestamps from
// field recorder filenames. Naming conventions vary wildly between recorder
// models and facilities, so parsing is best effort: Parse never fails and
// falls back to defaults plus the current wall-clock time.
package metadata

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DeviceInfo describes the recorder a file came from, as far as the filename
// reveals it.
type DeviceInfo struct {
	DeviceType   string // e.g. "SMM" for Song Meter Micro
	DeviceID     string // unit number, e.g. "07257"
	FullDeviceID string // e.g. "SMM07257"
}

// DefaultDeviceInfo is returned when no device token can be identified.
var DefaultDeviceInfo = DeviceInfo{
	DeviceType:   "UNK",
	DeviceID:     "00000",
	FullDeviceID: "UNK00000",
}

// DefaultSpeciesPrefixes are the species-name prefixes stripped from
// filenames before tokenizing.
var DefaultSpeciesPrefixes = []string{"amur_leopard", "amur_tiger"}

var (
	devicePattern = regexp.MustCompile(`^([A-Za-z]+)(\d+)$`)

	datePatterns = []*regexp.Regexp{
		// YYYYMMDD
		regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`),
		// YYYY-MM-DD or YYYY/MM/DD
		regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`),
		// MM-DD-YYYY or MM/DD/YYYY
		regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`),
		// Month name formats: Jan-01-2023, 01-Jan-2023, 2023-Jan-01
		regexp.MustCompile(`^([A-Za-z]{3,9})[-\s](\d{1,2})[-\s](\d{4})$`),
		regexp.MustCompile(`^(\d{1,2})[-\s]([A-Za-z]{3,9})[-\s](\d{4})$`),
		regexp.MustCompile(`^(\d{4})[-\s]([A-Za-z]{3,9})[-\s](\d{1,2})$`),
	}

	timePatterns = []*regexp.Regexp{
		// HHMMSS
		regexp.MustCompile(`^(\d{2})(\d{2})(\d{2})$`),
		// HH-MM-SS or HH:MM:SS
		regexp.MustCompile(`^(\d{1,2})[-:](\d{1,2})[-:](\d{1,2})$`),
		// With AM/PM suffix
		regexp.MustCompile(`^(\d{1,2})[-:](\d{1,2})[-:](\d{1,2})[-\s]?([AaPp][Mm])$`),
	}

	tokenPattern     = regexp.MustCompile(`[A-Za-z]+|\d+`)
	eightDigitRun    = regexp.MustCompile(`\d{8}`)
	sixDigitRun      = regexp.MustCompile(`\d{6}`)
	letterPrefix     = regexp.MustCompile(`^([A-Za-z]+)`)
	trailingDigits   = regexp.MustCompile(`^[A-Za-z]*(\d+)`)
	allDigitsPattern = regexp.MustCompile(`^\d+$`)
)

var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

// Parse extracts device info and a recording timestamp from a filename using
// the default species prefixes. It never fails: unparseable input yields
// DefaultDeviceInfo and the current time.
func Parse(filename string) (DeviceInfo, time.Time) {
	return ParseWithPrefixes(filename, DefaultSpeciesPrefixes)
}

// SpeciesFromFilename returns the species prefix slug the filename starts
// with, or the empty string when no known prefix matches.
func SpeciesFromFilename(filename string, speciesPrefixes []string) string {
	baseName := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, species := range speciesPrefixes {
		if strings.HasPrefix(baseName, species+"_") {
			return species
		}
	}
	return ""
}

// ParseWithPrefixes is Parse with an explicit species prefix list, as
// configured per deployment.
func ParseWithPrefixes(filename string, speciesPrefixes []string) (DeviceInfo, time.Time) {
	now := time.Now()

	baseName := strings.TrimSuffix(filename, filepath.Ext(filename))

	for _, species := range speciesPrefixes {
		prefix := species + "_"
		if strings.HasPrefix(baseName, prefix) {
			baseName = strings.TrimPrefix(baseName, prefix)
			break
		}
	}

	var parts []string
	switch {
	case strings.Contains(baseName, "_"):
		parts = strings.Split(baseName, "_")
	case strings.Contains(baseName, "-"):
		parts = strings.Split(baseName, "-")
	default:
		parts = tokenPattern.FindAllString(baseName, -1)
	}

	var deviceToken, dateStr, timeStr string

	for _, part := range parts {
		if part == "" {
			continue
		}

		if deviceToken == "" && devicePattern.MatchString(part) {
			deviceToken = part
			continue
		}

		if dateStr == "" {
			matched := false
			for _, pattern := range datePatterns {
				if pattern.MatchString(part) {
					dateStr = part
					matched = true
					break
				}
			}
			// Combined date-time token (YYYYMMDDHHMMSS)
			if !matched && len(part) >= 14 && allDigitsPattern.MatchString(part) {
				dateStr = part[:8]
				timeStr = part[8:14]
				break
			}
			if matched {
				continue
			}
		}

		if timeStr == "" {
			for _, pattern := range timePatterns {
				if pattern.MatchString(part) {
					timeStr = part
					break
				}
			}
			if timeStr != "" {
				continue
			}
		}

		if deviceToken != "" && dateStr != "" && timeStr != "" {
			break
		}
	}

	// Fallbacks for anything the token scan missed.
	if deviceToken == "" && len(parts) > 0 {
		deviceToken = parts[0]
	}
	if dateStr == "" {
		if m := eightDigitRun.FindString(baseName); m != "" {
			dateStr = m
		}
	}
	if timeStr == "" {
		if m := sixDigitRun.FindString(baseName); m != "" {
			if dateStr == "" || m != dateStr[:min(6, len(dateStr))] {
				timeStr = m
			}
		}
	}

	device := parseDeviceToken(deviceToken)

	recordedAt, ok := parseDateTime(dateStr, timeStr)
	if !ok {
		getLogger().Warn("could not parse date/time from filename, using current time as fallback",
			"filename", filename)
		return device, now
	}

	return device, recordedAt
}

func parseDeviceToken(token string) DeviceInfo {
	info := DefaultDeviceInfo
	if token == "" {
		return info
	}

	if m := letterPrefix.FindStringSubmatch(token); m != nil {
		info.DeviceType = m[1]
	}
	if m := trailingDigits.FindStringSubmatch(token); m != nil {
		info.DeviceID = m[1]
	}
	info.FullDeviceID = token
	return info
}

// parseDateTime resolves the date and time tokens into a timestamp. The bool
// result is false when no valid calendar date could be constructed.
func parseDateTime(dateStr, timeStr string) (time.Time, bool) {
	if dateStr == "" {
		return time.Time{}, false
	}

	var year, month, day int

	for _, pattern := range datePatterns {
		m := pattern.FindStringSubmatch(dateStr)
		if m == nil {
			continue
		}
		groups := m[1:]

		switch {
		// Year-first formats (YYYYMMDD, YYYY-MM-DD, YYYY-MonthName-DD)
		case len(groups[0]) == 4 && isDigits(groups[0]):
			year = atoi(groups[0])
			if isDigits(groups[1]) {
				month = atoi(groups[1])
			} else {
				month = monthNames[strings.ToLower(groups[1])]
			}
			day = atoi(groups[2])
		// Year-last formats (MM-DD-YYYY, MonthName-DD-YYYY, DD-MonthName-YYYY)
		case len(groups[2]) == 4 && isDigits(groups[2]):
			year = atoi(groups[2])
			switch {
			case isDigits(groups[0]) && isDigits(groups[1]):
				month = atoi(groups[0])
				day = atoi(groups[1])
			case !isDigits(groups[0]):
				month = monthNames[strings.ToLower(groups[0])]
				day = atoi(groups[1])
			default:
				day = atoi(groups[0])
				month = monthNames[strings.ToLower(groups[1])]
			}
		}
		break
	}

	// Direct YYYYMMDD parsing when no pattern matched (e.g. the 8-digit run fallback)
	if year == 0 && len(dateStr) >= 8 && isDigits(dateStr[:8]) {
		year = atoi(dateStr[:4])
		month = atoi(dateStr[4:6])
		day = atoi(dateStr[6:8])
	}

	if year == 0 || month == 0 || day == 0 {
		return time.Time{}, false
	}

	hour, minute, second := parseTimeToken(timeStr)

	if !validClockTime(hour, minute, second) {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
	// time.Date normalizes out-of-range values (day 32 rolls into the next
	// month); reject anything that did not round-trip.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}

	return t, true
}

func parseTimeToken(timeStr string) (hour, minute, second int) {
	if timeStr == "" {
		return 0, 0, 0
	}

	for _, pattern := range timePatterns {
		m := pattern.FindStringSubmatch(timeStr)
		if m == nil {
			continue
		}
		groups := m[1:]
		hour = atoi(groups[0])
		minute = atoi(groups[1])
		second = atoi(groups[2])

		if len(groups) > 3 && groups[3] != "" {
			switch strings.ToLower(groups[3]) {
			case "pm":
				if hour < 12 {
					hour += 12
				}
			case "am":
				if hour == 12 {
					hour = 0
				}
			}
		}
		return hour, minute, second
	}

	// Direct HHMMSS parsing for digit runs that matched no pattern
	if len(timeStr) >= 6 && isDigits(timeStr[:6]) {
		hour = atoi(timeStr[:2])
		minute = atoi(timeStr[2:4])
		second = atoi(timeStr[4:6])
	}
	return hour, minute, second
}

func validClockTime(hour, minute, second int) bool {
	return hour >= 0 && hour < 24 && minute >= 0 && minute < 60 && second >= 0 && second < 60
}

func isDigits(s string) bool {
	return allDigitsPattern.MatchString(s)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
