// Package dateformat infers which of a fixed set of date layouts best
// explains a sample of user-supplied date strings, and converts matching
// strings to the canonical YYYY-MM-DD form used for storage and dedup.
package dateformat

import (
	"strings"
	"time"
)

// Canonical is the storage representation of a date.
const Canonical = "2006-01-02"

// Layouts is the fixed candidate list, tried in order. The ordering is a
// deliberate bias: samples that parse under several layouts (e.g. 01/02/2023)
// resolve to the earliest listed one — ISO first, then US, then EU.
var Layouts = []string{
	"2006-01-02",       // ISO standard
	"01/02/2006",       // US common
	"02/01/2006",       // EU common
	"1/2/2006",         // US with single digits
	"2/1/2006",         // EU with single digits
	"01-02-2006",       // US with dashes
	"02-01-2006",       // EU with dashes
	"2006/01/02",       // Alternative ISO
	"01/02/06",         // US short year
	"02/01/06",         // EU short year
	"1/2/06",           // US short year, single digits
	"2/1/06",           // EU short year, single digits
	"Jan 02, 2006",     // Month name, abbreviated
	"02 Jan 2006",      // EU month name, abbreviated
	"January 02, 2006", // Full month name
	"02 January 2006",  // EU full month name
}

var descriptions = map[string]string{
	"2006-01-02":       "ISO format (2023-12-25)",
	"01/02/2006":       "US format (12/25/2023)",
	"02/01/2006":       "European format (25/12/2023)",
	"1/2/2006":         "US format, no leading zeros (12/5/2023)",
	"2/1/2006":         "European format, no leading zeros (5/12/2023)",
	"01-02-2006":       "US format with dashes (12-25-2023)",
	"02-01-2006":       "European format with dashes (25-12-2023)",
	"2006/01/02":       "ISO with slashes (2023/12/25)",
	"01/02/06":         "US short year (12/25/23)",
	"02/01/06":         "European short year (25/12/23)",
	"1/2/06":           "US short year, no zeros (12/5/23)",
	"2/1/06":           "European short year, no zeros (5/12/23)",
	"Jan 02, 2006":     "Month name format (Dec 25, 2023)",
	"02 Jan 2006":      "European month name (25 Dec 2023)",
	"January 02, 2006": "Full month name (December 25, 2023)",
	"02 January 2006":  "European full month (25 December 2023)",
}

// Detection reports the winning layout for a sample set.
type Detection struct {
	Format       string
	Confidence   float64
	ValidSamples int
	TotalSamples int
}

// Detect tries every candidate layout against up to maxSamples samples and
// returns the one with the highest confidence (valid/total), breaking ties by
// higher raw valid count and then by list position. Returns nil when no
// sample parses under any layout.
func Detect(samples []string, maxSamples int) *Detection {
	if len(samples) == 0 {
		return nil
	}
	if maxSamples > 0 && len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}

	var best *Detection
	for _, layout := range Layouts {
		valid := 0
		for _, s := range samples {
			if _, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				valid++
			}
		}
		if valid == 0 {
			continue
		}
		confidence := float64(valid) / float64(len(samples))
		if best == nil || confidence > best.Confidence ||
			(confidence == best.Confidence && valid > best.ValidSamples) {
			best = &Detection{
				Format:       layout,
				Confidence:   confidence,
				ValidSamples: valid,
				TotalSamples: len(samples),
			}
		}
	}
	return best
}

// Convert parses dateStr strictly under layout and returns it in canonical
// YYYY-MM-DD form. ok is false when the string does not match the layout.
func Convert(dateStr, layout string) (string, bool) {
	t, err := time.Parse(layout, strings.TrimSpace(dateStr))
	if err != nil {
		return "", false
	}
	return t.Format(Canonical), true
}

// Describe returns a human-readable description of a layout for CLI output.
func Describe(layout string) string {
	if d, ok := descriptions[layout]; ok {
		return d
	}
	return "Custom format (" + layout + ")"
}
