package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	// the zone table must resolve on hosts without a system zoneinfo
	_ "time/tzdata"
)

// DefaultOffsetZones maps common US numeric offsets to candidate zones in
// preference order. Offsets overlap between standard and daylight time, so
// the first candidate observing the offset at the instant wins; the label
// is for display only.
func DefaultOffsetZones() map[string][]string {
	return map[string][]string{
		"-0400": {"America/New_York", "America/Puerto_Rico"},
		"-0500": {"America/New_York", "America/Chicago"},
		"-0600": {"America/Chicago", "America/Denver"},
		"-0700": {"America/Denver", "America/Los_Angeles"},
		"-0800": {"America/Los_Angeles", "America/Anchorage"},
		"-0900": {"America/Anchorage", "America/Adak"},
		"-1000": {"Pacific/Honolulu"},
	}
}

// OffsetKey canonicalises "-04:00", "-0400" or "-4" to "-0400".
func OffsetKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return "", fmt.Errorf("offset %q must start with + or -", s)
	}
	sign, body := s[:1], strings.ReplaceAll(s[1:], ":", "")

	var hh, mm int
	var err error
	switch len(body) {
	case 1, 2:
		hh, err = strconv.Atoi(body)
	case 4:
		if hh, err = strconv.Atoi(body[:2]); err == nil {
			mm, err = strconv.Atoi(body[2:])
		}
	default:
		return "", fmt.Errorf("offset %q has unexpected length", s)
	}
	if err != nil || hh > 23 || mm > 59 {
		return "", fmt.Errorf("offset %q out of range", s)
	}
	return fmt.Sprintf("%s%02d%02d", sign, hh, mm), nil
}

func offsetKeyFromSeconds(sec int) string {
	sign := "+"
	if sec < 0 {
		sign = "-"
		sec = -sec
	}
	return fmt.Sprintf("%s%02d%02d", sign, sec/3600, (sec%3600)/60)
}

// SynthesizeLabel renders a fixed offset as "UTC±HH:MM".
func SynthesizeLabel(offsetSeconds int) string {
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, offsetSeconds/3600, (offsetSeconds%3600)/60)
}

// labelForOffset picks the first configured zone for t's fixed offset that
// really observes the offset at t. Otherwise the offset is kept verbatim as
// a synthesised label.
func (n *Normalizer) labelForOffset(t time.Time) string {
	_, off := t.Zone()
	for _, zone := range n.offsetZones[offsetKeyFromSeconds(off)] {
		if n.observes(zone, t, off) {
			return zone
		}
	}
	return SynthesizeLabel(off)
}

func (n *Normalizer) observes(zone string, t time.Time, off int) bool {
	loc, err := n.location(zone)
	if err != nil {
		return false
	}
	_, zoneOff := t.In(loc).Zone()
	return zoneOff == off
}

// LocalTime converts a stored UTC instant back into its display timezone.
// Unknown labels fall back to UTC.
func LocalTime(t time.Time, label string) time.Time {
	label = strings.TrimSpace(label)
	switch {
	case label == "" || label == "UTC":
		return t.UTC()
	case strings.HasPrefix(label, "UTC+") || strings.HasPrefix(label, "UTC-"):
		off, err := labelOffsetSeconds(label[3:])
		if err != nil {
			return t.UTC()
		}
		return t.In(time.FixedZone(label, off))
	case label == "Local":
		return t.UTC()
	default:
		loc, err := time.LoadLocation(label)
		if err != nil {
			return t.UTC()
		}
		return t.In(loc)
	}
}

func labelOffsetSeconds(s string) (int, error) {
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	hh, mm, ok := strings.Cut(s[1:], ":")
	if !ok {
		return 0, fmt.Errorf("label offset %q lacks a colon", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, err
	}
	return sign * (h*3600 + m*60), nil
}
