// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule parses the archive and clean schedules and runs a
// function at each occurrence.
//
// Expressions are standard 5-field cron (minute hour day-of-month
// month day-of-week, evaluated in UTC), the descriptors @hourly,
// @daily and @weekly, or "@every <duration>" for a fixed interval:
//
//	0 */6 * * *      every six hours on the hour
//	30 2 * * 1-5     02:30 on weekdays
//	@every 15m       every fifteen minutes
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule computes occurrence times.
type Schedule interface {
	// Next returns the earliest occurrence strictly after t.
	Next(t time.Time) (time.Time, error)
}

// Parse parses a schedule expression.
func Parse(expression string) (Schedule, error) {
	expression = strings.TrimSpace(expression)
	switch expression {
	case "@hourly":
		expression = "0 * * * *"
	case "@daily", "@midnight":
		expression = "0 0 * * *"
	case "@weekly":
		expression = "0 0 * * 0"
	}
	if rest, ok := strings.CutPrefix(expression, "@every "); ok {
		interval, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("schedule: %q: %w", expression, err)
		}
		if interval < time.Second {
			return nil, fmt.Errorf("schedule: interval %s is shorter than one second", interval)
		}
		return every(interval), nil
	}
	return parseCron(expression)
}

// every fires at multiples of the interval counted from the zero time, so a
// restarted process keeps the same phase.
type every time.Duration

func (e every) Next(t time.Time) (time.Time, error) {
	interval := time.Duration(e)
	return t.Truncate(interval).Add(interval), nil
}

func (e every) String() string { return "@every " + time.Duration(e).String() }

// cron is a parsed 5-field expression.
type cron struct {
	expression  string
	minutes     bitset
	hours       bitset
	daysOfMonth bitset
	months      bitset
	daysOfWeek  bitset

	// Day matching is OR when both day fields are restricted and AND
	// otherwise, as in Vixie cron.
	daysOfMonthAny bool
	daysOfWeekAny  bool
}

type bitset uint64

func (b bitset) has(value int) bool { return b&(1<<uint(value)) != 0 }

func parseCron(expression string) (*cron, error) {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return nil, fmt.Errorf("schedule: %q: expected 5 fields, got %d", expression, len(fields))
	}

	type fieldDef struct {
		name     string
		min, max int
		target   *bitset
	}
	parsed := &cron{expression: expression}
	defs := []fieldDef{
		{"minute", 0, 59, &parsed.minutes},
		{"hour", 0, 23, &parsed.hours},
		{"day-of-month", 1, 31, &parsed.daysOfMonth},
		{"month", 1, 12, &parsed.months},
		{"day-of-week", 0, 7, &parsed.daysOfWeek},
	}
	for index, def := range defs {
		bits, err := parseField(fields[index], def.min, def.max)
		if err != nil {
			return nil, fmt.Errorf("schedule: %q: %s field: %w", expression, def.name, err)
		}
		*def.target = bits
	}
	// Sunday may be written as 0 or 7.
	if parsed.daysOfWeek.has(7) {
		parsed.daysOfWeek |= 1
	}
	parsed.daysOfMonthAny = strings.HasPrefix(fields[2], "*")
	parsed.daysOfWeekAny = strings.HasPrefix(fields[4], "*")
	return parsed, nil
}

func (c *cron) String() string { return c.expression }

func (c *cron) dayMatches(t time.Time) bool {
	dayOfMonth := c.daysOfMonth.has(t.Day())
	dayOfWeek := c.daysOfWeek.has(int(t.Weekday()))
	if c.daysOfMonthAny || c.daysOfWeekAny {
		return dayOfMonth && dayOfWeek
	}
	return dayOfMonth || dayOfWeek
}

// Next returns the earliest matching minute after t, in UTC. An
// expression that matches nothing within four years (e.g. 30 February)
// is an error.
func (c *cron) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		switch {
		case !c.months.has(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		case !c.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
		case !c.hours.has(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
		case !c.minutes.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("schedule: %q matches nothing within four years", c.expression)
}

// parseField parses comma-separated terms into a bitset.
func parseField(field string, minimum, maximum int) (bitset, error) {
	var result bitset
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	return result, nil
}

// parseTerm parses *, */N, V, V/N, V-V or V-V/N.
func parseTerm(term string, minimum, maximum int) (bitset, error) {
	rangePart, stepPart, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepPart)
		if err != nil || parsed <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepPart)
		}
		step = parsed
	}

	start, end := minimum, maximum
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		low, high, _ := strings.Cut(rangePart, "-")
		var err error
		if start, err = strconv.Atoi(low); err != nil {
			return 0, fmt.Errorf("invalid range start %q", low)
		}
		if end, err = strconv.Atoi(high); err != nil {
			return 0, fmt.Errorf("invalid range end %q", high)
		}
		if start > end {
			return 0, fmt.Errorf("range %d-%d is reversed", start, end)
		}
	default:
		value, err := strconv.Atoi(rangePart)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", rangePart)
		}
		start = value
		end = value
		if hasStep {
			end = maximum
		}
	}
	if start < minimum || end > maximum {
		return 0, fmt.Errorf("%d-%d is outside [%d-%d]", start, end, minimum, maximum)
	}

	var result bitset
	for value := start; value <= end; value += step {
		result |= 1 << uint(value)
	}
	return result, nil
}
