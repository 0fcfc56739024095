// Package timeparse normalises user-typed dates and times into the canonical
// YYYY-MM-DD and HH:MM forms stored on tasks.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrDate = errors.New("unrecognised date")
	ErrTime = errors.New("unrecognised time")
)

var (
	isoDate   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	fullDate  = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{4})$`)
	shortDate = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})$`)
	hourOnly  = regexp.MustCompile(`^\d{1,2}$`)
	compact   = regexp.MustCompile(`^\d{4}$`)
	clock     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

var relativeDays = map[string]int{
	"сегодня":     0,
	"today":       0,
	"завтра":      1,
	"tomorrow":    1,
	"послезавтра": 2,
}

// ParseDate converts s to YYYY-MM-DD. A day.month value without a year takes
// the year of now, rolling to the next year for January dates typed in December.
func ParseDate(s string, now time.Time) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrDate
	}
	if offset, ok := relativeDays[s]; ok {
		return now.AddDate(0, 0, offset).Format(DateLayout), nil
	}

	var year, month, day int
	switch {
	case isoDate.MatchString(s):
		m := isoDate.FindStringSubmatch(s)
		year, month, day = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case fullDate.MatchString(s):
		m := fullDate.FindStringSubmatch(s)
		day, month, year = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case shortDate.MatchString(s):
		m := shortDate.FindStringSubmatch(s)
		day, month = atoi(m[1]), atoi(m[2])
		year = now.Year()
		if now.Month() == time.December && month == 1 {
			year++
		}
	default:
		return "", ErrDate
	}

	if month < 1 || month > 12 || day < 1 {
		return "", fmt.Errorf("%w: %q", ErrDate, s)
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return "", fmt.Errorf("%w: %q", ErrDate, s)
	}
	return d.Format(DateLayout), nil
}

// ParseTime converts s to HH:MM. Accepted: "14", "1400", "14.30", "14:30".
func ParseTime(s string) (string, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", ":")
	switch {
	case hourOnly.MatchString(s):
		s = s + ":00"
	case compact.MatchString(s):
		s = s[:2] + ":" + s[2:]
	}

	m := clock.FindStringSubmatch(s)
	if m == nil {
		return "", ErrTime
	}
	hour, minute := atoi(m[1]), atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", fmt.Errorf("%w: %q", ErrTime, s)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// FormatDay renders a canonical date as DD.MM.YYYY, returning the input unchanged
// when it is not canonical.
func FormatDay(date string) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02.01.2006")
}

// FormatShort renders a canonical date as DD.MM.
func FormatShort(date string) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02.01")
}

var (
	weekdaysShort = [...]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}
	weekdaysLong  = [...]string{"Воскресенье", "Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота"}
)

// Weekday returns the Russian weekday name of a canonical date, short or long.
func Weekday(date string, short bool) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return ""
	}
	if short {
		return weekdaysShort[d.Weekday()]
	}
	return weekdaysLong[d.Weekday()]
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
