// Package payload assembles the text that is encoded into a QR code from a
// code, a calendar date and a clock time.
package payload

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const (
	PolicyHuman   = "human"
	PolicyMachine = "machine"

	DefaultDelimiter = "|"
)

var (
	ErrMissingCode = errors.New("missing code")
	ErrMissingDate = errors.New("missing date")
	ErrInvalidTime = errors.New("invalid time")
	ErrInvalidDate = errors.New("invalid date")
)

// Formatter turns form input into payload text. Implementations must be
// deterministic.
type Formatter interface {
	Format(code string, date civil.Date, clock civil.Time) (string, error)
}

// Human joins code, date and time for people to read:
// "12345 - 01/06/2024 14:30".
type Human struct{}

func (Human) Format(code string, date civil.Date, clock civil.Time) (string, error) {
	if err := check(code, date); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s - %s %02d:%02d", code, date.In(time.UTC).Format("02/01/2006"), clock.Hour, clock.Minute), nil
}

// Machine writes a fixed-width yyyyMMddHHmm token into the second
// delimiter-separated field of the code, appending the field when the code
// has none.
type Machine struct {
	Delimiter string
}

func (m Machine) Format(code string, date civil.Date, clock civil.Time) (string, error) {
	if err := check(code, date); err != nil {
		return "", err
	}
	delim := m.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}

	token := Token(date, clock)
	fields := strings.Split(code, delim)
	if len(fields) == 1 {
		return code + delim + token, nil
	}
	fields[1] = token
	return strings.Join(fields, delim), nil
}

// Token renders the 12 digit date+time stamp used by the machine policy.
func Token(date civil.Date, clock civil.Time) string {
	return fmt.Sprintf("%04d%02d%02d%02d%02d", date.Year, int(date.Month), date.Day, clock.Hour, clock.Minute)
}

// ForPolicy returns the formatter registered under name.
func ForPolicy(name, delimiter string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyHuman:
		return Human{}, nil
	case PolicyMachine:
		return Machine{Delimiter: delimiter}, nil
	default:
		return nil, fmt.Errorf("unknown payload policy %q", name)
	}
}

func check(code string, date civil.Date) error {
	if strings.TrimSpace(code) == "" {
		return ErrMissingCode
	}
	if date == (civil.Date{}) {
		return ErrMissingDate
	}
	return nil
}

// FilterDigits drops every rune that is not a decimal digit.
func FilterDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// ParseClock parses a HH:MM clock value as sent by time inputs. Seconds are
// accepted and ignored.
func ParseClock(s string) (civil.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.Time{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return civil.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// ParseDate parses a YYYY-MM-DD date. An empty string yields the zero date,
// which formatters report as ErrMissingDate.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}
