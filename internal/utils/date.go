package utils

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the calendar date format the backend uses for date fields.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time of day. It marshals as "2006-01-02" and
// unmarshals null or "" as the zero Date.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, errors.Wrapf(err, "[utils.ParseDate] %q", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDate works like time.Time.AddDate, including its month overflow normalisation.
func (d Date) AddDate(years, months, days int) Date {
	return Date{d.Time.AddDate(years, months, days)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
