package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// timeStorageFormat is how times are written to the database. sqlite hands the same text back.
const timeStorageFormat = "2006-01-02 15:04:05.999999-07:00"

// Time is a UTC timestamp with microsecond precision, the finest precision Postgres stores.
// Rounding on construction means a Time reads back from the database exactly as it was written.
type Time struct {
	time.Time
}

func NewTime(t time.Time) Time {
	return Time{Time: t.UTC().Round(time.Microsecond)}
}

func (t *Time) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case time.Time: // postgres
		*t = NewTime(v)
	case string: // sqlite
		parsed, err := time.Parse(timeStorageFormat, v)
		if err != nil {
			return errors.Wrapf(err, "error parsing time %q", v)
		}
		*t = NewTime(parsed)
	default:
		return fmt.Errorf("error unsupported type for time: %[1]T (%[1]v)", src)
	}
	return nil
}

func (t Time) Value() (driver.Value, error) {
	return t.Format(timeStorageFormat), nil
}
