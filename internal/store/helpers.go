package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Querier is satisfied by *sql.DB and *sql.Tx so reads can run inside or
// outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NullableString maps empty strings to NULL.
func NullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// NullableTime maps nil timestamps to NULL and formats the rest like FormatTime.
func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

// NullableInt maps nil pointers to NULL.
func NullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

// NullableFloat maps nil pointers to NULL.
func NullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

// FormatTime renders a timestamp the way every table stores it.
func FormatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

// BoolToInt converts a bool to the 0/1 SQLite convention.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// ParseTime accepts RFC3339Nano and SQLite's CURRENT_TIMESTAMP format.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// TimeValue returns the parsed timestamp or the zero time.
func TimeValue(raw sql.NullString) time.Time {
	if !raw.Valid {
		return time.Time{}
	}
	parsed, err := ParseTime(raw.String)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// TimePtr returns the parsed timestamp or nil.
func TimePtr(raw sql.NullString) *time.Time {
	parsed := TimeValue(raw)
	if parsed.IsZero() {
		return nil
	}
	return &parsed
}

// IntPtr converts a nullable integer column.
func IntPtr(raw sql.NullInt64) *int {
	if !raw.Valid {
		return nil
	}
	v := int(raw.Int64)
	return &v
}

// FloatPtr converts a nullable float column.
func FloatPtr(raw sql.NullFloat64) *float64 {
	if !raw.Valid {
		return nil
	}
	v := raw.Float64
	return &v
}

// Placeholders renders "?,?,?" for count parameters.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
