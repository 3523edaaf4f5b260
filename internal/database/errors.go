package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation reports whether err is a unique-index violation from
// either backend (postgres in production, sqlite in the test harness). The
// application-level uniqueness precheck is inherently racy; the index is the
// real guarantee, and races surface through here.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// UniqueViolationField best-effort extracts which column collided so the
// caller can name the field instead of returning a generic conflict.
func UniqueViolationField(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "email"):
		return "email"
	case strings.Contains(msg, "national_id"):
		return "national ID"
	default:
		return ""
	}
}
