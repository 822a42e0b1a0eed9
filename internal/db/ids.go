package db

import (
	"strings"

	"github.com/google/uuid"
)

const recordIDPrefix = "att-"

// NewRecordID generates a unique attendance record ID. UUIDv7 is time-ordered
// with a random suffix, so IDs stay unique across the lifetime of the device.
func NewRecordID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return recordIDPrefix + id.String(), nil
}

// NormalizeRecordID ensures a record ID has the att- prefix
func NormalizeRecordID(id string) string {
	if id == "" || strings.HasPrefix(id, recordIDPrefix) {
		return id
	}
	return recordIDPrefix + id
}
