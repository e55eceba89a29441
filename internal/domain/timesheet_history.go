package domain

import "time"

// TimesheetHistory is one field-level change to a timesheet entry.
type TimesheetHistory struct {
	ID           int64
	TimesheetID  int64
	FieldName    string
	OldValue     string
	NewValue     string
	ChangeReason string
	ChangedAt    time.Time
}

// NewTimesheetHistory creates a history record for a field change
func NewTimesheetHistory(timesheetID int64, fieldName, oldValue, newValue, reason string) *TimesheetHistory {
	return &TimesheetHistory{
		TimesheetID:  timesheetID,
		FieldName:    fieldName,
		OldValue:     oldValue,
		NewValue:     newValue,
		ChangeReason: reason,
		ChangedAt:    time.Now(),
	}
}
