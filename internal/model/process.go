package model

import "time"

// CheckInProcess is the ephemeral, per-attempt record of orchestration
// progress. It lives in the session cache under a bounded TTL and is never
// written to the database.
type CheckInProcess struct {
	ID          string        `json:"processId"`
	TokenID     string        `json:"tokenId"`
	StaffID     string        `json:"staffId"`
	HotelID     string        `json:"hotelId"`
	BookingID   string        `json:"bookingId,omitempty"`
	Status      ProcessStatus `json:"status"`
	Steps       ProcessSteps  `json:"steps"`
	Warnings    []string      `json:"warnings,omitempty"`
	FailureCode string        `json:"failureCode,omitempty"`
	Failure     string        `json:"failure,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// ProcessSteps is the per-stage checklist, kept for resumability diagnostics
// and status polling.
type ProcessSteps struct {
	Validated     bool `json:"validated"`
	BookingLoaded bool `json:"bookingLoaded"`
	PreChecked    bool `json:"preChecked"`
	RoomsAssigned bool `json:"roomsAssigned"`
	Committed     bool `json:"committed"`
	UsageRecorded bool `json:"usageRecorded"`
	Notified      bool `json:"notified"`
}

// CheckInResult is what the staff-facing caller receives on success.
type CheckInResult struct {
	Success      bool      `json:"success"`
	ProcessID    string    `json:"processId"`
	BookingID    string    `json:"bookingId"`
	GuestName    string    `json:"guestName,omitempty"`
	RoomNumbers  []string  `json:"roomNumbers,omitempty"`
	CheckInDate  time.Time `json:"checkInDate"`
	CheckOutDate time.Time `json:"checkOutDate"`
	Warnings     []string  `json:"warnings,omitempty"`
	CheckedInAt  time.Time `json:"checkedInAt"`
	UsageCount   int       `json:"usageCount"`
	UsageLimit   int       `json:"usageLimit"`
}
