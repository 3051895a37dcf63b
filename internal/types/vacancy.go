// Package types provides type definitions for structured data used throughout the shift-backfill system.
package types

import "time"

// Vacancy is the immutable shift and client context of one backfill run.
type Vacancy struct {
	ShiftID           string    `json:"shift_id"`
	ClientID          string    `json:"client_id"`
	ClientFirstName   string    `json:"client_first_name"`
	ClientLastInitial string    `json:"client_last_initial"`
	ClientLanguage    string    `json:"client_language"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	RequiredSkills    []string  `json:"required_skills"`
}

// CandidateRow is one eligible worker with features precomputed by the candidate query.
type CandidateRow struct {
	WorkerID             string   `json:"worker_id"`
	Name                 string   `json:"name"`
	Phone                string   `json:"phone"`
	DistanceMiles        float64  `json:"distance_miles"`
	SkillOverlap         []string `json:"skill_overlap"`
	HasMandatorySkills   bool     `json:"has_mandatory_skills"`
	ReliabilityScore     float64  `json:"reliability_score"`
	LastMinuteAcceptRate float64  `json:"last_minute_accept_rate"`
	LanguageMatch        bool     `json:"language_match"`
}

// ShiftRecord is a shift row joined with its client. Client is nil when the join found no client.
type ShiftRecord struct {
	ID             string        `json:"id"`
	ClientID       string        `json:"client_id"`
	WorkerID       *string       `json:"worker_id,omitempty"`
	Status         string        `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	RequiredSkills []string      `json:"required_skills"`
	Client         *ClientRecord `json:"client,omitempty"`
}

// ClientRecord holds the client fields needed to describe a vacancy.
type ClientRecord struct {
	ID              string  `json:"id"`
	FirstName       string  `json:"first_name"`
	LastInitial     string  `json:"last_initial"`
	PrimaryLanguage string  `json:"primary_language"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
}

// WorkerRecord is a caregiver who can be offered shifts.
type WorkerRecord struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Phone                string   `json:"phone"`
	Skills               []string `json:"skills"`
	Languages            []string `json:"languages"`
	Latitude             float64  `json:"latitude"`
	Longitude            float64  `json:"longitude"`
	ReliabilityScore     float64  `json:"reliability_score"`
	LastMinuteAcceptRate float64  `json:"last_minute_accept_rate"`
	Active               bool     `json:"active"`
}

// Shift status values written by the engine.
const (
	ShiftStatusScheduled = "scheduled"
	ShiftStatusAssigned  = "assigned"
	ShiftStatusCancelled = "cancelled"
	ShiftStatusFilled    = "filled"
)
