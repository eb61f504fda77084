package db

import (
	"time"

	"github.com/google/uuid"
)

// ScanReport is a persisted scan session summary.
type ScanReport struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Target     string     `db:"target" json:"target"`
	IP         string     `db:"ip" json:"ip"`
	OSGuess    string     `db:"os_guess" json:"os_guess"`
	StartPort  int        `db:"start_port" json:"start_port"`
	EndPort    int        `db:"end_port" json:"end_port"`
	Workers    int        `db:"workers" json:"workers"`
	State      string     `db:"state" json:"state"`
	Completed  int        `db:"completed" json:"completed"`
	Total      int        `db:"total" json:"total"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// OpenPort is one open port of a persisted report. Position keeps the order
// in which ports were found.
type OpenPort struct {
	ReportID uuid.UUID `db:"report_id" json:"-"`
	Position int       `db:"position" json:"-"`
	Port     int       `db:"port" json:"port"`
	Banner   string    `db:"banner" json:"banner"`
}
