package report

import (
	"context"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

// Store persists scan reports.
type Store interface {
	Save(ctx context.Context, report *db.ScanReport, ports []db.OpenPort) error
}

var _ Store = (*db.ReportRepository)(nil)

// FromStatus converts a session snapshot into database rows.
func FromStatus(st scanning.Status, records []scanning.OpenPortRecord) (*db.ScanReport, []db.OpenPort) {
	r := &db.ScanReport{
		Target:     st.Target,
		IP:         st.IP,
		OSGuess:    string(st.OSGuess),
		StartPort:  st.StartPort,
		EndPort:    st.EndPort,
		Workers:    st.Workers,
		State:      string(st.State),
		Completed:  st.Completed,
		Total:      st.Total,
		StartedAt:  st.StartedAt,
		FinishedAt: st.FinishedAt,
	}

	ports := make([]db.OpenPort, len(records))
	for i, rec := range records {
		ports[i] = db.OpenPort{Position: i, Port: rec.Port, Banner: rec.Banner}
	}
	return r, ports
}

// Persist saves a finished session. Running sessions are rejected so a
// stored report never changes after the fact.
func Persist(ctx context.Context, store Store, s *scanning.Session) (*db.ScanReport, error) {
	st := s.Status()
	if !st.State.Terminal() {
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			"Scan is still running", "state", string(st.State))
	}

	r, ports := FromStatus(st, s.OpenPorts())
	if err := store.Save(ctx, r, ports); err != nil {
		return nil, err
	}
	return r, nil
}
