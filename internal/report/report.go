// Package report renders open-port records as text, JSON, CSV or a table and
// saves them to disk.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/scanning"
)

// Format is a report output format.
type Format string

const (
	FormatTXT   Format = "txt"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
)

// BaseName is the file name, without extension, of saved reports.
const BaseName = "scan_report"

// DefaultFormats are the formats written by SaveAll.
var DefaultFormats = []Format{FormatTXT, FormatJSON, FormatCSV}

// ErrNoOpenPorts is returned when there is nothing to save.
var ErrNoOpenPorts = errors.ErrNoResults()

// Recorder receives report write outcomes.
type Recorder interface {
	RecordReportWrite(format string, err error)
}

var _ Recorder = (*metrics.PrometheusMetrics)(nil)

// ParseFormat converts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTXT, FormatJSON, FormatCSV, FormatTable:
		return f, nil
	case "text":
		return FormatTXT, nil
	default:
		return "", errors.ErrConfigInvalid("format", s)
	}
}

// ContentType returns the HTTP content type of a rendered format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// FileName returns the report file name for the format.
func (f Format) FileName() string {
	if f == FormatTable {
		return BaseName + "_table.txt"
	}
	return BaseName + "." + string(f)
}

// Render writes records to w in the given format. An empty slice renders an
// empty document.
func Render(w io.Writer, format Format, records []scanning.OpenPortRecord) error {
	switch format {
	case FormatTXT:
		return renderText(w, records)
	case FormatJSON:
		return renderJSON(w, records)
	case FormatCSV:
		return renderCSV(w, records)
	case FormatTable:
		return renderTable(w, records)
	default:
		return errors.ErrConfigInvalid("format", string(format))
	}
}

func renderText(w io.Writer, records []scanning.OpenPortRecord) error {
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "Port %d OPEN | Banner: %s\n", r.Port, r.Banner); err != nil {
			return err
		}
	}
	return nil
}

func renderJSON(w io.Writer, records []scanning.OpenPortRecord) error {
	if records == nil {
		records = []scanning.OpenPortRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func renderCSV(w io.Writer, records []scanning.OpenPortRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"port", "banner"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{strconv.Itoa(r.Port), r.Banner}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderTable(w io.Writer, records []scanning.OpenPortRecord) error {
	table := tablewriter.NewWriter(w)
	table.Header("Port", "Banner")
	for _, r := range records {
		if err := table.Append([]string{strconv.Itoa(r.Port), r.Banner}); err != nil {
			return err
		}
	}
	return table.Render()
}

// Saver writes report files into a directory.
type Saver struct {
	Dir     string
	Formats []Format
	Metrics Recorder
}

// NewSaver creates a Saver from configured format names.
func NewSaver(dir string, formats []string) (*Saver, error) {
	s := &Saver{Dir: dir, Metrics: metrics.GetGlobalMetrics()}
	for _, name := range formats {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		s.Formats = append(s.Formats, f)
	}
	if len(s.Formats) == 0 {
		s.Formats = DefaultFormats
	}
	return s, nil
}

// Save writes one file per format and returns the written paths. It refuses
// with ErrNoOpenPorts when records is empty. The first write failure is
// returned as a report error; files already written are kept.
func (s *Saver) Save(records []scanning.OpenPortRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, ErrNoOpenPorts
	}

	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.WrapReportError("", dir, err)
	}

	paths := make([]string, 0, len(s.Formats))
	for _, f := range s.Formats {
		path := filepath.Join(dir, f.FileName())
		err := s.write(path, f, records)
		if s.Metrics != nil {
			s.Metrics.RecordReportWrite(string(f), err)
		}
		if err != nil {
			logging.ErrorReport("Failed to save report", path, err, "format", string(f))
			return paths, errors.WrapReportError(string(f), path, err)
		}
		paths = append(paths, path)
	}

	logging.InfoReport("Reports saved", dir, "files", len(paths), "open_ports", len(records))
	return paths, nil
}

func (s *Saver) write(path string, f Format, records []scanning.OpenPortRecord) error {
	var buf bytes.Buffer
	if err := Render(&buf, f, records); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// SaveAll writes scan_report.txt, scan_report.json and scan_report.csv into
// dir.
func SaveAll(dir string, records []scanning.OpenPortRecord) ([]string, error) {
	s := &Saver{Dir: dir, Formats: DefaultFormats, Metrics: metrics.GetGlobalMetrics()}
	return s.Save(records)
}
