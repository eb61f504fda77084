package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

var sample = []scanning.OpenPortRecord{
	{Port: 22, Banner: "SSH-2.0-OpenSSH_9.6"},
	{Port: 80, Banner: scanning.NoBanner},
	{Port: 8443, Banner: "greeting, with comma"},
}

type recordedWrite struct {
	format string
	err    error
}

type fakeRecorder struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (f *fakeRecorder) RecordReportWrite(format string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{format, err})
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTXT, sample))
	assert.Equal(t,
		"Port 22 OPEN | Banner: SSH-2.0-OpenSSH_9.6\n"+
			"Port 80 OPEN | Banner: No Banner\n"+
			"Port 8443 OPEN | Banner: greeting, with comma\n",
		buf.String())
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, sample))
	assert.Contains(t, buf.String(), "\n  {\n    \"port\": 22,")

	var got []scanning.OpenPortRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sample, got)

	buf.Reset()
	require.NoError(t, Render(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatCSV, sample))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"port", "banner"},
		{"22", "SSH-2.0-OpenSSH_9.6"},
		{"80", "No Banner"},
		{"8443", "greeting, with comma"},
	}, rows)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTable, sample[:2]))

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "PORT")
	assert.Contains(t, out, "22")
	assert.Contains(t, out, "SSH-2.0-OpenSSH_9.6")
	assert.Contains(t, out, "No Banner")
}

func TestRenderUnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, Format("xml"), sample)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"txt":   FormatTXT,
		"TEXT":  FormatTXT,
		" json": FormatJSON,
		"CSV":   FormatCSV,
		"table": FormatTable,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestFormatFileNameAndContentType(t *testing.T) {
	assert.Equal(t, "scan_report.txt", FormatTXT.FileName())
	assert.Equal(t, "scan_report.json", FormatJSON.FileName())
	assert.Equal(t, "scan_report.csv", FormatCSV.FileName())
	assert.Equal(t, "scan_report_table.txt", FormatTable.FileName())

	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.True(t, strings.HasPrefix(FormatCSV.ContentType(), "text/csv"))
	assert.True(t, strings.HasPrefix(FormatTable.ContentType(), "text/plain"))
}

func TestSaveAllWritesThreeFiles(t *testing.T) {
	dir := t.TempDir()

	paths, err := SaveAll(dir, sample)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "scan_report.txt"),
		filepath.Join(dir, "scan_report.json"),
		filepath.Join(dir, "scan_report.csv"),
	}, paths)

	txt, err := os.ReadFile(filepath.Join(dir, "scan_report.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(txt), "Port 22 OPEN | Banner: SSH-2.0-OpenSSH_9.6\n"))

	raw, err := os.ReadFile(filepath.Join(dir, "scan_report.json"))
	require.NoError(t, err)
	var got []scanning.OpenPortRecord
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, sample, got)
}

func TestSaveRefusesEmptyResults(t *testing.T) {
	dir := t.TempDir()
	rec := &fakeRecorder{}
	s := &Saver{Dir: dir, Formats: DefaultFormats, Metrics: rec}

	paths, err := s.Save(nil)
	require.Error(t, err)
	assert.Nil(t, paths)
	assert.True(t, stderrors.Is(err, ErrNoOpenPorts))
	assert.True(t, errors.IsCode(err, errors.CodeNoResults))
	assert.Empty(t, rec.writes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing written")
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	rec := &fakeRecorder{}
	s := &Saver{Dir: dir, Formats: []Format{FormatCSV, FormatTable}, Metrics: rec}

	paths, err := s.Save(sample)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
	assert.Equal(t, []recordedWrite{{"csv", nil}, {"table", nil}}, rec.writes)
}

func TestSaveWriteFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := &Saver{Dir: blocker, Formats: DefaultFormats}
	_, err := s.Save(sample)
	require.Error(t, err)

	var reportErr *errors.ReportError
	require.ErrorAs(t, err, &reportErr)
	assert.Equal(t, errors.CodeReportWrite, reportErr.Code)
	assert.Equal(t, blocker, reportErr.Path)
}

func TestSaveWriteFailureRecordsMetric(t *testing.T) {
	dir := t.TempDir()
	// A directory in place of the JSON file makes that single write fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "scan_report.json"), 0o750))

	rec := &fakeRecorder{}
	s := &Saver{Dir: dir, Formats: DefaultFormats, Metrics: rec}
	paths, err := s.Save(sample)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeReportWrite))
	assert.Equal(t, []string{filepath.Join(dir, "scan_report.txt")}, paths)

	require.Len(t, rec.writes, 2)
	assert.NoError(t, rec.writes[0].err)
	assert.Equal(t, "json", rec.writes[1].format)
	assert.Error(t, rec.writes[1].err)
}

func TestNewSaver(t *testing.T) {
	s, err := NewSaver("out", []string{"json", "table"})
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatJSON, FormatTable}, s.Formats)
	assert.NotNil(t, s.Metrics)

	s, err = NewSaver("out", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFormats, s.Formats)

	_, err = NewSaver("out", []string{"yaml"})
	assert.Error(t, err)
}
