package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

func scanFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	flags.StringP("start-port", "s", "1", "")
	flags.StringP("end-port", "e", "1024", "")
	flags.StringP("workers", "w", "100", "")
	flags.StringP("timeout", "t", "1", "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestBuildScanRequest(t *testing.T) {
	defaults := config.Default().Scanning
	defaults.EndPort = 2048

	req, err := buildScanRequest("web.test", scanFlags(t, "-s", "20", "--workers", "6", "--timeout", "0.25"), defaults)
	require.NoError(t, err)
	assert.Equal(t, scanning.ScanRequest{
		Target:         "web.test",
		StartPort:      20,
		EndPort:        2048,
		Workers:        6,
		TimeoutSeconds: 0.25,
	}, req)

	req, err = buildScanRequest("web.test", scanFlags(t), defaults)
	require.NoError(t, err)
	assert.Equal(t, 1, req.StartPort)
	assert.Equal(t, 100, req.Workers)
	assert.Equal(t, 1.0, req.TimeoutSeconds)
}

func TestBuildScanRequestRejectsText(t *testing.T) {
	_, err := buildScanRequest("web.test", scanFlags(t, "--end-port", "high"), config.Default().Scanning)
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "end_port", cfgErr.Field)
}

func TestExecuteScan(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	var out bytes.Buffer

	req := scanning.ScanRequest{Target: "web.test", StartPort: 20, EndPort: 99, Workers: 1, TimeoutSeconds: 1}
	err := executeScan(context.Background(), &out, config.Default(), stubCoordinator(twoOpenPorts{}), req,
		scanOptions{outputDir: dir})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Scanning web.test (203.0.113.7) ports 20-99 with 1 workers")
	assert.Contains(t, text, "OS guess: Linux/Unix\n")
	assert.Contains(t, text, "Port 22 OPEN | Banner: SSH-2.0-OpenSSH_9.6\n")
	assert.Contains(t, text, "Port 80 OPEN | Banner: No Banner\n")
	assert.Contains(t, text, "Progress: 80/80 (100%)")
	assert.Contains(t, text, "Scan completed: 80/80 ports probed, 2 open, OS guess: Linux/Unix")
	assert.Contains(t, text, "SSH-2.0-OpenSSH_9.6")
	assert.Contains(t, text, "Saved "+filepath.Join(dir, "scan_report.csv"))

	txt, err := os.ReadFile(filepath.Join(dir, "scan_report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Port 22 OPEN | Banner: SSH-2.0-OpenSSH_9.6\nPort 80 OPEN | Banner: No Banner\n", string(txt))
	assert.FileExists(t, filepath.Join(dir, "scan_report.json"))
}

func TestExecuteScanQuiet(t *testing.T) {
	var out bytes.Buffer
	req := scanning.ScanRequest{Target: "web.test", StartPort: 1, EndPort: 10, Workers: 2, TimeoutSeconds: 1}

	err := executeScan(context.Background(), &out, config.Default(), stubCoordinator(twoOpenPorts{}), req,
		scanOptions{quiet: true})
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "Progress:")
	assert.Contains(t, out.String(), "No open ports found!")
}

func TestExecuteScanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	req := scanning.ScanRequest{Target: "web.test", StartPort: 1, EndPort: 10, Workers: 1, TimeoutSeconds: 1}
	err := executeScan(ctx, &out, config.Default(), stubCoordinator(cancelingProber{cancel: cancel}), req,
		scanOptions{outputDir: t.TempDir()})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Scan canceled\n")
	assert.Contains(t, text, "Scan canceled: 1/10 ports probed, 0 open")
	assert.Contains(t, text, "Nothing to save.")
}

func TestExecuteScanValidation(t *testing.T) {
	coordinator := stubCoordinator(twoOpenPorts{})

	err := executeScan(context.Background(), &bytes.Buffer{}, config.Default(), coordinator,
		scanning.ScanRequest{Target: "web.test", StartPort: 30, EndPort: 20, Workers: 1, TimeoutSeconds: 1},
		scanOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Nil(t, coordinator.Current())

	err = executeScan(context.Background(), &bytes.Buffer{}, config.Default(), coordinator,
		scanning.ScanRequest{Target: "web.test", StartPort: 1, EndPort: 2, Workers: 1, TimeoutSeconds: 1},
		scanOptions{saveDB: true})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseDisabled))
	assert.Nil(t, coordinator.Current())
}

func TestScanCommand(t *testing.T) {
	resetViper(t, "")
	useStubCoordinator(t, twoOpenPorts{})
	dir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"scan", "web.test", "-s", "20", "-e", "25", "-w", "3", "-o", dir, "-q"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Scan completed: 6/6 ports probed, 1 open")
	assert.FileExists(t, filepath.Join(dir, "scan_report.csv"))
}

func TestSaveReportsWithoutFormatsWritesStandardSet(t *testing.T) {
	dir := t.TempDir()
	records := []scanning.OpenPortRecord{{Port: 22, Banner: "SSH-2.0-OpenSSH_9.6"}}

	var out bytes.Buffer
	require.NoError(t, saveReports(&out, dir, nil, records))

	for _, name := range []string{"scan_report.txt", "scan_report.json", "scan_report.csv"} {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.Contains(t, out.String(), "Saved "+filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "scan_report_table.txt"))

	txt, err := os.ReadFile(filepath.Join(dir, "scan_report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Port 22 OPEN | Banner: SSH-2.0-OpenSSH_9.6\n", string(txt))
}

func TestSaveReportsConfiguredFormats(t *testing.T) {
	dir := t.TempDir()
	records := []scanning.OpenPortRecord{{Port: 80, Banner: scanning.NoBanner}}

	var out bytes.Buffer
	require.NoError(t, saveReports(&out, dir, []string{"table"}, records))
	assert.FileExists(t, filepath.Join(dir, "scan_report_table.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "scan_report.txt"))

	out.Reset()
	require.NoError(t, saveReports(&out, dir, nil, nil))
	assert.Equal(t, "Nothing to save.\n", out.String())
}
