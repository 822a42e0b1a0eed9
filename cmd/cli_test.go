package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/offline"
)

// isolateCLI points HOME and the working directory at temp dirs and clears
// the ATTENDX_ environment, returning the data directory to pass via --dir.
func isolateCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "ATTENDX_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
	t.Chdir(t.TempDir())
	return t.TempDir()
}

// resetFlags restores every flag to its default between invocations
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command and captures stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestCLIRecordAndQuery(t *testing.T) {
	dir := isolateCLI(t)
	base := []string{"--dir", dir, "--offline"}
	run := func(args ...string) (string, error) {
		return runCLI(t, append(append([]string{}, base...), args...)...)
	}

	out, err := run("init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "INITIALIZED") {
		t.Errorf("init output = %q", out)
	}

	out, err = run("record", "event-1", "user-A", "--qr", "tok-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !strings.Contains(out, "RECORDED att-") || !strings.Contains(out, "Offline") {
		t.Errorf("record output = %q", out)
	}

	out, err = run("record", "event-1", "user-B", "--lat", "40.44", "--lng", "-79.94")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	out, err = run("--json", "pending")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	var records []models.AttendanceRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("pending json: %v\n%s", err, out)
	}
	if len(records) != 2 {
		t.Fatalf("pending = %d records, want 2", len(records))
	}
	methods := map[string]models.Method{}
	for _, r := range records {
		methods[r.UserID] = r.Method
		if r.Synced {
			t.Errorf("record %s synced while offline", r.ID)
		}
	}
	if methods["user-A"] != models.MethodQR || methods["user-B"] != models.MethodGeolocation {
		t.Errorf("inferred methods = %v", methods)
	}

	out, err = run("--json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st models.SyncStatus
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status json: %v\n%s", err, out)
	}
	if !st.Enabled || st.Online || st.PendingRecords != 2 {
		t.Errorf("status = %+v", st)
	}

	out, err = run("record", "event-2", "user-C")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	out, err = run("--json", "pending", "--event", "event-2")
	if err != nil {
		t.Fatalf("pending --event: %v", err)
	}
	var scoped []models.AttendanceRecord
	if err := json.Unmarshal([]byte(out), &scoped); err != nil {
		t.Fatalf("pending --event json: %v\n%s", err, out)
	}
	if len(scoped) != 1 || scoped[0].UserID != "user-C" {
		t.Errorf("pending --event event-2 = %+v, want only user-C", scoped)
	}

	out, err = run("--json", "cleanup")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	var cleaned map[string]int
	if err := json.Unmarshal([]byte(out), &cleaned); err != nil {
		t.Fatalf("cleanup json: %v\n%s", err, out)
	}
	if cleaned["records"] != 0 || cleaned["remaining"] != 3 {
		t.Errorf("cleanup = %v, want nothing removed and 3 remaining", cleaned)
	}

	out, err = run("show", records[0].ID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, records[0].ID) {
		t.Errorf("show output missing id: %q", out)
	}
}

func TestCLIRecordRequiresEventAndUser(t *testing.T) {
	dir := isolateCLI(t)
	_, err := runCLI(t, "--dir", dir, "--offline", "record", "event-1")
	if err == nil {
		t.Fatal("record without a user succeeded")
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		t.Errorf("error not reported to the user: %v", err)
	}
}

func TestCLIRecordStrict(t *testing.T) {
	dir := isolateCLI(t)
	base := []string{"--dir", dir, "--offline"}

	if _, err := runCLI(t, append(base, "cache", "qr", "event-2", "tok-2")...); err != nil {
		t.Fatalf("cache qr: %v", err)
	}

	// Advisory by default
	out, err := runCLI(t, append(base, "record", "event-1", "user-A", "--qr", "tok-2")...)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !strings.Contains(out, "RECORDED") {
		t.Errorf("record output = %q", out)
	}

	// Refused with --strict
	if _, err := runCLI(t, append(base, "record", "event-1", "user-A", "--qr", "tok-2", "--strict")...); err == nil {
		t.Error("strict record with a token for another event succeeded")
	}
}

func TestCLIValidateQR(t *testing.T) {
	dir := isolateCLI(t)
	base := []string{"--dir", dir, "--offline"}

	if _, err := runCLI(t, append(base, "cache", "qr", "event-1", "tok-1", "--expires", "2h")...); err != nil {
		t.Fatalf("cache qr: %v", err)
	}

	out, err := runCLI(t, append(base, "validate-qr", "tok-1")...)
	if err != nil {
		t.Fatalf("validate-qr: %v", err)
	}
	if !strings.Contains(out, "VALID for event-1") {
		t.Errorf("validate-qr output = %q", out)
	}

	_, err = runCLI(t, append(base, "validate-qr", "tok-unknown")...)
	if !errors.Is(err, errValidationFailed) {
		t.Errorf("unknown token error = %v, want errValidationFailed", err)
	}
}

func TestCLIResolveUnknownConflict(t *testing.T) {
	dir := isolateCLI(t)
	base := []string{"--dir", dir, "--offline"}

	_, err := runCLI(t, append(base, "conflicts", "resolve", "att-missing", "--keep")...)
	if !errors.Is(err, offline.ErrConflictNotFound) {
		t.Errorf("error = %v, want ErrConflictNotFound", err)
	}

	_, err = runCLI(t, append(base, "conflicts", "resolve", "att-missing")...)
	if err == nil || !strings.Contains(err.Error(), "--keep or --discard") {
		t.Errorf("error without a resolution flag = %v", err)
	}
}

func TestFailJSON(t *testing.T) {
	jsonOutput = true
	defer func() { jsonOutput = false }()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	err := fail("not_found", errors.New("no such record"))
	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if jerr := json.Unmarshal(buf.Bytes(), &payload); jerr != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), jerr)
	}
	if payload.Error.Code != "not_found" || payload.Error.Message != "no such record" {
		t.Errorf("payload = %+v", payload)
	}
	if err == nil || err.Error() != "no such record" {
		t.Errorf("fail returned %v", err)
	}
}
