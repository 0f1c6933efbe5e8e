package doctor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tailnym/internal/model"
	"tailnym/internal/store"
)

func TestRunIncludesDuplicateTargetIssue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "pseudonyms.json")
	t.Setenv(store.EnvConfigPath, path)

	s := store.New(path)
	if err := s.Save(model.Table{
		"box1": {Username: "ubuntu", IP: "100.1.1.1", Port: 22},
		"box2": {Username: "root", IP: "100.1.1.1", Port: 22},
	}); err != nil {
		t.Fatal(err)
	}

	report, err := Run()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Check == "duplicate-target" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected duplicate-target issue, got %+v", report.Issues)
	}
}

func TestRunFlagsUnreadableTable(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "pseudonyms.json")
	t.Setenv(store.EnvConfigPath, path)
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	report, err := Run()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Check == "table-unreadable" && issue.Severity == SeverityHigh {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected table-unreadable issue, got %+v", report.Issues)
	}
}

func TestRunJSONShape(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(store.EnvConfigPath, filepath.Join(t.TempDir(), "pseudonyms.json"))

	report, err := Run()
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["issues"]; !ok {
		t.Fatalf("expected issues key in json output: %s", string(b))
	}
}
