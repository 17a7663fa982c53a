package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cascade "github.com/goliatone/go-cascade"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fixture() string {
	return filepath.Join("testdata", "geo.json")
}

func TestWalkCommitsPath(t *testing.T) {
	out, err := run(t, "walk", "--fixture", fixture(), "--format", "json", "Argentina", "cordoba", "Rio Cuarto", "5800")
	if err != nil {
		t.Fatalf("walk: %v\n%s", err, out)
	}
	var result walkResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(result.Steps) != 4 || result.Steps[2].Selected.DisplayName != "Río Cuarto" {
		t.Fatalf("unexpected steps %+v", result.Steps)
	}
	want := map[string]string{"country": "13", "province": "2", "city": "201", "postal_code": "9002"}
	for key, id := range want {
		if result.Filter[key] != id {
			t.Fatalf("filter[%s] = %q, want %q (%v)", key, result.Filter[key], id, result.Filter)
		}
	}
}

func TestWalkReportsMissingMatch(t *testing.T) {
	_, err := run(t, "walk", "--fixture", fixture(), "Argentina", "Santiago")
	if err == nil || !strings.Contains(err.Error(), `state "Santiago": no match`) {
		t.Fatalf("expected no match error, got %v", err)
	}
}

func TestLookupWithParent(t *testing.T) {
	out, err := run(t, "lookup", "--fixture", fixture(), "--parent", "13", "state")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !strings.Contains(out, "Buenos Aires") || !strings.Contains(out, "Córdoba") || strings.Contains(out, "Santiago") {
		t.Fatalf("unexpected lookup output:\n%s", out)
	}

	if _, err := run(t, "lookup", "--fixture", fixture(), "planet"); !errors.Is(err, cascade.ErrUnknownLevel) {
		t.Fatalf("expected unknown level, got %v", err)
	}
}

func TestZipDirectSearch(t *testing.T) {
	out, err := run(t, "zip", "--fixture", fixture(), "--format", "json", "1900")
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	var entities []cascade.Entity
	if err := json.Unmarshal([]byte(out), &entities); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(entities) != 1 || entities[0].ID != "9001" {
		t.Fatalf("unexpected zip codes %+v", entities)
	}
}

func TestEnvironmentSelectsFixture(t *testing.T) {
	t.Setenv("CASCADE_FIXTURE", fixture())
	t.Setenv("CASCADE_FORMAT", "json")
	out, err := run(t, "lookup", "country", "chi")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !strings.Contains(out, `"display_name": "Chile"`) {
		t.Fatalf("expected Chile in json output:\n%s", out)
	}
}

func TestRequiresDataSource(t *testing.T) {
	for _, key := range []string{"CASCADE_FIXTURE", "CASCADE_BASE_URL", "CASCADE_CONFIG"} {
		if _, ok := os.LookupEnv(key); ok {
			t.Skipf("%s set in environment", key)
		}
	}
	if _, err := run(t, "lookup", "country"); err == nil || !strings.Contains(err.Error(), "no data source") {
		t.Fatalf("expected data source error, got %v", err)
	}
	if _, err := run(t, "lookup", "--fixture", fixture(), "--format", "xml", "country"); err == nil {
		t.Fatalf("expected format error")
	}
}
