package hydrate

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type zipRecord struct {
	ID         json.Number `json:"id"`
	Code       string      `json:"code"`
	LocalityID json.Number `json:"locality_id"`
	Locality   string      `json:"locality"`
}

func TestDecoderHooks(t *testing.T) {
	flattenLocality := func(_ Context, record map[string]any) (map[string]any, error) {
		nested, ok := record["locality"].(map[string]any)
		if !ok {
			return record, nil
		}
		record["locality"] = nested["name"]
		return record, nil
	}
	requireCode := func(ctx Context, rec *zipRecord) error {
		if rec.Code == "" {
			return errors.New("code is required")
		}
		return nil
	}

	decoder := NewDecoder[zipRecord](
		WithUseNumber[zipRecord](),
		WithPreHook[zipRecord](flattenLocality),
		WithPostHook[zipRecord](requireCode),
	)

	body := []byte(`{"data":[
		{"id": 9001, "code": "5800", "locality_id": 201, "locality": {"id": 201, "name": "Río Cuarto"}},
		{"id": 9002, "code": "5900", "locality_id": 202}
	]}`)
	records, err := Records(body)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	got, err := decoder.DecodeAll("zip-codes", records)
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	want := []zipRecord{
		{ID: "9001", Code: "5800", LocalityID: "201", Locality: "Río Cuarto"},
		{ID: "9002", Code: "5900", LocalityID: "202"},
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("decoded mismatch:\nwant: %#v\n got: %#v", want, got)
	}
	if _, ok := records[0]["locality"].(map[string]any); !ok {
		t.Fatalf("pre-hook leaked into caller record: %#v", records[0]["locality"])
	}

	_, err = decoder.DecodeAll("zip-codes", []map[string]any{records[0], {"id": json.Number("1")}})
	if err == nil || !strings.Contains(err.Error(), "zip-codes[1]: post-hook failed: code is required") {
		t.Fatalf("expected post-hook error with coordinates, got %v", err)
	}
}

func TestDecoderCustomAndErrors(t *testing.T) {
	custom := NewDecoder[string](WithCustomDecoder[string](func(ctx Context, record map[string]any) (string, error) {
		name, ok := record["name"].(string)
		if !ok {
			return "", errors.New("missing name")
		}
		return strings.ToUpper(name), nil
	}))
	out, err := custom.Decode(Context{Resource: "countries"}, map[string]any{"name": "chile"})
	if err != nil || out != "CHILE" {
		t.Fatalf("custom decode: got %q err=%v", out, err)
	}
	if _, err := custom.Decode(Context{Resource: "countries", Index: 3}, map[string]any{}); err == nil || !strings.Contains(err.Error(), "countries[3]") {
		t.Fatalf("expected custom decoder error, got %v", err)
	}
	if _, err := custom.Decode(Context{Resource: "countries"}, nil); err == nil {
		t.Fatalf("expected nil record error")
	}

	failing := NewDecoder[zipRecord](WithPreHook[zipRecord](func(Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	}))
	if _, err := failing.Decode(Context{Resource: "zip-codes"}, map[string]any{}); err == nil || !strings.Contains(err.Error(), "pre-hook failed: boom") {
		t.Fatalf("expected pre-hook error, got %v", err)
	}
}

func TestRecords(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    int
		wantErr string
	}{
		{name: "envelope", body: `{"data":[{"id":1},{"id":2}]}`, want: 2},
		{name: "bare array", body: ` [{"id":1}] `, want: 1},
		{name: "null data", body: `{"data":null}`, want: 0},
		{name: "empty", body: "  ", wantErr: "empty response body"},
		{name: "no data field", body: `{"items":[]}`, wantErr: "no data field"},
		{name: "scalar item", body: `[1]`, wantErr: "item 0: expected object"},
		{name: "not array", body: `{"data":{"id":1}}`, wantErr: "expected array"},
		{name: "invalid json", body: `{`, wantErr: "decode response"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			records, err := Records([]byte(tc.body))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != tc.want {
				t.Fatalf("expected %d records, got %d", tc.want, len(records))
			}
		})
	}

	records, err := Records([]byte(`[{"id": 12345678901234567}]`))
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if id, ok := Scalar(records[0]["id"]); !ok || id != "12345678901234567" {
		t.Fatalf("expected large id preserved, got %q ok=%v", id, ok)
	}
}

func TestScalar(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{in: "AR", want: "AR", ok: true},
		{in: json.Number("13"), want: "13", ok: true},
		{in: json.Number("1.5"), ok: false},
		{in: float64(250), want: "250", ok: true},
		{in: 2.5, ok: false},
		{in: 7, want: "7", ok: true},
		{in: int64(-3), want: "-3", ok: true},
		{in: true, ok: false},
		{in: nil, ok: false},
		{in: map[string]any{"id": 1}, ok: false},
	}
	for _, tc := range cases {
		got, ok := Scalar(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Scalar(%#v) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPlain(t *testing.T) {
	in := map[string]any{
		"disabled": json.Number("0"),
		"ratio":    json.Number("0.5"),
		"locality": map[string]any{"id": json.Number("201")},
		"tags":     []any{json.Number("1"), "x"},
	}
	want := map[string]any{
		"disabled": int64(0),
		"ratio":    0.5,
		"locality": map[string]any{"id": int64(201)},
		"tags":     []any{int64(1), "x"},
	}
	if got := Plain(in); !reflect.DeepEqual(want, got) {
		t.Fatalf("plain mismatch:\nwant: %#v\n got: %#v", want, got)
	}
}
