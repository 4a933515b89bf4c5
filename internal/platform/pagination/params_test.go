package pagination

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
	if !reflect.DeepEqual(params.Cursor, Cursor{}) {
		t.Fatalf("expected zero cursor, got %#v", params.Cursor)
	}
}

func TestParsePageSizeClampsToMax(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}

	values := url.Values{}
	values.Set("pageSize", "30")
	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30, got %d", params.PageSize)
	}

	values.Set("pageSize", "500")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 40 {
		t.Fatalf("expected page size clamped to 40, got %d", params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-5"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"ord_01HZX", "2025-05-01T12:00:00Z"}}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	values := url.Values{}
	values.Set("pageToken", token)
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(params.Cursor.StartAfter) != 2 {
		t.Fatalf("unexpected cursor %#v", params.Cursor)
	}
}

func TestParseInvalidPageToken(t *testing.T) {
	values := url.Values{}
	values.Set("pageToken", "%%%not-base64%%%")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", token)
	}
}
