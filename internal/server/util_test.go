package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParseAssetID(t *testing.T) {
	valid := []string{
		"8c5e1d7a-0b7f-4e0a-9d2c-5f3a1e2b4c6d",
		"8c5e1d7a0b7f4e0a9d2c5f3a1e2b4c6d",
		" 8C5E1D7A-0B7F-4E0A-9D2C-5F3A1E2B4C6D ",
	}
	for _, s := range valid {
		id, err := parseAssetID(s)
		if err != nil {
			t.Fatalf("expected valid id %q: %v", s, err)
		}
		if id.String() != "8c5e1d7a-0b7f-4e0a-9d2c-5f3a1e2b4c6d" {
			t.Fatalf("parsed %q as %s", s, id)
		}
	}
	for _, s := range []string{"", "1234", "00000000-0000-0000-0000-000000000000", "../etc"} {
		if _, err := parseAssetID(s); err == nil {
			t.Fatalf("expected invalid id %q", s)
		}
	}
}

func TestCleanName(t *testing.T) {
	if got := cleanName("  Eaglefire\n\tRifle "); got != "EaglefireRifle" {
		t.Fatalf("cleanName = %q", got)
	}
	if got := cleanName(strings.Repeat("x", 1000)); len(got) != maxNameLen {
		t.Fatalf("len = %d", len(got))
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}
