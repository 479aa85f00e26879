package oauthflow

import (
	"net/url"
	"testing"
)

func TestParseInitQuery(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		redirect string
		wantErr  bool
	}{
		{"login root", "login", "/", false},
		{"register nested path with query", "register", "/users?tab=all", false},
		{"missing method", "", "/", true},
		{"unknown method", "logout", "/", true},
		{"missing redirect", "login", "", true},
		{"relative without slash", "login", "users", true},
		{"absolute url", "login", "https://app.example/users", true},
		{"protocol relative", "login", "//evil.example/", true},
		{"backslash trick", "login", `/\evil.example`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			if tt.method != "" {
				q.Set("method", tt.method)
			}
			if tt.redirect != "" {
				q.Set("redirectUrl", tt.redirect)
			}
			got, err := parseInitQuery(q)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got.method) != tt.method || got.redirectURL != tt.redirect {
				t.Fatalf("unexpected query %+v", got)
			}
		})
	}
}

func TestParseInitQueryReportsEveryProblem(t *testing.T) {
	_, err := parseInitQuery(url.Values{})
	if err == nil {
		t.Fatal("expected error")
	}
	want := `method must be "login" or "register"; redirectUrl must be a relative path`
	if err.Error() != want {
		t.Fatalf("error = %q", err.Error())
	}
}
