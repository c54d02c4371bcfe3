package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/hostbridge/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestForTokenOpensWhenUnset(t *testing.T) {
	testlog.Start(t)

	if err := ForToken("  ").Validate(""); err != nil {
		t.Fatalf("unset token should accept everything, got %v", err)
	}
	v := ForToken("secret")
	if err := v.Validate("nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := v.Validate("secret"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)

	if tok, err := BearerToken("Bearer abc"); err != nil || tok != "abc" {
		t.Fatalf("unexpected parse: %q %v", tok, err)
	}
	if tok, err := BearerToken("bearer  abc "); err != nil || tok != "abc" {
		t.Fatalf("scheme should be case-insensitive: %q %v", tok, err)
	}
	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		if _, err := BearerToken(h); !errors.Is(err, ErrMissingToken) {
			t.Fatalf("header %q: expected ErrMissingToken, got %v", h, err)
		}
	}
}
