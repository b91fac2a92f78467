package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	tok, exp, err := Issue("V1", "volunteer", "admission-engine", "key", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry must be in the future")
	}

	claims, err := Parse(tok, "key", "admission-engine")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "V1" || claims.Role != "volunteer" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParse_Rejections(t *testing.T) {
	tok, _, err := Issue("V1", "volunteer", "admission-engine", "key", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := Parse(tok, "wrong-key", "admission-engine"); err == nil {
		t.Fatalf("want error on wrong key")
	}
	if _, err := Parse(tok, "key", "someone-else"); err == nil {
		t.Fatalf("want error on issuer mismatch")
	}
	if _, err := Parse("garbage", "key", "admission-engine"); err == nil {
		t.Fatalf("want error on malformed token")
	}
}
