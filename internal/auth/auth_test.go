package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("user-1", "Ada", RoleOperator)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if claims.Sub != "user-1" || claims.Name != "Ada" || claims.Role != RoleOperator {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestIssueGeneratesSubWhenEmpty(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("", "Anon", RoleViewer)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if claims.Sub == "" {
		t.Fatal("expected a generated sub, got empty string")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("secret-a", time.Hour)
	other := NewIssuer("secret-b", time.Hour)

	token, err := issuer.Issue("user-1", "Ada", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := other.Validate(token); err == nil {
		t.Fatal("expected validation to fail with a different secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret", -time.Hour)

	token, err := issuer.Issue("user-1", "Ada", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := issuer.Validate(token); err == nil {
		t.Fatal("expected validation to fail for an expired token")
	}
}

func TestRoleOrdering(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleOperator) {
		t.Fatal("Admin should outrank Operator")
	}
	if !RoleOperator.AtLeast(RoleOperator) {
		t.Fatal("role should be at least itself")
	}
	if RoleViewer.AtLeast(RoleOperator) {
		t.Fatal("Viewer should not outrank Operator")
	}
	if !RoleOperator.CanOperate() || !RoleAdmin.CanOperate() {
		t.Fatal("Operator and Admin should both be able to operate")
	}
	if RoleViewer.CanOperate() {
		t.Fatal("Viewer should not be able to operate")
	}
}
