package authz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestEnforceAdminWithRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/purchases/:id", "GET"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}
	if err := svc.SetAdminRoles(1, []string{"ops"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}

	allow, err := svc.EnforceAdmin(1, "/api/v1/admin/purchases/42", "get")
	if err != nil {
		t.Fatalf("enforce allow failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected allow=true")
	}

	allow, err = svc.EnforceAdmin(1, "/api/v1/admin/purchases/42", "POST")
	if err != nil {
		t.Fatalf("enforce deny failed: %v", err)
	}
	if allow {
		t.Fatalf("expected allow=false")
	}
}

func TestSetAdminRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/purchases", "GET"); err != nil {
		t.Fatalf("grant ops policy failed: %v", err)
	}
	if err := svc.GrantRolePolicy("finance", "/wallet/top-up", "POST"); err != nil {
		t.Fatalf("grant finance policy failed: %v", err)
	}

	if err := svc.SetAdminRoles(2, []string{"ops"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	roles, err := svc.GetAdminRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:ops" {
		t.Fatalf("roles want [role:ops], got=%v", roles)
	}

	if err := svc.SetAdminRoles(2, []string{"finance"}); err != nil {
		t.Fatalf("set second role failed: %v", err)
	}
	roles, err = svc.GetAdminRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:finance" {
		t.Fatalf("roles want [role:finance], got=%v", roles)
	}

	allow, err := svc.EnforceAdmin(2, "/admin/purchases", "GET")
	if err != nil {
		t.Fatalf("enforce old role failed: %v", err)
	}
	if allow {
		t.Fatalf("expected old role permission removed")
	}

	allow, err = svc.EnforceAdmin(2, "/api/v1/wallet/top-up", "POST")
	if err != nil {
		t.Fatalf("enforce new role failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected new role permission granted")
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/purchases/:id/redeem", want: "/admin/purchases/:id/redeem"},
		{in: "/admin/purchases/:id", want: "/admin/purchases/:id"},
		{in: "admin/purchases", want: "/admin/purchases"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		got := NormalizeObject(item.in)
		if got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestBootstrapBuiltinRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}

	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	wantRoles := map[string]bool{
		"role:readonly_auditor": true,
		"role:operations":       true,
		"role:support":          true,
		"role:finance":          true,
	}
	for _, role := range roles {
		delete(wantRoles, role)
	}
	if len(wantRoles) != 0 {
		t.Fatalf("builtin roles missing: %v", wantRoles)
	}

	if err := svc.SetAdminRoles(3, []string{"operations"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}

	allow, err := svc.EnforceAdmin(3, "/api/v1/admin/statistics/leaderboard", "GET")
	if err != nil {
		t.Fatalf("enforce inherited readonly failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected inherited readonly permission")
	}

	allow, err = svc.EnforceAdmin(3, "/api/v1/wallet/top-up", "POST")
	if err != nil {
		t.Fatalf("enforce readonly write failed: %v", err)
	}
	if allow {
		t.Fatalf("expected operations role deny wallet top-up")
	}
}

func TestBuiltinRolesRedemptionMatrix(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	assign := map[uint]string{10: "readonly_auditor", 11: "operations", 12: "support", 13: "finance"}
	for adminID, role := range assign {
		if err := svc.SetAdminRoles(adminID, []string{role}); err != nil {
			t.Fatalf("set admin %d roles failed: %v", adminID, err)
		}
	}

	cases := []struct {
		adminID uint
		object  string
		action  string
		want    bool
	}{
		{adminID: 10, object: "/api/v1/admin/purchases/:id/audit", action: "GET", want: true},
		{adminID: 10, object: "/api/v1/admin/purchases/:id/redeem", action: "POST", want: false},
		{adminID: 11, object: "/api/v1/admin/purchases/:id/undo-redeem", action: "POST", want: true},
		{adminID: 11, object: "/api/v1/admin/statistics/refresh", action: "POST", want: true},
		{adminID: 12, object: "/api/v1/admin/redemptions/code", action: "POST", want: true},
		{adminID: 12, object: "/api/v1/admin/statistics/refresh", action: "POST", want: false},
		{adminID: 13, object: "/api/v1/wallet/top-up", action: "POST", want: true},
		{adminID: 13, object: "/api/v1/admin/purchases/:id/redeem", action: "POST", want: false},
	}
	for _, item := range cases {
		allow, err := svc.EnforceAdmin(item.adminID, item.object, item.action)
		if err != nil {
			t.Fatalf("enforce admin=%d %s %s failed: %v", item.adminID, item.action, item.object, err)
		}
		if allow != item.want {
			t.Fatalf("admin=%d %s %s want %v got %v", item.adminID, item.action, item.object, item.want, allow)
		}
	}
}

func TestAuthorizeSuperAndMissingAdmin(t *testing.T) {
	svc := setupAuthzServiceTest(t)

	decision, err := svc.Authorize(AdminRequest{IsSuper: true, Path: "/api/v1/wallet/top-up", Method: "post"})
	if err != nil {
		t.Fatalf("authorize super failed: %v", err)
	}
	if !decision.Allowed || decision.Object != "/wallet/top-up" || decision.Action != "POST" {
		t.Fatalf("unexpected super decision: %+v", decision)
	}

	if _, err := svc.Authorize(AdminRequest{Path: "/api/v1/admin/purchases", Method: "GET"}); !errors.Is(err, ErrAdminIDRequired) {
		t.Fatalf("missing admin id want ErrAdminIDRequired got %v", err)
	}

	var nilSvc *Service
	if _, err := nilSvc.Authorize(AdminRequest{AdminID: 1, Path: "/admin/purchases", Method: "GET"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("nil service want ErrUnavailable got %v", err)
	}
}

func TestGetAdminPoliciesIncludesInherited(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.SetAdminRoles(21, []string{"finance"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}

	policies, err := svc.GetAdminPolicies(21)
	if err != nil {
		t.Fatalf("get admin policies failed: %v", err)
	}
	want := map[Policy]bool{
		{Subject: "role:finance", Object: "/wallet/top-up", Action: "POST"}:  false,
		{Subject: "role:readonly_auditor", Object: "/admin/*", Action: "GET"}: false,
	}
	for _, item := range policies {
		if _, ok := want[item]; ok {
			want[item] = true
		}
	}
	for item, seen := range want {
		if !seen {
			t.Fatalf("policy missing: %+v (got %+v)", item, policies)
		}
	}
}

func TestSeedRulesRejectsEmptyAction(t *testing.T) {
	_, _, err := seedRules([]RoleSeed{{Role: "broken", Policies: []Policy{{Object: "/admin/x", Action: " "}}}})
	if !errors.Is(err, ErrActionRequired) {
		t.Fatalf("want ErrActionRequired got %v", err)
	}

	groupings, policies, err := seedRules(BuiltinRoleSeeds())
	if err != nil {
		t.Fatalf("seed builtin rules failed: %v", err)
	}
	if len(groupings) != 7 || len(policies) != 9 {
		t.Fatalf("builtin rules want 7 groupings and 9 policies, got %d and %d", len(groupings), len(policies))
	}
}
