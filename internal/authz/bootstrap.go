package authz

import "fmt"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// 核销类操作，operations 与 support 共用
var redemptionPolicies = []Policy{
	{Object: "/admin/purchases/:id/redeem", Action: "POST"},
	{Object: "/admin/purchases/:id/undo-redeem", Action: "POST"},
	{Object: "/admin/redemptions/code", Action: "POST"},
}

// BuiltinRoleSeeds 预置角色矩阵：只读审计、运营、客服、财务
func BuiltinRoleSeeds() []RoleSeed {
	operations := append([]Policy{}, redemptionPolicies...)
	operations = append(operations, Policy{Object: "/admin/statistics/refresh", Action: "POST"})

	return []RoleSeed{
		{
			Role:     "readonly_auditor",
			Policies: []Policy{{Object: "/admin/*", Action: "GET"}},
		},
		{
			Role:     "operations",
			Inherits: []string{"readonly_auditor"},
			Policies: operations,
		},
		{
			Role:     "support",
			Inherits: []string{"readonly_auditor"},
			Policies: append([]Policy{}, redemptionPolicies...),
		},
		{
			Role:     "finance",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{{Object: "/wallet/top-up", Action: "POST"}},
		},
	}
}

// seedRules 将角色矩阵展开为 casbin 分组规则与策略规则
func seedRules(seeds []RoleSeed) (groupings [][]string, policies [][]string, err error) {
	for _, seed := range seeds {
		role, err := NormalizeRole(seed.Role)
		if err != nil {
			return nil, nil, err
		}
		if role == roleAnchor {
			return nil, nil, ErrReservedRole
		}
		groupings = append(groupings, []string{role, roleAnchor})
		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return nil, nil, err
			}
			groupings = append(groupings, []string{role, parentRole})
		}
		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return nil, nil, fmt.Errorf("role %s: %w", role, ErrActionRequired)
			}
			policies = append(policies, []string{role, NormalizeObject(policy.Object), action})
		}
	}
	return groupings, policies, nil
}

// BootstrapBuiltinRoles 写入预置角色与默认策略，已存在的规则跳过
func (s *Service) BootstrapBuiltinRoles() error {
	if err := s.ready(); err != nil {
		return err
	}
	groupings, policies, err := seedRules(BuiltinRoleSeeds())
	if err != nil {
		return err
	}
	for _, rule := range groupings {
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", rule[0], rule[1]); err != nil {
			return fmt.Errorf("add builtin role link %v failed: %w", rule, err)
		}
	}
	for _, rule := range policies {
		if _, err := s.enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return fmt.Errorf("add builtin policy %v failed: %w", rule, err)
		}
	}
	return nil
}
