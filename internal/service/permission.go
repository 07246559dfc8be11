package service

import (
	"context"
	"strings"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
)

// RoleAdmin 管理员在任意团队上的虚拟角色
const RoleAdmin = "admin"

// PermissionResolver 根据主体与团队角色推导任务权限
type PermissionResolver interface {
	// AllowedTeamIDs 管理员返回 nil（不受限）, 其他主体返回其所属团队集合
	AllowedTeamIDs(ctx context.Context, p *auth.Principal) (*model.TeamSet, error)
	// TeamRole 主体在团队上的角色, 无成员关系时返回空字符串
	TeamRole(ctx context.Context, p *auth.Principal, teamID *uint) (string, error)
	CanView(ctx context.Context, p *auth.Principal, task *model.TaskModel) (bool, error)
	CanManage(ctx context.Context, p *auth.Principal, task *model.TaskModel) (bool, error)
	CanInteract(ctx context.Context, p *auth.Principal, task *model.TaskModel) (bool, error)
}

// AssigneeMatcher 判断主体是否出现在任务负责人中
type AssigneeMatcher func(p *auth.Principal, assignedTo string) bool

// MatchAssigneeSubstring 姓名或邮箱（不区分大小写）是 assigned_to 的子串即匹配
func MatchAssigneeSubstring(p *auth.Principal, assignedTo string) bool {
	assigned := strings.ToLower(assignedTo)
	if assigned == "" || p == nil {
		return false
	}
	if email := strings.ToLower(strings.TrimSpace(p.Email)); email != "" && strings.Contains(assigned, email) {
		return true
	}
	if name := strings.ToLower(strings.TrimSpace(p.Name)); name != "" && strings.Contains(assigned, name) {
		return true
	}
	return false
}

type permissionResolver struct {
	memberships repository.MembershipRepository
	cache       *auth.RoleCache
	matchAssign AssigneeMatcher
}

// NewPermissionResolver 创建权限解析器, cache 可为 nil
func NewPermissionResolver(memberships repository.MembershipRepository, cache *auth.RoleCache, matcher AssigneeMatcher) PermissionResolver {
	if matcher == nil {
		matcher = MatchAssigneeSubstring
	}
	return &permissionResolver{
		memberships: memberships,
		cache:       cache,
		matchAssign: matcher,
	}
}

func (r *permissionResolver) roles(ctx context.Context, p *auth.Principal) (map[uint]string, error) {
	if roles, ok := r.cache.Get(p.ID); ok {
		return roles, nil
	}
	list, err := r.memberships.FindByUser(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	roles := make(map[uint]string, len(list))
	for _, m := range list {
		roles[m.TeamID] = m.Role
	}
	r.cache.Set(p.ID, roles)
	return roles, nil
}

func (r *permissionResolver) AllowedTeamIDs(ctx context.Context, p *auth.Principal) (*model.TeamSet, error) {
	if p == nil {
		return model.NewTeamSet(), nil
	}
	if p.IsAdmin {
		return nil, nil
	}
	roles, err := r.roles(ctx, p)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	return model.NewTeamSet(ids...), nil
}

func (r *permissionResolver) TeamRole(ctx context.Context, p *auth.Principal, teamID *uint) (string, error) {
	if p == nil {
		return "", nil
	}
	if p.IsAdmin {
		return RoleAdmin, nil
	}
	if teamID == nil {
		return "", nil
	}
	roles, err := r.roles(ctx, p)
	if err != nil {
		return "", err
	}
	return roles[*teamID], nil
}

func (r *permissionResolver) CanView(ctx context.Context, p *auth.Principal, task *model.TaskModel) (bool, error) {
	allowed, err := r.AllowedTeamIDs(ctx, p)
	if err != nil {
		return false, err
	}
	return allowed.ContainsRef(task.TeamID), nil
}

func (r *permissionResolver) CanManage(ctx context.Context, p *auth.Principal, task *model.TaskModel) (bool, error) {
	role, err := r.TeamRole(ctx, p, task.TeamID)
	if err != nil {
		return false, err
	}
	return canManageRole(role), nil
}

func (r *permissionResolver) CanInteract(ctx context.Context, p *auth.Principal, task *model.TaskModel) (bool, error) {
	role, err := r.TeamRole(ctx, p, task.TeamID)
	if err != nil {
		return false, err
	}
	if canManageRole(role) {
		return true, nil
	}
	if role == model.RoleColaborador {
		return r.matchAssign(p, task.AssignedTo), nil
	}
	return false, nil
}

func canManageRole(role string) bool {
	return role == RoleAdmin || role == model.RoleGerente || role == model.RoleAdminWorkspace
}
