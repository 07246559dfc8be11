package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsService 管理员配置: 阶段、规则和组织结构
type SettingsService interface {
	ListStages(ctx context.Context, p *auth.Principal) ([]*model.StageModel, error)
	CreateStage(ctx context.Context, p *auth.Principal, req *CreateStageRequest) (*model.StageModel, error)
	ToggleStage(ctx context.Context, p *auth.Principal, id uint) (*model.StageModel, error)
	DeleteStage(ctx context.Context, p *auth.Principal, id uint) error

	ListAutomations(ctx context.Context, p *auth.Principal) ([]*model.AutomationRuleModel, error)
	CreateAutomation(ctx context.Context, p *auth.Principal, req *CreateAutomationRequest) (*model.AutomationRuleModel, error)
	ToggleAutomation(ctx context.Context, p *auth.Principal, id uint) (*model.AutomationRuleModel, error)

	ListRecurrences(ctx context.Context, p *auth.Principal) ([]*model.RecurrenceRuleModel, error)
	CreateRecurrence(ctx context.Context, p *auth.Principal, req *CreateRecurrenceRequest) (*model.RecurrenceRuleModel, error)
	ToggleRecurrence(ctx context.Context, p *auth.Principal, id uint) (*model.RecurrenceRuleModel, error)
	RunRecurrencesNow(ctx context.Context, p *auth.Principal) (*RecurrenceRunResult, error)

	ListWorkspaces(ctx context.Context, p *auth.Principal) ([]*model.WorkspaceModel, error)
	CreateWorkspace(ctx context.Context, p *auth.Principal, name string) (*model.WorkspaceModel, error)
	RenameWorkspace(ctx context.Context, p *auth.Principal, id uint, name string) (*model.WorkspaceModel, error)
	ToggleWorkspace(ctx context.Context, p *auth.Principal, id uint) (*model.WorkspaceModel, error)

	ListTeams(ctx context.Context, p *auth.Principal) ([]*model.TeamModel, error)
	CreateTeam(ctx context.Context, p *auth.Principal, workspaceID uint, name string) (*model.TeamModel, error)
	ToggleTeam(ctx context.Context, p *auth.Principal, id uint) (*model.TeamModel, error)

	ListMemberships(ctx context.Context, p *auth.Principal, teamID uint) ([]*model.TeamMembershipModel, error)
	AddMembership(ctx context.Context, p *auth.Principal, req *AddMembershipRequest) (*model.TeamMembershipModel, error)
	RemoveMembership(ctx context.Context, p *auth.Principal, teamID, userID uint) error
}

// CreateStageRequest 创建阶段请求
type CreateStageRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// CreateAutomationRequest 创建自动化规则请求
type CreateAutomationRequest struct {
	Name             string `json:"name"`
	WorkspaceID      *uint  `json:"workspace_id"`
	TeamID           *uint  `json:"team_id"`
	TriggerFromStage *uint  `json:"trigger_from_stage"`
	TriggerToStage   *uint  `json:"trigger_to_stage"`
	Action           string `json:"action"`
	MessageTemplate  string `json:"message_template"`
}

// CreateRecurrenceRequest 创建循环规则请求
type CreateRecurrenceRequest struct {
	Name         string `json:"name"`
	SourceTaskID uint   `json:"source_task_id"`
	Frequency    string `json:"frequency"`
	Interval     int    `json:"interval"`
}

// AddMembershipRequest 添加团队成员请求
type AddMembershipRequest struct {
	TeamID uint   `json:"team_id"`
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

type settingsService struct {
	db          *gorm.DB
	recurrences RecurrenceService
	roleCache   *auth.RoleCache
	audit       AuditLogService
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewSettingsService 创建配置服务, roleCache 和 audit 可为 nil
func NewSettingsService(db *gorm.DB, recurrences RecurrenceService, roleCache *auth.RoleCache, audit AuditLogService, logger logrus.FieldLogger) SettingsService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &settingsService{
		db:          db,
		recurrences: recurrences,
		roleCache:   roleCache,
		audit:       audit,
		logger:      logger,
		now:         utcNow,
	}
}

func requireAdmin(p *auth.Principal) error {
	if p == nil || !p.IsAdmin {
		return permissionError("administrator required")
	}
	return nil
}

// translate 把仓储错误转换为服务错误
func translate(err error, what string, id interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFoundError("%s %v not found", what, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return validationError("%s %v already exists", what, id)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return referentialError("%s %v is still referenced", what, id)
	default:
		return fmt.Errorf("%s %v: %w", what, id, err)
	}
}

func (s *settingsService) record(ctx context.Context, p *auth.Principal, action, resourceType string, id uint, details interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAction(ctx, p.Actor(), action, resourceType, strconv.FormatUint(uint64(id), 10), details); err != nil {
		s.logger.WithError(err).WithField("resource_type", resourceType).Warn("failed to record audit log")
	}
}

func (s *settingsService) ListStages(ctx context.Context, p *auth.Principal) ([]*model.StageModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return repository.NewStageRepository(s.db).FindAll(ctx, false)
}

func (s *settingsService) CreateStage(ctx context.Context, p *auth.Principal, req *CreateStageRequest) (*model.StageModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	stage := &model.StageModel{
		Name:      strings.TrimSpace(req.Name),
		SortOrder: req.SortOrder,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := stage.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if err := repository.NewStageRepository(s.db).Create(ctx, stage); err != nil {
		return nil, translate(err, "stage", stage.Name)
	}
	s.record(ctx, p, "create", "stage", stage.ID, stage)
	return stage, nil
}

func (s *settingsService) ToggleStage(ctx context.Context, p *auth.Principal, id uint) (*model.StageModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	repo := repository.NewStageRepository(s.db)
	stage, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "stage", id)
	}
	if err := repo.SetActive(ctx, id, !stage.Active); err != nil {
		return nil, translate(err, "stage", id)
	}
	stage.Active = !stage.Active
	s.record(ctx, p, "toggle", "stage", id, map[string]bool{"active": stage.Active})
	return stage, nil
}

func (s *settingsService) DeleteStage(ctx context.Context, p *auth.Principal, id uint) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewStageRepository(tx)
		n, err := repo.CountTasks(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return referentialError("stage %d is referenced by %d task(s)", id, n)
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		if IsReferentialIntegrity(err) {
			return err
		}
		return translate(err, "stage", id)
	}
	s.record(ctx, p, "delete", "stage", id, nil)
	return nil
}

func (s *settingsService) ListAutomations(ctx context.Context, p *auth.Principal) ([]*model.AutomationRuleModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return repository.NewAutomationRuleRepository(s.db).FindAll(ctx)
}

func (s *settingsService) CreateAutomation(ctx context.Context, p *auth.Principal, req *CreateAutomationRequest) (*model.AutomationRuleModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	action := strings.TrimSpace(req.Action)
	if action == "" {
		action = model.ActionComment
	}
	rule := &model.AutomationRuleModel{
		Name:             strings.TrimSpace(req.Name),
		WorkspaceID:      req.WorkspaceID,
		TeamID:           req.TeamID,
		TriggerFromStage: req.TriggerFromStage,
		TriggerToStage:   req.TriggerToStage,
		Action:           action,
		MessageTemplate:  strings.TrimSpace(req.MessageTemplate),
		Active:           true,
		CreatedAt:        s.now(),
	}
	if err := rule.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if err := repository.NewAutomationRuleRepository(s.db).Create(ctx, rule); err != nil {
		return nil, translate(err, "automation rule", rule.Name)
	}
	s.record(ctx, p, "create", "automation_rule", rule.ID, rule)
	return rule, nil
}

func (s *settingsService) ToggleAutomation(ctx context.Context, p *auth.Principal, id uint) (*model.AutomationRuleModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	repo := repository.NewAutomationRuleRepository(s.db)
	rule, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "automation rule", id)
	}
	if err := repo.SetActive(ctx, id, !rule.Active); err != nil {
		return nil, translate(err, "automation rule", id)
	}
	rule.Active = !rule.Active
	s.record(ctx, p, "toggle", "automation_rule", id, map[string]bool{"active": rule.Active})
	return rule, nil
}

func (s *settingsService) ListRecurrences(ctx context.Context, p *auth.Principal) ([]*model.RecurrenceRuleModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return repository.NewRecurrenceRuleRepository(s.db).FindAll(ctx)
}

func (s *settingsService) CreateRecurrence(ctx context.Context, p *auth.Principal, req *CreateRecurrenceRequest) (*model.RecurrenceRuleModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	frequency := strings.TrimSpace(req.Frequency)
	if frequency == "" {
		frequency = model.FrequencyWeekly
	}
	interval := req.Interval
	if interval < 1 {
		interval = 1
	}
	now := s.now()
	next := NextRun(now, frequency, interval)
	rule := &model.RecurrenceRuleModel{
		Name:         strings.TrimSpace(req.Name),
		SourceTaskID: req.SourceTaskID,
		Frequency:    frequency,
		Interval:     interval,
		Active:       true,
		NextRunAt:    &next,
		CreatedAt:    now,
	}
	if err := rule.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if _, err := repository.NewTaskRepository(s.db).FindByID(ctx, rule.SourceTaskID); err != nil {
		return nil, translate(err, "task", rule.SourceTaskID)
	}
	if err := repository.NewRecurrenceRuleRepository(s.db).Create(ctx, rule); err != nil {
		return nil, translate(err, "recurrence rule", rule.Name)
	}
	s.record(ctx, p, "create", "recurrence_rule", rule.ID, rule)
	return rule, nil
}

func (s *settingsService) ToggleRecurrence(ctx context.Context, p *auth.Principal, id uint) (*model.RecurrenceRuleModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	repo := repository.NewRecurrenceRuleRepository(s.db)
	rule, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "recurrence rule", id)
	}
	if err := repo.SetActive(ctx, id, !rule.Active); err != nil {
		return nil, translate(err, "recurrence rule", id)
	}
	rule.Active = !rule.Active
	s.record(ctx, p, "toggle", "recurrence_rule", id, map[string]bool{"active": rule.Active})
	return rule, nil
}

func (s *settingsService) RunRecurrencesNow(ctx context.Context, p *auth.Principal) (*RecurrenceRunResult, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return s.recurrences.RunDueRecurrences(ctx, p.Actor())
}

func (s *settingsService) ListWorkspaces(ctx context.Context, p *auth.Principal) ([]*model.WorkspaceModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return repository.NewWorkspaceRepository(s.db).FindAll(ctx)
}

func (s *settingsService) CreateWorkspace(ctx context.Context, p *auth.Principal, name string) (*model.WorkspaceModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	ws := &model.WorkspaceModel{Name: strings.TrimSpace(name), Active: true, CreatedAt: s.now()}
	if err := ws.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if err := repository.NewWorkspaceRepository(s.db).Create(ctx, ws); err != nil {
		return nil, translate(err, "workspace", ws.Name)
	}
	s.record(ctx, p, "create", "workspace", ws.ID, ws)
	return ws, nil
}

func (s *settingsService) RenameWorkspace(ctx context.Context, p *auth.Principal, id uint, name string) (*model.WorkspaceModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("workspace name is required")
	}
	repo := repository.NewWorkspaceRepository(s.db)
	if err := repo.Rename(ctx, id, name); err != nil {
		return nil, translate(err, "workspace", id)
	}
	ws, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "workspace", id)
	}
	s.record(ctx, p, "rename", "workspace", id, map[string]string{"name": name})
	return ws, nil
}

func (s *settingsService) ToggleWorkspace(ctx context.Context, p *auth.Principal, id uint) (*model.WorkspaceModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	repo := repository.NewWorkspaceRepository(s.db)
	ws, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "workspace", id)
	}
	if err := repo.SetActive(ctx, id, !ws.Active); err != nil {
		return nil, translate(err, "workspace", id)
	}
	ws.Active = !ws.Active
	s.record(ctx, p, "toggle", "workspace", id, map[string]bool{"active": ws.Active})
	return ws, nil
}

func (s *settingsService) ListTeams(ctx context.Context, p *auth.Principal) ([]*model.TeamModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return repository.NewTeamRepository(s.db).FindAll(ctx, nil, false)
}

func (s *settingsService) CreateTeam(ctx context.Context, p *auth.Principal, workspaceID uint, name string) (*model.TeamModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	team := &model.TeamModel{WorkspaceID: workspaceID, Name: strings.TrimSpace(name), Active: true, CreatedAt: s.now()}
	if err := team.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if _, err := repository.NewWorkspaceRepository(s.db).FindByID(ctx, workspaceID); err != nil {
		return nil, translate(err, "workspace", workspaceID)
	}
	if err := repository.NewTeamRepository(s.db).Create(ctx, team); err != nil {
		return nil, translate(err, "team", team.Name)
	}
	s.record(ctx, p, "create", "team", team.ID, team)
	return team, nil
}

func (s *settingsService) ToggleTeam(ctx context.Context, p *auth.Principal, id uint) (*model.TeamModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	repo := repository.NewTeamRepository(s.db)
	team, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "team", id)
	}
	if err := repo.SetActive(ctx, id, !team.Active); err != nil {
		return nil, translate(err, "team", id)
	}
	team.Active = !team.Active
	s.record(ctx, p, "toggle", "team", id, map[string]bool{"active": team.Active})
	return team, nil
}

func (s *settingsService) ListMemberships(ctx context.Context, p *auth.Principal, teamID uint) ([]*model.TeamMembershipModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return repository.NewMembershipRepository(s.db).FindByTeam(ctx, teamID)
}

func (s *settingsService) AddMembership(ctx context.Context, p *auth.Principal, req *AddMembershipRequest) (*model.TeamMembershipModel, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = model.RoleColaborador
	}
	m := &model.TeamMembershipModel{TeamID: req.TeamID, UserID: req.UserID, Role: role, CreatedAt: s.now()}
	if err := m.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if _, err := repository.NewTeamRepository(s.db).FindByID(ctx, req.TeamID); err != nil {
		return nil, translate(err, "team", req.TeamID)
	}
	if _, err := repository.NewUserRepository(s.db).FindByID(ctx, req.UserID); err != nil {
		return nil, translate(err, "user", req.UserID)
	}
	out, created, err := repository.NewMembershipRepository(s.db).GetOrCreate(ctx, m)
	if err != nil {
		return nil, translate(err, "membership", req.UserID)
	}
	if created {
		s.roleCache.Invalidate(req.UserID)
		s.record(ctx, p, "create", "membership", out.ID, out)
	}
	return out, nil
}

func (s *settingsService) RemoveMembership(ctx context.Context, p *auth.Principal, teamID, userID uint) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := repository.NewMembershipRepository(s.db).Delete(ctx, teamID, userID); err != nil {
		return translate(err, "membership", userID)
	}
	s.roleCache.Invalidate(userID)
	s.record(ctx, p, "delete", "membership", userID, map[string]uint{"team_id": teamID})
	return nil
}
