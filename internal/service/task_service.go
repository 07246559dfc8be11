package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/metrics"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/mautops/crm-gin/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 排序方向
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// MissingName 关联记录缺失时展示的占位符
const MissingName = "—"

// TaskService 任务服务接口
type TaskService interface {
	CreateTask(ctx context.Context, p *auth.Principal, req *CreateTaskRequest) (*model.TaskModel, error)
	MoveTask(ctx context.Context, p *auth.Principal, taskID, stageID uint) (*model.TaskModel, error)
	ReorderTask(ctx context.Context, p *auth.Principal, taskID uint, direction string) error
	AddComment(ctx context.Context, p *auth.Principal, taskID uint, text string) (*model.CommentModel, error)
	AddAttachment(ctx context.Context, p *auth.Principal, taskID uint, file *AttachmentInput) (*model.AttachmentModel, error)
	ListTasks(ctx context.Context, p *auth.Principal, filter *ListTasksFilter) ([]*TaskView, error)
	GetTask(ctx context.Context, p *auth.Principal, taskID uint) (*TaskDetail, error)
	Board(ctx context.Context, p *auth.Principal, filter *ListTasksFilter) (*Board, error)
}

// AttachmentInput 上传的附件
type AttachmentInput struct {
	Filename string
	Content  []byte
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	ClientID    string     `json:"client_id"`
	Description string     `json:"description"`
	StageID     uint       `json:"stage_id"`
	WorkspaceID *uint      `json:"workspace_id"`
	TeamID      *uint      `json:"team_id"`
	AssignedTo  string     `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date"`
	Priority    string     `json:"priority"`

	Attachments []*AttachmentInput `json:"-"`
}

// ListTasksFilter 任务列表过滤条件
type ListTasksFilter struct {
	Query       string `form:"q"`
	StageID     *uint  `form:"stage"`
	Priority    string `form:"priority"`
	WorkspaceID *uint  `form:"workspace"`
	TeamID      *uint  `form:"team"`
}

// TaskView 带关联名称的任务
type TaskView struct {
	*model.TaskModel
	StageName     string `json:"stage_name"`
	WorkspaceName string `json:"workspace_name,omitempty"`
	TeamName      string `json:"team_name,omitempty"`
	ClientName    string `json:"client_name"`
}

// TaskDetail 任务详情
type TaskDetail struct {
	Task        *TaskView                `json:"task"`
	Comments    []*model.CommentModel    `json:"comments"`
	Attachments []*model.AttachmentModel `json:"attachments"`
	CanManage   bool                     `json:"can_manage"`
	CanInteract bool                     `json:"can_interact"`
}

// BoardColumn 看板列
type BoardColumn struct {
	Stage *model.StageModel `json:"stage"`
	Count int               `json:"count"`
	Tasks []*TaskView       `json:"tasks"`
}

// Board 看板
type Board struct {
	Columns []*BoardColumn `json:"columns"`
	Total   int            `json:"total"`
}

// taskService 任务服务实现
type taskService struct {
	db          *gorm.DB
	permissions PermissionResolver
	automation  AutomationService
	notifier    NotificationService
	store       storage.Storage
	clients     ClientDirectory
	audit       AuditLogService
	logger      logrus.FieldLogger
	now         func() time.Time
}

// TaskServiceDeps 任务服务依赖, 除 DB 和 Permissions 外均可为 nil
type TaskServiceDeps struct {
	DB          *gorm.DB
	Permissions PermissionResolver
	Automation  AutomationService
	Notifier    NotificationService
	Storage     storage.Storage
	Clients     ClientDirectory
	Audit       AuditLogService
	Logger      logrus.FieldLogger
	Clock       func() time.Time
}

// NewTaskService 创建任务服务
func NewTaskService(deps TaskServiceDeps) TaskService {
	s := &taskService{
		db:          deps.DB,
		permissions: deps.Permissions,
		automation:  deps.Automation,
		notifier:    deps.Notifier,
		store:       deps.Storage,
		clients:     deps.Clients,
		audit:       deps.Audit,
		logger:      deps.Logger,
		now:         deps.Clock,
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = utcNow
	}
	return s
}

func (s *taskService) CreateTask(ctx context.Context, p *auth.Principal, req *CreateTaskRequest) (*model.TaskModel, error) {
	if req == nil {
		return nil, validationError("request is required")
	}
	task := &model.TaskModel{
		Title:       strings.TrimSpace(req.Title),
		ClientID:    strings.TrimSpace(req.ClientID),
		Description: strings.TrimSpace(req.Description),
		StageID:     req.StageID,
		TeamID:      req.TeamID,
		AssignedTo:  strings.TrimSpace(req.AssignedTo),
		DueDate:     normalizeDate(req.DueDate),
		Priority:    strings.TrimSpace(req.Priority),
		CreatedBy:   p.Actor(),
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedia
	}
	if err := task.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}

	if _, err := repository.NewStageRepository(s.db).FindByID(ctx, req.StageID); err != nil {
		if err == repository.ErrNotFound {
			return nil, notFoundError("stage %d not found", req.StageID)
		}
		return nil, fmt.Errorf("failed to load stage: %w", err)
	}

	// 无团队任务只做可见性限制, 创建不需要团队权限
	workspaceID := req.WorkspaceID
	if req.TeamID != nil {
		if err := s.checkCreateInTeam(ctx, p, *req.TeamID); err != nil {
			return nil, err
		}
		team, err := repository.NewTeamRepository(s.db).FindByID(ctx, *req.TeamID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, notFoundError("team %d not found", *req.TeamID)
			}
			return nil, fmt.Errorf("failed to load team: %w", err)
		}
		if workspaceID == nil {
			wsID := team.WorkspaceID
			workspaceID = &wsID
		}
	}

	refs, err := s.storeFiles(ctx, req.Attachments)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task.WorkspaceID = workspaceID
	task.CreatedAt = now
	task.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks := repository.NewTaskRepository(tx)
		maxPos, err := tasks.MaxPosition(ctx, task.StageID)
		if err != nil {
			return err
		}
		task.Position = maxPos + 1
		if err := tasks.Create(ctx, task); err != nil {
			return err
		}
		attachments := repository.NewAttachmentRepository(tx)
		for i, ref := range refs {
			if err := attachments.Create(ctx, &model.AttachmentModel{
				TaskID:     task.ID,
				File:       ref,
				Filename:   storage.SanitizeFilename(req.Attachments[i].Filename),
				UploadedBy: p.Actor(),
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discardFiles(ctx, refs)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	metrics.RecordTaskCreated()
	s.recordAudit(ctx, p, "create", task.ID, map[string]interface{}{"stage_id": task.StageID, "team_id": task.TeamID})
	s.notify(ctx, task, model.EventCreated, createdMessage(task))

	s.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"stage_id": task.StageID,
		"actor":    p.Actor(),
	}).Info("task created")
	return task, nil
}

// checkCreateInTeam 非管理员只能在自己管理的团队中创建任务
func (s *taskService) checkCreateInTeam(ctx context.Context, p *auth.Principal, teamID uint) error {
	allowed, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return err
	}
	if allowed.Unrestricted() {
		return nil
	}
	if !allowed.Contains(teamID) {
		return permissionError("no permission for team %d", teamID)
	}
	role, err := s.permissions.TeamRole(ctx, p, &teamID)
	if err != nil {
		return err
	}
	if !canManageRole(role) {
		return permissionError("no permission to create tasks in team %d", teamID)
	}
	return nil
}

func (s *taskService) MoveTask(ctx context.Context, p *auth.Principal, taskID, stageID uint) (*model.TaskModel, error) {
	if stageID == 0 {
		return nil, validationError("stage is required")
	}
	task, err := s.loadManageable(ctx, p, taskID)
	if err != nil {
		return nil, err
	}

	stages := repository.NewStageRepository(s.db)
	newStage, err := stages.FindByID(ctx, stageID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, notFoundError("stage %d not found", stageID)
		}
		return nil, fmt.Errorf("failed to load stage: %w", err)
	}
	if !newStage.Active {
		return nil, notFoundError("stage %d is not active", stageID)
	}

	oldStageID := task.StageID
	oldStageName := MissingName
	if old, err := stages.FindByID(ctx, oldStageID); err == nil {
		oldStageName = old.Name
	}

	now := s.now()
	if err := repository.NewTaskRepository(s.db).UpdateStage(ctx, task.ID, newStage.ID, now); err != nil {
		if err == repository.ErrNotFound {
			return nil, notFoundError("task %d not found", taskID)
		}
		return nil, fmt.Errorf("failed to move task: %w", err)
	}
	task.StageID = newStage.ID
	task.UpdatedAt = now
	metrics.RecordTaskMoved()

	// 阶段变更已提交, 自动化和通知失败只记录日志
	if s.automation != nil {
		if _, err := s.automation.RunStageAutomations(ctx, task, oldStageID, newStage.ID, p.Actor()); err != nil {
			s.logger.WithError(err).WithField("task_id", task.ID).Warn("stage automations failed")
		}
	}
	msg := fmt.Sprintf("Task '%s' moved from %s to %s", task.Title, oldStageName, newStage.Name)
	s.notify(ctx, task, model.EventStageChanged, msg)
	s.recordAudit(ctx, p, "move", task.ID, map[string]interface{}{"from_stage": oldStageID, "to_stage": newStage.ID})

	return task, nil
}

func (s *taskService) ReorderTask(ctx context.Context, p *auth.Principal, taskID uint, direction string) error {
	if direction != DirectionUp && direction != DirectionDown {
		return validationError("invalid direction: %s", direction)
	}
	if _, err := s.loadManageable(ctx, p, taskID); err != nil {
		return err
	}

	swapped := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks := repository.NewTaskRepository(tx)
		task, err := tasks.FindByIDForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		siblings, err := tasks.FindSiblings(ctx, task.StageID, true)
		if err != nil {
			return err
		}

		idx := -1
		for i, t := range siblings {
			if t.ID == task.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return repository.ErrNotFound
		}

		var other *model.TaskModel
		switch {
		case direction == DirectionUp && idx > 0:
			other = siblings[idx-1]
		case direction == DirectionDown && idx < len(siblings)-1:
			other = siblings[idx+1]
		default:
			return nil
		}

		current := siblings[idx]
		if err := tasks.UpdatePosition(ctx, current.ID, other.Position); err != nil {
			return err
		}
		if err := tasks.UpdatePosition(ctx, other.ID, current.Position); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		if err == repository.ErrNotFound {
			return notFoundError("task %d not found", taskID)
		}
		return fmt.Errorf("failed to reorder task: %w", err)
	}
	if swapped {
		s.recordAudit(ctx, p, "reorder", taskID, map[string]interface{}{"direction": direction})
	}
	return nil
}

func (s *taskService) AddComment(ctx context.Context, p *auth.Principal, taskID uint, text string) (*model.CommentModel, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("comment is required")
	}
	task, err := s.loadInteractive(ctx, p, taskID)
	if err != nil {
		return nil, err
	}

	c := &model.CommentModel{
		TaskID:    task.ID,
		Comment:   text,
		Author:    p.Actor(),
		CreatedAt: s.now(),
	}
	if err := repository.NewCommentRepository(s.db).Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	s.notify(ctx, task, model.EventComment, fmt.Sprintf("New comment on '%s' by %s", task.Title, p.DisplayName()))
	return c, nil
}

func (s *taskService) AddAttachment(ctx context.Context, p *auth.Principal, taskID uint, file *AttachmentInput) (*model.AttachmentModel, error) {
	if file == nil || len(file.Content) == 0 {
		return nil, validationError("file is required")
	}
	task, err := s.loadInteractive(ctx, p, taskID)
	if err != nil {
		return nil, err
	}

	refs, err := s.storeFiles(ctx, []*AttachmentInput{file})
	if err != nil {
		return nil, err
	}
	a := &model.AttachmentModel{
		TaskID:     task.ID,
		File:       refs[0],
		Filename:   storage.SanitizeFilename(file.Filename),
		UploadedBy: p.Actor(),
		CreatedAt:  s.now(),
	}
	if err := repository.NewAttachmentRepository(s.db).Create(ctx, a); err != nil {
		s.discardFiles(ctx, refs)
		return nil, fmt.Errorf("failed to add attachment: %w", err)
	}
	return a, nil
}

func (s *taskService) ListTasks(ctx context.Context, p *auth.Principal, filter *ListTasksFilter) ([]*TaskView, error) {
	scope, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return nil, err
	}
	f := &repository.TaskFilter{Teams: scope}
	if filter != nil {
		f.Query = filter.Query
		f.StageID = filter.StageID
		f.Priority = strings.TrimSpace(filter.Priority)
		f.WorkspaceID = filter.WorkspaceID
		f.TeamID = filter.TeamID
	}
	tasks, err := repository.NewTaskRepository(s.db).FindByFilter(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	views, err := s.enrich(ctx, tasks)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if _, err := s.notifier.EnsureDueNotifications(ctx, tasks); err != nil {
			s.logger.WithError(err).Warn("failed to ensure due notifications")
		}
	}
	return views, nil
}

func (s *taskService) GetTask(ctx context.Context, p *auth.Principal, taskID uint) (*TaskDetail, error) {
	task, err := s.loadVisible(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	views, err := s.enrich(ctx, []*model.TaskModel{task})
	if err != nil {
		return nil, err
	}
	comments, err := repository.NewCommentRepository(s.db).FindByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	attachments, err := repository.NewAttachmentRepository(s.db).FindByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	canManage, err := s.permissions.CanManage(ctx, p, task)
	if err != nil {
		return nil, err
	}
	canInteract, err := s.permissions.CanInteract(ctx, p, task)
	if err != nil {
		return nil, err
	}
	return &TaskDetail{
		Task:        views[0],
		Comments:    comments,
		Attachments: attachments,
		CanManage:   canManage,
		CanInteract: canInteract,
	}, nil
}

func (s *taskService) Board(ctx context.Context, p *auth.Principal, filter *ListTasksFilter) (*Board, error) {
	views, err := s.ListTasks(ctx, p, filter)
	if err != nil {
		return nil, err
	}
	stages, err := repository.NewStageRepository(s.db).FindAll(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}

	byStage := make(map[uint][]*TaskView, len(stages))
	for _, v := range views {
		byStage[v.StageID] = append(byStage[v.StageID], v)
	}
	board := &Board{Columns: make([]*BoardColumn, 0, len(stages)), Total: len(views)}
	for _, st := range stages {
		list := byStage[st.ID]
		if list == nil {
			list = []*TaskView{}
		}
		board.Columns = append(board.Columns, &BoardColumn{Stage: st, Count: len(list), Tasks: list})
	}
	return board, nil
}

// enrich 批量加载阶段、工作区、团队和客户名称, 每种关联只查询一次
func (s *taskService) enrich(ctx context.Context, tasks []*model.TaskModel) ([]*TaskView, error) {
	views := make([]*TaskView, 0, len(tasks))
	if len(tasks) == 0 {
		return views, nil
	}

	var stageIDs, wsIDs, teamIDs []uint
	var clientIDs []string
	seenClient := make(map[string]struct{})
	for _, t := range tasks {
		stageIDs = append(stageIDs, t.StageID)
		if t.WorkspaceID != nil {
			wsIDs = append(wsIDs, *t.WorkspaceID)
		}
		if t.TeamID != nil {
			teamIDs = append(teamIDs, *t.TeamID)
		}
		if _, ok := seenClient[t.ClientID]; !ok {
			seenClient[t.ClientID] = struct{}{}
			clientIDs = append(clientIDs, t.ClientID)
		}
	}

	stages, err := repository.NewStageRepository(s.db).FindByIDs(ctx, uniqueUints(stageIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	workspaces, err := repository.NewWorkspaceRepository(s.db).FindByIDs(ctx, uniqueUints(wsIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load workspaces: %w", err)
	}
	teams, err := repository.NewTeamRepository(s.db).FindByIDs(ctx, uniqueUints(teamIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}
	clientNames := map[string]string{}
	if s.clients != nil {
		names, err := s.clients.LookupNames(ctx, clientIDs)
		if err != nil {
			s.logger.WithError(err).Warn("failed to look up client names")
		} else {
			clientNames = names
		}
	}

	for _, t := range tasks {
		v := &TaskView{TaskModel: t, StageName: MissingName, ClientName: MissingName}
		if st, ok := stages[t.StageID]; ok {
			v.StageName = st.Name
		}
		if t.WorkspaceID != nil {
			if ws, ok := workspaces[*t.WorkspaceID]; ok {
				v.WorkspaceName = ws.Name
			}
		}
		if t.TeamID != nil {
			if tm, ok := teams[*t.TeamID]; ok {
				v.TeamName = tm.Name
			}
		}
		if name, ok := clientNames[t.ClientID]; ok {
			v.ClientName = name
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *taskService) loadVisible(ctx context.Context, p *auth.Principal, taskID uint) (*model.TaskModel, error) {
	task, err := repository.NewTaskRepository(s.db).FindByID(ctx, taskID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, notFoundError("task %d not found", taskID)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	ok, err := s.permissions.CanView(ctx, p, task)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, permissionError("no permission for task %d", taskID)
	}
	return task, nil
}

func (s *taskService) loadManageable(ctx context.Context, p *auth.Principal, taskID uint) (*model.TaskModel, error) {
	task, err := s.loadVisible(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := s.permissions.CanManage(ctx, p, task)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, permissionError("no permission to manage task %d", taskID)
	}
	return task, nil
}

func (s *taskService) loadInteractive(ctx context.Context, p *auth.Principal, taskID uint) (*model.TaskModel, error) {
	task, err := s.loadVisible(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := s.permissions.CanInteract(ctx, p, task)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, permissionError("no permission to interact with task %d", taskID)
	}
	return task, nil
}

func (s *taskService) storeFiles(ctx context.Context, files []*AttachmentInput) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("attachment storage is not configured")
	}
	refs := make([]string, 0, len(files))
	for _, f := range files {
		if f == nil || len(f.Content) == 0 {
			s.discardFiles(ctx, refs)
			return nil, validationError("attachment %q is empty", fileName(f))
		}
		ref, err := s.store.Store(ctx, f.Filename, f.Content)
		if err != nil {
			s.discardFiles(ctx, refs)
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *taskService) discardFiles(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.store.Delete(ctx, ref); err != nil {
			s.logger.WithError(err).WithField("ref", ref).Warn("failed to remove orphaned attachment")
		}
	}
}

func (s *taskService) notify(ctx context.Context, task *model.TaskModel, eventType, msg string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, task, eventType, msg); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"task_id":    task.ID,
			"event_type": eventType,
		}).Warn("failed to emit notification")
	}
}

func (s *taskService) recordAudit(ctx context.Context, p *auth.Principal, action string, taskID uint, details interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAction(ctx, p.Actor(), action, "task", strconv.FormatUint(uint64(taskID), 10), details); err != nil {
		s.logger.WithError(err).WithField("task_id", taskID).Warn("failed to record audit log")
	}
}

func fileName(f *AttachmentInput) string {
	if f == nil {
		return ""
	}
	return f.Filename
}

// normalizeDate 截断到 UTC 日期
func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOf(t.UTC())
	return &d
}
