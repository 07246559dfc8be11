package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/service"
)

// SettingsController 管理员配置接口
type SettingsController struct {
	settings service.SettingsService
}

// NewSettingsController 创建配置控制器
func NewSettingsController(settings service.SettingsService) *SettingsController {
	return &SettingsController{settings: settings}
}

type nameBody struct {
	Name string `json:"name"`
}

type createTeamBody struct {
	WorkspaceID uint   `json:"workspace_id"`
	Name        string `json:"name"`
}

// respond 输出服务结果
func respond(c *gin.Context, status int, data interface{}, err error) {
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if status == http.StatusCreated {
		Created(c, data)
		return
	}
	Success(c, data)
}

// withID 解析主体和路径 ID 后执行 fn
func withID(c *gin.Context, fn func(id uint) (interface{}, error)) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	data, err := fn(id)
	respond(c, http.StatusOK, data, err)
}

func (s *SettingsController) ListStages(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	stages, err := s.settings.ListStages(c.Request.Context(), p)
	respond(c, http.StatusOK, stages, err)
}

func (s *SettingsController) CreateStage(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.CreateStageRequest
	if !bindJSON(c, &req) {
		return
	}
	stage, err := s.settings.CreateStage(c.Request.Context(), p, &req)
	respond(c, http.StatusCreated, stage, err)
}

func (s *SettingsController) ToggleStage(c *gin.Context) {
	p, _ := principalFrom(c)
	withID(c, func(id uint) (interface{}, error) {
		return s.settings.ToggleStage(c.Request.Context(), p, id)
	})
}

// DeleteStage 删除阶段, 仍有任务引用时返回 409
func (s *SettingsController) DeleteStage(c *gin.Context) {
	p, _ := principalFrom(c)
	withID(c, func(id uint) (interface{}, error) {
		return nil, s.settings.DeleteStage(c.Request.Context(), p, id)
	})
}

func (s *SettingsController) ListAutomations(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	rules, err := s.settings.ListAutomations(c.Request.Context(), p)
	respond(c, http.StatusOK, rules, err)
}

func (s *SettingsController) CreateAutomation(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.CreateAutomationRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := s.settings.CreateAutomation(c.Request.Context(), p, &req)
	respond(c, http.StatusCreated, rule, err)
}

func (s *SettingsController) ToggleAutomation(c *gin.Context) {
	p, _ := principalFrom(c)
	withID(c, func(id uint) (interface{}, error) {
		return s.settings.ToggleAutomation(c.Request.Context(), p, id)
	})
}

func (s *SettingsController) ListRecurrences(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	rules, err := s.settings.ListRecurrences(c.Request.Context(), p)
	respond(c, http.StatusOK, rules, err)
}

func (s *SettingsController) CreateRecurrence(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.CreateRecurrenceRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := s.settings.CreateRecurrence(c.Request.Context(), p, &req)
	respond(c, http.StatusCreated, rule, err)
}

func (s *SettingsController) ToggleRecurrence(c *gin.Context) {
	p, _ := principalFrom(c)
	withID(c, func(id uint) (interface{}, error) {
		return s.settings.ToggleRecurrence(c.Request.Context(), p, id)
	})
}

// RunRecurrences 立即执行到期的循环规则
func (s *SettingsController) RunRecurrences(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	result, err := s.settings.RunRecurrencesNow(c.Request.Context(), p)
	respond(c, http.StatusOK, result, err)
}

func (s *SettingsController) ListWorkspaces(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	workspaces, err := s.settings.ListWorkspaces(c.Request.Context(), p)
	respond(c, http.StatusOK, workspaces, err)
}

func (s *SettingsController) CreateWorkspace(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var body nameBody
	if !bindJSON(c, &body) {
		return
	}
	ws, err := s.settings.CreateWorkspace(c.Request.Context(), p, body.Name)
	respond(c, http.StatusCreated, ws, err)
}

func (s *SettingsController) RenameWorkspace(c *gin.Context) {
	p, _ := principalFrom(c)
	var body nameBody
	if !bindJSON(c, &body) {
		return
	}
	withID(c, func(id uint) (interface{}, error) {
		return s.settings.RenameWorkspace(c.Request.Context(), p, id, body.Name)
	})
}

func (s *SettingsController) ToggleWorkspace(c *gin.Context) {
	p, _ := principalFrom(c)
	withID(c, func(id uint) (interface{}, error) {
		return s.settings.ToggleWorkspace(c.Request.Context(), p, id)
	})
}

func (s *SettingsController) ListTeams(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	teams, err := s.settings.ListTeams(c.Request.Context(), p)
	respond(c, http.StatusOK, teams, err)
}

func (s *SettingsController) CreateTeam(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var body createTeamBody
	if !bindJSON(c, &body) {
		return
	}
	team, err := s.settings.CreateTeam(c.Request.Context(), p, body.WorkspaceID, body.Name)
	respond(c, http.StatusCreated, team, err)
}

func (s *SettingsController) ToggleTeam(c *gin.Context) {
	p, _ := principalFrom(c)
	withID(c, func(id uint) (interface{}, error) {
		return s.settings.ToggleTeam(c.Request.Context(), p, id)
	})
}

// ListMemberships 列出团队成员, 需要 team_id 查询参数
func (s *SettingsController) ListMemberships(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	teamID, err := strconv.ParseUint(c.Query("team_id"), 10, 64)
	if err != nil || teamID == 0 {
		Error(c, http.StatusBadRequest, "team_id is required", c.Query("team_id"))
		return
	}
	members, err := s.settings.ListMemberships(c.Request.Context(), p, uint(teamID))
	respond(c, http.StatusOK, members, err)
}

func (s *SettingsController) AddMembership(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.AddMembershipRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := s.settings.AddMembership(c.Request.Context(), p, &req)
	respond(c, http.StatusCreated, m, err)
}

func (s *SettingsController) RemoveMembership(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	teamID, ok := parseIDParam(c, "team_id")
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}
	err := s.settings.RemoveMembership(c.Request.Context(), p, teamID, userID)
	respond(c, http.StatusOK, nil, err)
}
