package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/service"
)

// MaxAttachmentSize 单个附件大小上限
const MaxAttachmentSize = 20 << 20

// TaskController 任务控制器
type TaskController struct {
	tasks service.TaskService
}

// NewTaskController 创建任务控制器
func NewTaskController(tasks service.TaskService) *TaskController {
	return &TaskController{tasks: tasks}
}

// createTaskBody 创建任务请求体, 同时支持 JSON 和 multipart 表单
type createTaskBody struct {
	Title       string `json:"title" form:"title"`
	ClientID    string `json:"client_id" form:"client_id"`
	Description string `json:"description" form:"description"`
	StageID     uint   `json:"stage_id" form:"stage_id"`
	WorkspaceID *uint  `json:"workspace_id" form:"workspace_id"`
	TeamID      *uint  `json:"team_id" form:"team_id"`
	AssignedTo  string `json:"assigned_to" form:"assigned_to"`
	DueDate     string `json:"due_date" form:"due_date"`
	Priority    string `json:"priority" form:"priority"`
}

type moveTaskBody struct {
	StageID uint `json:"stage_id" binding:"required"`
}

type reorderTaskBody struct {
	Direction string `json:"direction" binding:"required"`
}

type commentBody struct {
	Comment string `json:"comment"`
}

// parseDueDate 接受 yyyy-mm-dd 或 RFC3339
func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid due_date %q", raw)
	}
	return &t, nil
}

func zeroToNil(id *uint) *uint {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

func readUpload(fh *multipart.FileHeader) (*service.AttachmentInput, error) {
	if fh.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment %q exceeds %d bytes", fh.Filename, MaxAttachmentSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxAttachmentSize+1))
	if err != nil {
		return nil, err
	}
	return &service.AttachmentInput{Filename: fh.Filename, Content: data}, nil
}

// uploads 读取 multipart 中的附件, 非 multipart 请求返回空
func uploads(c *gin.Context, field string) ([]*service.AttachmentInput, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	var out []*service.AttachmentInput
	for _, fh := range form.File[field] {
		in, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// List 任务列表
func (t *TaskController) List(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	filter, ok := t.bindFilter(c)
	if !ok {
		return
	}
	tasks, err := t.tasks.ListTasks(c.Request.Context(), p, filter)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, tasks)
}

// Board 看板视图
func (t *TaskController) Board(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	filter, ok := t.bindFilter(c)
	if !ok {
		return
	}
	board, err := t.tasks.Board(c.Request.Context(), p, filter)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, board)
}

func (t *TaskController) bindFilter(c *gin.Context) (*service.ListTasksFilter, bool) {
	var filter service.ListTasksFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		Error(c, http.StatusBadRequest, "invalid query", err.Error())
		return nil, false
	}
	filter.StageID = zeroToNil(filter.StageID)
	filter.WorkspaceID = zeroToNil(filter.WorkspaceID)
	filter.TeamID = zeroToNil(filter.TeamID)
	return &filter, true
}

// Create 创建任务, multipart 请求可携带 attachments 文件
func (t *TaskController) Create(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var body createTaskBody
	if err := c.ShouldBind(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	due, err := parseDueDate(body.DueDate)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	files, err := uploads(c, "attachments")
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid attachments", err.Error())
		return
	}

	task, err := t.tasks.CreateTask(c.Request.Context(), p, &service.CreateTaskRequest{
		Title:       body.Title,
		ClientID:    body.ClientID,
		Description: body.Description,
		StageID:     body.StageID,
		WorkspaceID: zeroToNil(body.WorkspaceID),
		TeamID:      zeroToNil(body.TeamID),
		AssignedTo:  body.AssignedTo,
		DueDate:     due,
		Priority:    body.Priority,
		Attachments: files,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, task)
}

// Get 任务详情
func (t *TaskController) Get(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	detail, err := t.tasks.GetTask(c.Request.Context(), p, id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, detail)
}

// Move 移动任务到其他阶段
func (t *TaskController) Move(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body moveTaskBody
	if !bindJSON(c, &body) {
		return
	}
	task, err := t.tasks.MoveTask(c.Request.Context(), p, id, body.StageID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, task)
}

// Reorder 在阶段内上移或下移
func (t *TaskController) Reorder(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body reorderTaskBody
	if !bindJSON(c, &body) {
		return
	}
	if err := t.tasks.ReorderTask(c.Request.Context(), p, id, body.Direction); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// AddComment 添加评论
func (t *TaskController) AddComment(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body commentBody
	if !bindJSON(c, &body) {
		return
	}
	comment, err := t.tasks.AddComment(c.Request.Context(), p, id, body.Comment)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, comment)
}

// AddAttachment 上传附件, 表单字段 file
func (t *TaskController) AddAttachment(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		Error(c, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	in, err := readUpload(fh)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid attachment", err.Error())
		return
	}
	att, err := t.tasks.AddAttachment(c.Request.Context(), p, id, in)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, att)
}
