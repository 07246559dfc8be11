package repository

import (
	"context"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
)

// WorkspaceRepository 工作区仓储接口
type WorkspaceRepository interface {
	Create(ctx context.Context, ws *model.WorkspaceModel) error
	Rename(ctx context.Context, id uint, name string) error
	SetActive(ctx context.Context, id uint, active bool) error
	FindByID(ctx context.Context, id uint) (*model.WorkspaceModel, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]*model.WorkspaceModel, error)
	FindAll(ctx context.Context) ([]*model.WorkspaceModel, error)
}

type workspaceRepository struct {
	db *gorm.DB
}

// NewWorkspaceRepository 创建工作区仓储
func NewWorkspaceRepository(db *gorm.DB) WorkspaceRepository {
	return &workspaceRepository{db: db}
}

func (r *workspaceRepository) Create(ctx context.Context, ws *model.WorkspaceModel) error {
	return r.db.WithContext(ctx).Create(ws).Error
}

func (r *workspaceRepository) Rename(ctx context.Context, id uint, name string) error {
	return updateOne(r.db.WithContext(ctx).Model(&model.WorkspaceModel{}), id, "name", name)
}

func (r *workspaceRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return updateOne(r.db.WithContext(ctx).Model(&model.WorkspaceModel{}), id, "active", active)
}

func (r *workspaceRepository) FindByID(ctx context.Context, id uint) (*model.WorkspaceModel, error) {
	var ws model.WorkspaceModel
	if err := r.db.WithContext(ctx).First(&ws, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ws, nil
}

func (r *workspaceRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]*model.WorkspaceModel, error) {
	out := make(map[uint]*model.WorkspaceModel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []*model.WorkspaceModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, ws := range list {
		out[ws.ID] = ws
	}
	return out, nil
}

func (r *workspaceRepository) FindAll(ctx context.Context) ([]*model.WorkspaceModel, error) {
	var list []*model.WorkspaceModel
	err := r.db.WithContext(ctx).Order("name ASC").Find(&list).Error
	return list, err
}

// TeamRepository 团队仓储接口
type TeamRepository interface {
	Create(ctx context.Context, team *model.TeamModel) error
	SetActive(ctx context.Context, id uint, active bool) error
	FindByID(ctx context.Context, id uint) (*model.TeamModel, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]*model.TeamModel, error)
	FindAll(ctx context.Context, scope *model.TeamSet, activeOnly bool) ([]*model.TeamModel, error)
}

type teamRepository struct {
	db *gorm.DB
}

// NewTeamRepository 创建团队仓储
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) Create(ctx context.Context, team *model.TeamModel) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *teamRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return updateOne(r.db.WithContext(ctx).Model(&model.TeamModel{}), id, "active", active)
}

func (r *teamRepository) FindByID(ctx context.Context, id uint) (*model.TeamModel, error) {
	var team model.TeamModel
	if err := r.db.WithContext(ctx).First(&team, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &team, nil
}

func (r *teamRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]*model.TeamModel, error) {
	out := make(map[uint]*model.TeamModel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []*model.TeamModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, t := range list {
		out[t.ID] = t
	}
	return out, nil
}

// FindAll 按工作区名称、团队名称排序
func (r *teamRepository) FindAll(ctx context.Context, scope *model.TeamSet, activeOnly bool) ([]*model.TeamModel, error) {
	var list []*model.TeamModel
	q := r.db.WithContext(ctx).Model(&model.TeamModel{}).
		Joins("JOIN workspaces ON workspaces.id = teams.workspace_id")
	if activeOnly {
		q = q.Where("teams.active = ?", true)
	}
	q = applyTeamScope(q, "teams.id", scope, false)
	err := q.Order("workspaces.name ASC").Order("teams.name ASC").Find(&list).Error
	return list, err
}

// MembershipRepository 团队成员仓储接口
type MembershipRepository interface {
	FindByUser(ctx context.Context, userID uint) ([]*model.TeamMembershipModel, error)
	FindByTeam(ctx context.Context, teamID uint) ([]*model.TeamMembershipModel, error)
	FindOne(ctx context.Context, teamID, userID uint) (*model.TeamMembershipModel, error)
	// GetOrCreate 已存在时返回原记录, created 为 false
	GetOrCreate(ctx context.Context, m *model.TeamMembershipModel) (*model.TeamMembershipModel, bool, error)
	Delete(ctx context.Context, teamID, userID uint) error
}

type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository 创建团队成员仓储
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) FindByUser(ctx context.Context, userID uint) ([]*model.TeamMembershipModel, error) {
	var list []*model.TeamMembershipModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&list).Error
	return list, err
}

func (r *membershipRepository) FindByTeam(ctx context.Context, teamID uint) ([]*model.TeamMembershipModel, error) {
	var list []*model.TeamMembershipModel
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *membershipRepository) FindOne(ctx context.Context, teamID, userID uint) (*model.TeamMembershipModel, error) {
	var m model.TeamMembershipModel
	if err := r.db.WithContext(ctx).Where("team_id = ? AND user_id = ?", teamID, userID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *membershipRepository) GetOrCreate(ctx context.Context, m *model.TeamMembershipModel) (*model.TeamMembershipModel, bool, error) {
	var existing model.TeamMembershipModel
	res := r.db.WithContext(ctx).
		Where(model.TeamMembershipModel{TeamID: m.TeamID, UserID: m.UserID}).
		Attrs(model.TeamMembershipModel{Role: m.Role, CreatedAt: m.CreatedAt}).
		FirstOrCreate(&existing)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &existing, res.RowsAffected > 0, nil
}

func (r *membershipRepository) Delete(ctx context.Context, teamID, userID uint) error {
	res := r.db.WithContext(ctx).Where("team_id = ? AND user_id = ?", teamID, userID).Delete(&model.TeamMembershipModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// updateOne 更新单列,未命中记录时返回 ErrNotFound
func updateOne(q *gorm.DB, id uint, column string, value interface{}) error {
	res := q.Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
