package model

import "sort"

// TeamSet 主体可见的团队集合
// nil *TeamSet 表示不受限制（管理员）,与空集合含义不同
type TeamSet struct {
	ids map[uint]struct{}
}

// NewTeamSet 由团队 ID 列表构造集合
func NewTeamSet(ids ...uint) *TeamSet {
	s := &TeamSet{ids: make(map[uint]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Unrestricted 是否不受限制
func (s *TeamSet) Unrestricted() bool {
	return s == nil
}

// Contains 判断团队是否可见
func (s *TeamSet) Contains(teamID uint) bool {
	if s == nil {
		return true
	}
	_, ok := s.ids[teamID]
	return ok
}

// ContainsRef 判断可空的团队引用是否可见,受限主体看不到无团队的记录
func (s *TeamSet) ContainsRef(teamID *uint) bool {
	if s == nil {
		return true
	}
	return teamID != nil && s.Contains(*teamID)
}

// IDs 返回排序后的团队 ID
func (s *TeamSet) IDs() []uint {
	if s == nil {
		return nil
	}
	out := make([]uint, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len 集合大小
func (s *TeamSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}
