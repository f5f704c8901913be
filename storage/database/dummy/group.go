package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/capdesk/capdesk/core/group"
)

type groupRepository struct {
	db *groupTable
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *DB) *groupRepository {
	return &groupRepository{db: db.group}
}

func (repo *groupRepository) CreateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grp.ID = uuid.New().String()
	repo.db.table[grp.ID] = &grp
	return grp, nil
}

func (repo *groupRepository) GetGroupByID(_ context.Context, id string) (group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if grp, ok := repo.db.table[id]; ok {
		return *grp, nil
	}
	return group.Group{}, group.ErrNotFound
}

func (repo *groupRepository) FilterGroups(_ context.Context, filter group.QueryFilter) ([]group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	groups := make([]group.Group, 0, len(repo.db.table))
	for _, grp := range repo.db.table {
		if grp.Archived && !filter.IncludeArchived {
			continue
		}
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(grp.Name), search) &&
				!strings.Contains(strings.ToLower(grp.Adviser), search) {
				continue
			}
		}
		if filter.Program != "" && grp.Program != filter.Program {
			continue
		}
		if filter.Section != "" && grp.Section != filter.Section {
			continue
		}
		groups = append(groups, *grp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (repo *groupRepository) UpdateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[grp.ID]; !ok {
		return group.Group{}, group.ErrNotFound
	}
	repo.db.table[grp.ID] = &grp
	return grp, nil
}
