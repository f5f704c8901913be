package group

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("group not found")

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroupByID(ctx context.Context, id string) (Group, error)
		// FilterGroups applies AND operation on available QueryFilter fields.
		FilterGroups(ctx context.Context, filter QueryFilter) ([]Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
	}

	Service interface {
		Create(ctx context.Context, ng NewGroup) (Group, error)
		GetByID(ctx context.Context, id string) (Group, error)
		Filter(ctx context.Context, filter QueryFilter) ([]Group, error)
		Update(ctx context.Context, id string, ug UpdateGroup) (Group, error)
		Archive(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ng NewGroup) (Group, error) {
	ng.Clean()
	now := time.Now().UTC()
	grp := Group{
		Name:      ng.Name,
		Program:   ng.Program,
		Section:   ng.Section,
		Adviser:   ng.Adviser,
		Members:   ng.Members,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateGroup(ctx, grp)
}

func (svc *service) GetByID(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroupByID(ctx, id)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter) ([]Group, error) {
	return svc.repo.FilterGroups(ctx, filter)
}

func (svc *service) Update(ctx context.Context, id string, ug UpdateGroup) (Group, error) {
	grp, err := svc.repo.GetGroupByID(ctx, id)
	if err != nil {
		return Group{}, err
	}
	if ug.Name != "" {
		grp.Name = strings.TrimSpace(ug.Name)
	}
	if ug.Program != "" {
		grp.Program = strings.TrimSpace(ug.Program)
	}
	if ug.Section != "" {
		grp.Section = strings.TrimSpace(ug.Section)
	}
	if ug.Adviser != "" {
		grp.Adviser = strings.TrimSpace(ug.Adviser)
	}
	if ug.Members != nil {
		// blank student id drops the member (delete-if-blank)
		members := make([]Member, 0, len(ug.Members))
		for _, m := range ug.Members {
			if strings.TrimSpace(m.StudentID) == "" {
				continue
			}
			members = append(members, m)
		}
		grp.Members = members
	}
	grp.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateGroup(ctx, grp)
}

func (svc *service) Archive(ctx context.Context, id string) error {
	grp, err := svc.repo.GetGroupByID(ctx, id)
	if err != nil {
		return err
	}
	grp.Archived = true
	grp.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateGroup(ctx, grp)
	return errors.Wrap(err, "archiving group")
}
