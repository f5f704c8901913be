package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/capdesk/capdesk/core/group"
)

type groupRepository struct {
	db *sqlx.DB
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *sqlx.DB) *groupRepository {
	return &groupRepository{db: db}
}

type groupRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Program   string      `db:"program"`
	Section   string      `db:"section"`
	Adviser   null.String `db:"adviser"`
	Archived  bool        `db:"archived"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

type memberRow struct {
	GroupID   string `db:"group_id"`
	StudentID string `db:"student_id"`
	Name      string `db:"name"`
	Position  int    `db:"position"`
}

func (repo groupRepository) unpack(r groupRow, members []group.Member) group.Group {
	return group.Group{
		ID:        r.ID,
		Name:      r.Name,
		Program:   r.Program,
		Section:   r.Section,
		Adviser:   r.Adviser.String,
		Members:   members,
		Archived:  r.Archived,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (repo groupRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return group.ErrNotFound
	}
	return wrapDBErr(err, msg)
}

func (repo groupRepository) saveMembers(ctx context.Context, tx *sqlx.Tx, groupID string, members []group.Member) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_member WHERE group_id = $1`, groupID); err != nil {
		return wrapDBErr(err, "clearing group members")
	}
	for i, m := range members {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_member (group_id, student_id, name, position)
			VALUES ($1, $2, $3, $4)`, groupID, m.StudentID, m.Name, i)
		if err != nil {
			return wrapDBErr(err, "inserting group member")
		}
	}
	return nil
}

func (repo groupRepository) loadMembers(ctx context.Context, groupIDs []string) (map[string][]group.Member, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT * FROM group_member WHERE group_id IN (?) ORDER BY group_id, position`, groupIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building members query")
	}
	var rows []memberRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, wrapDBErr(err, "querying group members")
	}
	members := make(map[string][]group.Member, len(groupIDs))
	for _, r := range rows {
		members[r.GroupID] = append(members[r.GroupID], group.Member{StudentID: r.StudentID, Name: r.Name})
	}
	return members, nil
}

func (repo groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	grp.ID = uuid.New().String()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return group.Group{}, wrapDBErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO capstone_group (id, name, program, section, adviser, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		grp.ID, grp.Name, grp.Program, grp.Section,
		null.NewString(grp.Adviser, grp.Adviser != ""), grp.Archived,
		grp.CreatedAt.UTC(), grp.UpdatedAt.UTC())
	if err != nil {
		return group.Group{}, wrapDBErr(err, "inserting group")
	}
	if err = repo.saveMembers(ctx, tx, grp.ID, grp.Members); err != nil {
		return group.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return group.Group{}, wrapDBErr(err, "committing group")
	}
	return grp, nil
}

func (repo groupRepository) GetGroupByID(ctx context.Context, id string) (group.Group, error) {
	if _, err := uuid.Parse(id); err != nil {
		return group.Group{}, group.ErrNotFound
	}
	var r groupRow
	if err := repo.db.GetContext(ctx, &r, `SELECT * FROM capstone_group WHERE id = $1`, id); err != nil {
		return group.Group{}, repo.trapNoRowsErr(err, "finding group by ID")
	}
	members, err := repo.loadMembers(ctx, []string{id})
	if err != nil {
		return group.Group{}, err
	}
	return repo.unpack(r, members[id]), nil
}

func (repo groupRepository) FilterGroups(ctx context.Context, filter group.QueryFilter) ([]group.Group, error) {
	q := `SELECT * FROM capstone_group WHERE 1=1`
	var args []interface{}

	if !filter.IncludeArchived {
		q += ` AND NOT archived`
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		q += ` AND (name ILIKE ? OR adviser ILIKE ?)`
		args = append(args, val, val)
	}
	if filter.Program != "" {
		args = append(args, filter.Program)
		q += ` AND program = ?`
	}
	if filter.Section != "" {
		args = append(args, filter.Section)
		q += ` AND section = ?`
	}
	q += ` ORDER BY name`

	var rows []groupRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, wrapDBErr(err, "querying groups")
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	members, err := repo.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}

	groups := make([]group.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, repo.unpack(r, members[r.ID]))
	}
	return groups, nil
}

func (repo groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return group.Group{}, wrapDBErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE capstone_group
		SET name = $2, program = $3, section = $4, adviser = $5, archived = $6, updated_at = $7
		WHERE id = $1`,
		grp.ID, grp.Name, grp.Program, grp.Section,
		null.NewString(grp.Adviser, grp.Adviser != ""), grp.Archived, grp.UpdatedAt.UTC())
	if err != nil {
		return group.Group{}, wrapDBErr(err, "updating group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return group.Group{}, group.ErrNotFound
	}
	if err = repo.saveMembers(ctx, tx, grp.ID, grp.Members); err != nil {
		return group.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return group.Group{}, wrapDBErr(err, "committing group update")
	}
	return grp, nil
}
