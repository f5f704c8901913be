package user

import (
	"context"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
)

// panelDirectory resolves panelist names to email addresses by
// matching user accounts on normalized name.
type panelDirectory struct {
	repo Repository
}

var _ defense.PanelDirectory = (*panelDirectory)(nil)

func NewPanelDirectory(repo Repository) defense.PanelDirectory {
	return &panelDirectory{repo: repo}
}

// LookupEmails is best-effort: unknown names are simply skipped.
func (d *panelDirectory) LookupEmails(ctx context.Context, names []string) []defense.EmailRecipient {
	users, err := d.repo.QueryAllUsers(ctx)
	if err != nil {
		return nil
	}
	byName := make(map[string]User, len(users))
	for _, u := range users {
		byName[core.NormalizeKey(u.Name)] = u
	}
	var out []defense.EmailRecipient
	for _, name := range names {
		if u, ok := byName[core.NormalizeKey(name)]; ok && u.Email != "" {
			out = append(out, defense.EmailRecipient{Name: u.Name, Address: u.Email})
		}
	}
	return out
}
