package main

import (
	"context"

	"github.com/capdesk/capdesk/core/user"
)

func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	nu := user.NewUser{
		Name:     name,
		Username: uname,
		Email:    email,
		Password: pwd,
	}
	if isAdmin {
		nu.Roles = user.AllRoles
	}
	_, err := cli.usrSvc.Create(context.Background(), nu)
	return err
}
