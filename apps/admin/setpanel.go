package main

import (
	"context"
	"strings"
)

func (cli *commandLine) setPanel(program string, names []string) error {
	panelists := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			panelists = append(panelists, name)
		}
	}
	return cli.panels.SetDefaultPanel(context.Background(), program, panelists)
}
