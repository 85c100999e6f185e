package exec

import (
	"context"
	"strings"
)

// Git runs read-only git queries on a Host.
type Git struct {
	host Host
	dir  string
}

// NewGit creates a git client for the working tree at dir.
func NewGit(host Host, dir string) *Git {
	return &Git{host: host, dir: dir}
}

// ShortRevision returns the abbreviated commit id of HEAD.
func (g *Git) ShortRevision(ctx context.Context) (string, error) {
	res, err := g.host.Run(ctx, Command{
		Name: "git",
		Args: []string{"rev-parse", "--short", "HEAD"},
		Dir:  g.dir,
		Env:  map[string]string{"GIT_TERMINAL_PROMPT": "0"},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}
