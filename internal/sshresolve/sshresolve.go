// Package sshresolve builds SSH clone URLs from repo slugs and resolves the
// SSH command the user's Git configuration wants, so clone/push inherit the
// user's identity selection (per-host IdentityFile, ProxyCommand, etc).
package sshresolve

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/scottidler/gx/internal/gxerr"
)

// BuildSSHURL converts an "owner/name" slug into a git@github.com SSH URL.
func BuildSSHURL(slug string) (string, error) {
	owner, name, ok := splitSlug(slug)
	if !ok {
		return "", gxerr.New(gxerr.InvalidInput, fmt.Sprintf("invalid repo slug %q", slug), nil)
	}
	return fmt.Sprintf("git@github.com:%s/%s.git", owner, name), nil
}

func splitSlug(slug string) (owner, name string, ok bool) {
	parts := strings.Split(slug, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ResolveSSHCommand consults git config core.sshCommand and falls back to
// "ssh" when unset.
func ResolveSSHCommand(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "git", "config", "--get", "core.sshCommand").Output()
	cmd := strings.TrimSpace(string(out))
	if err != nil || cmd == "" {
		return "ssh"
	}
	return cmd
}

// Env returns the GIT_SSH_COMMAND environment variable entry that injects
// the resolved SSH command into a clone/push subprocess's environment.
func Env(ctx context.Context) string {
	return "GIT_SSH_COMMAND=" + ResolveSSHCommand(ctx)
}
