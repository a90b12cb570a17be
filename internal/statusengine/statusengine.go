// Package statusengine computes remote-tracking status per repo by parsing
// `git status --porcelain --branch`, re-verifying with ls-remote + rev-list
// counting when verification is requested and an upstream is tracked.
package statusengine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scottidler/gx/internal/gitprim"
	"github.com/scottidler/gx/internal/gxerr"
)

// Kind is the tag of a remote status result.
type Kind string

const (
	UpToDate     Kind = "UpToDate"
	Ahead        Kind = "Ahead"
	Behind       Kind = "Behind"
	Diverged     Kind = "Diverged"
	NoUpstream   Kind = "NoUpstream"
	DetachedHead Kind = "DetachedHead"
	StatusError  Kind = "Error"
)

// Status is the result of computing a repo's remote-tracking state.
type Status struct {
	Kind    Kind
	AheadN  int
	BehindN int
	Message string // populated only for StatusError
}

var branchLineRe = regexp.MustCompile(`^## (\S+?)(?:\.\.\.(\S+))?(?: \[(.*)\])?$`)
var aheadRe = regexp.MustCompile(`ahead (\d+)`)
var behindRe = regexp.MustCompile(`behind (\d+)`)

const defaultRemoteTimeout = 10 * time.Second

// Compute returns the remote-tracking status for the repo at path. When
// verify is true and the branch tracks an upstream, it reconciles via
// ls-remote+rev-list rather than trusting a possibly-stale local ref. A
// branch with no upstream reports NoUpstream without contacting the remote.
func Compute(ctx context.Context, path string, verify bool) Status {
	out, err := firstStatusLine(ctx, path)
	if err != nil {
		return Status{Kind: StatusError, Message: err.Error()}
	}

	if strings.Contains(out, "(no branch)") {
		return Status{Kind: DetachedHead}
	}

	match := branchLineRe.FindStringSubmatch(out)
	if match == nil {
		return Status{Kind: StatusError, Message: "unparseable branch line: " + out}
	}

	local := match[1]
	remote := match[2]
	flags := match[3]

	if local == "HEAD" {
		return Status{Kind: DetachedHead}
	}
	if remote == "" {
		return Status{Kind: NoUpstream}
	}

	aheadN, behindN := parseAheadBehind(flags)
	status := toStatus(aheadN, behindN)

	if !verify {
		return status
	}

	reconciled, err := reconcileWithRemote(ctx, path, local, remote)
	if err != nil {
		return Status{Kind: StatusError, Message: err.Error()}
	}
	return reconciled
}

func toStatus(ahead, behind int) Status {
	switch {
	case ahead > 0 && behind > 0:
		return Status{Kind: Diverged, AheadN: ahead, BehindN: behind}
	case ahead > 0:
		return Status{Kind: Ahead, AheadN: ahead}
	case behind > 0:
		return Status{Kind: Behind, BehindN: behind}
	default:
		return Status{Kind: UpToDate}
	}
}

func parseAheadBehind(flags string) (ahead, behind int) {
	if m := aheadRe.FindStringSubmatch(flags); m != nil {
		ahead, _ = strconv.Atoi(m[1])
	}
	if m := behindRe.FindStringSubmatch(flags); m != nil {
		behind, _ = strconv.Atoi(m[1])
	}
	return
}

func firstStatusLine(ctx context.Context, path string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, defaultRemoteTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "git", "status", "--porcelain", "--branch")
	cmd.Dir = path
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if timeoutCtx.Err() != nil {
			return "", fmt.Errorf("timeout: %w", timeoutCtx.Err())
		}
		return "", gxerr.New(gxerr.ToolFailure, "git status --porcelain --branch failed", err)
	}

	lines := strings.SplitN(out.String(), "\n", 2)
	return strings.TrimSpace(lines[0]), nil
}

// reconcileWithRemote re-verifies a local branch/remote pair by comparing
// actual SHAs with ls-remote and counting divergent commits with rev-list,
// rather than trusting the possibly-stale local origin/<branch> ref.
func reconcileWithRemote(ctx context.Context, path, local, remote string) (Status, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, defaultRemoteTimeout)
	defer cancel()

	branch := strings.TrimPrefix(remote, "origin/")
	remoteSHA, err := gitprim.LsRemoteSHA(timeoutCtx, path, branch)
	if err != nil {
		if _, ok := gxerr.KindOf(err); ok {
			return Status{}, err
		}
		return Status{}, fmt.Errorf("timeout: %w", err)
	}

	localSHA, err := gitprim.HeadSHA(timeoutCtx, path, local)
	if err != nil {
		return Status{}, err
	}

	if localSHA == remoteSHA {
		return Status{Kind: UpToDate}, nil
	}

	ahead, err := gitprim.CountCommits(timeoutCtx, path, remoteSHA, localSHA)
	if err != nil {
		return Status{}, err
	}
	behind, err := gitprim.CountCommits(timeoutCtx, path, localSHA, remoteSHA)
	if err != nil {
		return Status{}, err
	}

	return toStatus(ahead, behind), nil
}
