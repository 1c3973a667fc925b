// Package gitx wraps the git command line behind an Inspector interface so
// the safety pipeline never shells out from business logic and tests can run
// against a fake repository state.
package gitx

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Status describes working-tree cleanliness.
type Status struct {
	Staged    []string `json:"staged"`
	Unstaged  []string `json:"unstaged"`
	Untracked []string `json:"untracked"`
}

func (s Status) Clean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0 && len(s.Untracked) == 0
}

// LogEntry is one commit from git log.
type LogEntry struct {
	Hash    string   `json:"hash"`
	Message string   `json:"message"`
	Files   []string `json:"files,omitempty"`
}

// State is a restorable snapshot of repository position.
type State struct {
	Head              string `json:"head"`
	Branch            string `json:"branch"`
	WorkingTreeStatus string `json:"working_tree_status"`
	StashList         string `json:"stash_list"`
}

// Inspector is the capability contract the safety pipeline consumes. The
// production implementation is CLI; tests use Fake.
type Inspector interface {
	IsRepository() bool
	Status() (Status, error)
	ActiveOperations() ([]string, error)
	CurrentBranch() (string, error)
	HeadCommit() (string, error)
	Log(since time.Time, grep string, nameOnly bool) ([]LogEntry, error)
	Branches(all bool) ([]string, error)
	Reflog(since time.Time, grep string) ([]string, error)
	TrackedWithHistory(path string) (tracked bool, modified bool, commits int, err error)
	CaptureState() (State, error)
	RestoreState(s State) error
}

// CLI shells out to git in a fixed working directory.
type CLI struct {
	workDir string
}

func NewCLI(workDir string) *CLI {
	return &CLI{workDir: workDir}
}

func (c *CLI) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.workDir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (c *CLI) IsRepository() bool {
	_, err := c.git("rev-parse", "--git-dir")
	return err == nil
}

// Status parses git status --porcelain. The first column is the index state,
// the second the working tree state.
func (c *CLI) Status() (Status, error) {
	out, err := c.git("status", "--porcelain")
	if err != nil {
		return Status{}, fmt.Errorf("gitx: status: %w", err)
	}
	var st Status
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		switch {
		case strings.HasPrefix(line, "??"):
			st.Untracked = append(st.Untracked, path)
		default:
			if strings.ContainsRune("AMDRC", rune(line[0])) {
				st.Staged = append(st.Staged, path)
			}
			if strings.ContainsRune("MD", rune(line[1])) {
				st.Unstaged = append(st.Unstaged, path)
			}
		}
	}
	return st, nil
}

// operationMarkers maps .git marker files to the in-progress operation they
// indicate.
var operationMarkers = map[string]string{
	"MERGE_HEAD":       "merge",
	"REBASE_HEAD":      "rebase",
	"CHERRY_PICK_HEAD": "cherry-pick",
	"REVERT_HEAD":      "revert",
	"BISECT_LOG":       "bisect",
}

// ActiveOperations checks the .git directory for the marker files git
// leaves behind while a merge, rebase, cherry-pick, revert, or bisect is in
// progress.
func (c *CLI) ActiveOperations() ([]string, error) {
	gitDir, err := c.git("rev-parse", "--git-dir")
	if err != nil {
		return nil, fmt.Errorf("gitx: rev-parse --git-dir: %w", err)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(c.workDir, gitDir)
	}
	var ops []string
	for marker, op := range operationMarkers {
		if _, err := os.Stat(filepath.Join(gitDir, marker)); err == nil {
			ops = append(ops, op)
		}
	}
	sort.Strings(ops)
	return ops, nil
}

func (c *CLI) CurrentBranch() (string, error) {
	out, err := c.git("branch", "--show-current")
	if err != nil {
		return "HEAD", nil
	}
	if out == "" {
		return "HEAD", nil
	}
	return out, nil
}

func (c *CLI) HeadCommit() (string, error) {
	out, err := c.git("rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitx: rev-parse HEAD: %w", err)
	}
	return out, nil
}

// Log returns commits since the given time, optionally filtered by a grep
// pattern on the message. With nameOnly, each entry carries its changed
// file list.
func (c *CLI) Log(since time.Time, grep string, nameOnly bool) ([]LogEntry, error) {
	args := []string{"log", "--since=" + since.Format("2006-01-02"), "--all"}
	if grep != "" {
		args = append(args, "--grep="+grep, "-i")
	}
	if nameOnly {
		args = append(args, "--name-only", "--pretty=format:%H %s")
	} else {
		args = append(args, "--oneline")
	}
	out, err := c.git(args...)
	if err != nil {
		return nil, fmt.Errorf("gitx: log: %w", err)
	}
	if out == "" {
		return nil, nil
	}

	var entries []LogEntry
	if !nameOnly {
		for _, line := range strings.Split(out, "\n") {
			hash, msg, ok := strings.Cut(line, " ")
			if !ok {
				continue
			}
			entries = append(entries, LogEntry{Hash: hash, Message: msg})
		}
		return entries, nil
	}

	var cur *LogEntry
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if hash, msg, ok := cutCommitLine(line); ok {
			if cur != nil {
				entries = append(entries, *cur)
			}
			cur = &LogEntry{Hash: hash, Message: msg}
			continue
		}
		if cur != nil {
			cur.Files = append(cur.Files, line)
		}
	}
	if cur != nil {
		entries = append(entries, *cur)
	}
	return entries, nil
}

// cutCommitLine recognizes "<40-hex> <subject>" lines in name-only output.
func cutCommitLine(line string) (hash, msg string, ok bool) {
	hash, msg, found := strings.Cut(line, " ")
	if !found && len(line) == 40 {
		hash, msg, found = line, "", true
	}
	if !found || len(hash) != 40 {
		return "", "", false
	}
	for _, r := range hash {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", "", false
		}
	}
	return hash, msg, true
}

func (c *CLI) Branches(all bool) ([]string, error) {
	args := []string{"branch", "--format=%(refname:short)"}
	if all {
		args = append(args, "-a")
	}
	out, err := c.git(args...)
	if err != nil {
		return nil, fmt.Errorf("gitx: branch: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (c *CLI) Reflog(since time.Time, grep string) ([]string, error) {
	args := []string{"reflog", "--since", since.Format("2006-01-02")}
	out, err := c.git(args...)
	if err != nil {
		// Empty or missing reflog is not an error worth surfacing.
		return nil, nil
	}
	var entries []string
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if grep == "" || strings.Contains(strings.ToLower(line), strings.ToLower(grep)) {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// TrackedWithHistory reports whether path is tracked, has uncommitted
// modifications, and how many recent commits touched it (capped at 5).
func (c *CLI) TrackedWithHistory(path string) (bool, bool, int, error) {
	_, err := c.git("ls-files", "--error-unmatch", path)
	tracked := err == nil

	modified := false
	if tracked {
		out, err := c.git("status", "--porcelain", "--", path)
		if err == nil && out != "" {
			modified = true
		}
	}

	commits := 0
	if out, err := c.git("log", "--oneline", "-n", "5", "--", path); err == nil && out != "" {
		commits = len(strings.Split(out, "\n"))
	}
	return tracked, modified, commits, nil
}

func (c *CLI) CaptureState() (State, error) {
	head, err := c.HeadCommit()
	if err != nil {
		return State{}, err
	}
	branch, _ := c.CurrentBranch()
	statusOut, _ := c.git("status", "--porcelain")
	stashOut, _ := c.git("stash", "list")
	return State{
		Head:              head,
		Branch:            branch,
		WorkingTreeStatus: statusOut,
		StashList:         stashOut,
	}, nil
}

// RestoreState hard-resets to the captured HEAD only when the current HEAD
// differs from it.
func (c *CLI) RestoreState(s State) error {
	if s.Head == "" {
		return nil
	}
	cur, err := c.HeadCommit()
	if err != nil {
		return err
	}
	if cur == s.Head {
		return nil
	}
	if out, err := c.git("reset", "--hard", s.Head); err != nil {
		return fmt.Errorf("gitx: reset --hard %s: %w: %s", s.Head, err, out)
	}
	return nil
}
