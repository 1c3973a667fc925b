package gitx

import (
	"errors"
	"strings"
	"time"
)

// Fake is an in-memory Inspector for tests. Zero value behaves like a clean
// repository on branch main.
type Fake struct {
	Repo       bool
	Stat       Status
	Ops        []string
	Branch     string
	Head       string
	LogEntries []LogEntry
	BranchList []string
	ReflogList []string
	Tracked    map[string]bool
	Modified   map[string]bool
	Commits    map[string]int

	Restored []State
	FailLog  bool
}

func NewFake() *Fake {
	return &Fake{
		Repo:   true,
		Branch: "main",
		Head:   "0123456789abcdef0123456789abcdef01234567",
	}
}

func (f *Fake) IsRepository() bool { return f.Repo }

func (f *Fake) Status() (Status, error) { return f.Stat, nil }

func (f *Fake) ActiveOperations() ([]string, error) { return f.Ops, nil }

func (f *Fake) CurrentBranch() (string, error) { return f.Branch, nil }

func (f *Fake) HeadCommit() (string, error) { return f.Head, nil }

func (f *Fake) Log(since time.Time, grep string, nameOnly bool) ([]LogEntry, error) {
	if f.FailLog {
		return nil, errors.New("gitx: log unavailable")
	}
	if grep == "" {
		return f.LogEntries, nil
	}
	var out []LogEntry
	for _, e := range f.LogEntries {
		if strings.Contains(strings.ToLower(e.Message), strings.ToLower(grep)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) Branches(all bool) ([]string, error) { return f.BranchList, nil }

func (f *Fake) Reflog(since time.Time, grep string) ([]string, error) {
	if grep == "" {
		return f.ReflogList, nil
	}
	var out []string
	for _, e := range f.ReflogList {
		if strings.Contains(strings.ToLower(e), strings.ToLower(grep)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) TrackedWithHistory(path string) (bool, bool, int, error) {
	return f.Tracked[path], f.Modified[path], f.Commits[path], nil
}

func (f *Fake) CaptureState() (State, error) {
	return State{Head: f.Head, Branch: f.Branch}, nil
}

func (f *Fake) RestoreState(s State) error {
	f.Restored = append(f.Restored, s)
	f.Head = s.Head
	return nil
}
