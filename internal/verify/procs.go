package verify

import (
	"fmt"
	"os/exec"
	"strings"
)

// ListOpenHandles is the production ProcessLister. It shells to lsof to find
// processes holding files open under root. Best effort: a missing lsof
// binary or a non-zero exit (lsof exits 1 when nothing is open) reports no
// processes instead of failing the check.
func ListOpenHandles(root string) ([]string, error) {
	out, err := exec.Command("lsof", "+D", root, "-F", "pc").Output()
	if err != nil {
		return nil, nil
	}
	return parseLsofProcesses(string(out)), nil
}

// parseLsofProcesses reads lsof -F pc field output: a p<pid> line followed
// by a c<command> line per process.
func parseLsofProcesses(out string) []string {
	var procs []string
	var pid string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 2 {
			continue
		}
		switch line[0] {
		case 'p':
			pid = line[1:]
		case 'c':
			procs = append(procs, fmt.Sprintf("%s (pid %s)", line[1:], pid))
		}
	}
	return procs
}
