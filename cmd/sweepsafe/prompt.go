package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lyndonlyu/sweepsafe/internal/risk"
)

// terminalPrompter asks for per-file cleanup decisions on stdin. Timeout,
// EOF, and unreadable input all resolve to reject: the safe default is
// always to preserve the file.
type terminalPrompter struct {
	timeout time.Duration
	in      *bufio.Reader
}

func newTerminalPrompter(timeoutSeconds int) *terminalPrompter {
	return &terminalPrompter{
		timeout: time.Duration(timeoutSeconds) * time.Second,
		in:      bufio.NewReader(os.Stdin),
	}
}

func (p *terminalPrompter) Decide(a risk.Assessment) (string, error) {
	fmt.Println()
	fmt.Println(styleBanner.Render("User decision required"))
	fmt.Printf("File:       %s\n", a.Path)
	fmt.Printf("Type:       %s\n", a.TypeName)
	fmt.Printf("Level:      %s\n", renderLevel(a.LevelName))
	fmt.Printf("Importance: %.2f\n", a.Importance)
	fmt.Printf("Confidence: %.2f\n", a.Confidence)

	if len(a.Concerns) > 0 {
		fmt.Println("Concerns:")
		for _, c := range a.Concerns {
			fmt.Println(styleWarn.Render("  " + c))
		}
	}
	if len(a.Recommendations) > 0 {
		fmt.Println("Recommendations:")
		for _, r := range a.Recommendations {
			fmt.Println(styleDim.Render("  " + r))
		}
	}

	fmt.Println("\nOptions: [A]pprove cleanup  [R]eject (preserve)  [S]kip for now  [I]nvestigate further")

	type answer struct {
		choice string
		err    error
	}
	ch := make(chan answer, 1)
	go func() {
		for {
			fmt.Print("Your choice [A/R/S/I]: ")
			line, err := p.in.ReadString('\n')
			if err != nil {
				ch <- answer{"reject", nil}
				return
			}
			switch strings.ToUpper(strings.TrimSpace(line)) {
			case "A", "APPROVE":
				ch <- answer{"approve", nil}
				return
			case "R", "REJECT":
				ch <- answer{"reject", nil}
				return
			case "S", "SKIP":
				ch <- answer{"skip", nil}
				return
			case "I", "INVESTIGATE":
				ch <- answer{"investigate", nil}
				return
			default:
				fmt.Println("Invalid choice. Please enter A, R, S, or I.")
			}
		}
	}()

	select {
	case ans := <-ch:
		return ans.choice, ans.err
	case <-time.After(p.timeout):
		fmt.Println("\nTimed out waiting for input - preserving file.")
		return "reject", nil
	}
}
