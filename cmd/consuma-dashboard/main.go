// Command consuma-dashboard is a companion TUI that polls a running
// consumaserver's GET /healthz and GET /requests/stats and renders a live
// status board. Structurally this is the teacher's cmd/sayl entrypoint —
// flag parsing, panic recovery, then handing off to a bubbletea program —
// reduced from "configure and run a load test" to "point a monitor at a
// server".
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Amr-9/consuma/internal/dashboard"
	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	var target string
	var skipPrompt bool
	flag.StringVar(&target, "target", "http://localhost:8080", "consuma server base URL")
	flag.BoolVar(&skipPrompt, "yes", false, "skip the interactive target prompt and use -target directly")
	flag.Parse()

	if !skipPrompt {
		chosen, err := dashboard.PromptTarget(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "prompt cancelled: %v\n", err)
			os.Exit(1)
		}
		target = chosen
	}

	p := tea.NewProgram(dashboard.New(target))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		os.Exit(1)
	}
}
