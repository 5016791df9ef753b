package dashboard

import "github.com/charmbracelet/huh"

// PromptTarget asks the operator which consuma server to watch, the way
// tui/setup.go's forms prompt for load-test target/rate/duration — reduced
// here to the one field a dashboard actually needs.
func PromptTarget(defaultURL string) (string, error) {
	target := defaultURL
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server address").
				Description("Base URL of the consuma server to monitor").
				Placeholder(defaultURL).
				Value(&target),
		),
	).WithTheme(MakeNeonTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	if target == "" {
		target = defaultURL
	}
	return target, nil
}
