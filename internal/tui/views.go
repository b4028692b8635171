package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/appify/internal/wizard"
)

// maxPreviewItems caps how many result items the result step prints.
const maxPreviewItems = 5

// View renders the UI
func (m *WizardModel) View() string {
	if m.quitting {
		return ""
	}

	s := m.ctrl.Snapshot()

	var b strings.Builder
	b.WriteString(m.renderHeader(s))
	b.WriteString("\n\n")

	if s.Error != "" && s.Step != wizard.StepShowingResult {
		b.WriteString(m.styles.Border.
			BorderForeground(lipgloss.Color("196")).
			Render(m.styles.Error.Render("✗ ") + s.Error))
		b.WriteString("\n\n")
	}

	switch {
	case s.Step == wizard.StepShowingResult:
		b.WriteString(m.renderResult(s))
		if s.Loading {
			b.WriteString("\n" + m.spinner.View() + " " + m.styles.Muted.Render(loadingText(s.Step)))
		}
		b.WriteString("\n")
		b.WriteString(m.renderHelpLine())
	case s.Loading:
		b.WriteString(m.spinner.View() + " " + m.styles.Status.Render(loadingText(s.Step)))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderStepIntro(s))
		if m.form != nil {
			b.WriteString(m.form.View())
		}
	}
	return b.String()
}

// renderHeader renders the title, the step and the step progress bar
func (m *WizardModel) renderHeader(s wizard.State) string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Appify"))
	b.WriteString("\n")
	step := fmt.Sprintf("Step %d of %d: %s", int(s.Step), int(wizard.StepShowingResult), s.Step.Title())
	b.WriteString(m.styles.Status.Render(step))
	b.WriteString("\n")
	b.WriteString(m.renderProgressBar(int(s.Step)-1, int(wizard.StepShowingResult)-1))
	return b.String()
}

// renderProgressBar renders an ASCII progress bar
func (m *WizardModel) renderProgressBar(done, total int) string {
	barWidth := 40
	filled := 0
	if total > 0 {
		filled = done * barWidth / total
	}

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar.WriteString("█")
		} else {
			bar.WriteString("░")
		}
	}
	bar.WriteString("]")
	return m.styles.Status.Render(bar.String())
}

func (m *WizardModel) renderStepIntro(s wizard.State) string {
	var b strings.Builder
	switch s.Step {
	case wizard.StepSelectingActor:
		if s.User != nil {
			b.WriteString(m.styles.Muted.Render("Signed in as ") + m.styles.Subtitle.Render(s.User.Username))
			b.WriteString("\n")
		}
		if len(s.Actors) == 0 {
			b.WriteString(m.styles.Warning.Render("No actors found"))
			b.WriteString("\n")
		}
	case wizard.StepConfiguringInput:
		if s.Actor != nil {
			name := s.Actor.Title
			if name == "" {
				name = s.Actor.Name
			}
			b.WriteString(m.styles.Subtitle.Bold(true).Render(name))
			b.WriteString("\n")
			if s.Actor.Description != "" {
				b.WriteString(m.styles.Muted.Render(s.Actor.Description))
				b.WriteString("\n")
			}
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

// renderResult renders the outcome of the run request
func (m *WizardModel) renderResult(s wizard.State) string {
	r := s.Result
	if r == nil {
		return m.styles.Muted.Render("No result")
	}

	var b strings.Builder
	if r.Status == wizard.ResultError {
		b.WriteString(m.styles.Error.Render("✗ " + s.Error))
		b.WriteString("\n\n")
		b.WriteString(m.styles.Border.
			BorderForeground(lipgloss.Color("196")).
			Render(r.Message))
		return b.String()
	}

	run := r.Run
	b.WriteString(m.styles.Success.Render("✓ Actor started"))
	b.WriteString("\n\n")

	rows := []string{
		fmt.Sprintf("Run ID:    %s", run.ID),
		fmt.Sprintf("Status:    %s", m.styles.statusStyle(run.Status).Render(string(run.Status))),
	}
	if run.StartedAt != nil {
		rows = append(rows, fmt.Sprintf("Started:   %s", run.StartedAt.Local().Format(time.DateTime)))
	}
	if run.FinishedAt != nil {
		rows = append(rows, fmt.Sprintf("Finished:  %s", run.FinishedAt.Local().Format(time.DateTime)))
	}
	if d := r.ExecutionTime(); d > 0 {
		rows = append(rows, fmt.Sprintf("Duration:  %s", formatDuration(d)))
	}
	if r.ItemsLoaded {
		rows = append(rows, fmt.Sprintf("Results:   %s", m.styles.Success.Render(fmt.Sprintf("%d", r.ResultCount))))
	}
	b.WriteString(m.styles.Border.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	if r.Message != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render(r.Message))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render(m.notice))
		b.WriteString("\n")
	}

	if run.Status.IsActive() {
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render("Waiting for the run to finish..."))
		b.WriteString("\n")
	}

	if r.ItemsLoaded && len(r.Items) > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.Subtitle.Bold(true).Render("Results"))
		b.WriteString("\n")
		for i, item := range r.Items {
			if i == maxPreviewItems {
				b.WriteString(m.styles.Muted.Render(fmt.Sprintf("... and %d more", r.ResultCount-maxPreviewItems)))
				b.WriteString("\n")
				break
			}
			b.WriteString(m.styles.Code.Render(prettyJSON(item)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderHelpLine renders the help line at the bottom
func (m *WizardModel) renderHelpLine() string {
	helpItems := []string{
		m.styles.Key.Render("n") + " new run",
		m.styles.Key.Render("r") + " refresh",
		m.styles.Key.Render("q") + " quit",
	}
	return m.styles.Help.Render(strings.Join(helpItems, " • "))
}

func loadingText(step wizard.Step) string {
	switch step {
	case wizard.StepAwaitingCredential:
		return "Validating API key..."
	case wizard.StepSelectingActor:
		return "Fetching actor schema..."
	case wizard.StepExecuting:
		return "Running actor..."
	case wizard.StepShowingResult:
		return "Refreshing run..."
	default:
		return "Loading..."
	}
}

func prettyJSON(raw json.RawMessage) string {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
