// Package ui renders the batch-processing progress display for liveimg.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FileResult reports the outcome of rewriting one file.
type FileResult struct {
	Path    string
	Changed bool
	Err     error
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	doneStyle = lipgloss.NewStyle().Bold(true)
)

type resultMsg FileResult

type finishedMsg struct{ err error }

type model struct {
	bar     progress.Model
	total   int
	done    int
	changed int
	failed  []FileResult
	current string
	err     error
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case resultMsg:
		m.done++
		m.current = msg.Path
		if msg.Err != nil {
			m.failed = append(m.failed, FileResult(msg))
		} else if msg.Changed {
			m.changed++
		}
		return m, m.bar.SetPercent(float64(m.done) / float64(m.total))
	case finishedMsg:
		m.err = msg.err
		return m, tea.Quit
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d/%d", m.bar.View(), m.done, m.total)
	if m.current != "" {
		b.WriteString(dimStyle.Render("  " + m.current))
	}
	b.WriteString("\n")
	if m.done == m.total {
		b.WriteString(doneStyle.Render(fmt.Sprintf("%s rewritten, %s failed\n",
			okStyle.Render(fmt.Sprint(m.changed)),
			failStyle.Render(fmt.Sprint(len(m.failed))))))
		for _, f := range m.failed {
			fmt.Fprintf(&b, "  %s %s: %v\n", failStyle.Render("✗"), f.Path, f.Err)
		}
	}
	return b.String()
}

// RunProgress drives the progress UI while run executes in the background.
// run receives a report callback and must call it once per file.
func RunProgress(total int, run func(report func(FileResult)) error) error {
	m := model{
		bar:   progress.New(progress.WithDefaultGradient()),
		total: total,
	}
	p := tea.NewProgram(m)

	go func() {
		err := run(func(r FileResult) { p.Send(resultMsg(r)) })
		p.Send(finishedMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(model); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
