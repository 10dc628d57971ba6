package cli

import (
	"context"
	"fmt"
	"io"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/qaharvest/internal/client"
	"github.com/raphaelgruber/qaharvest/internal/models"
)

// isTerminalFD is swapped in tests.
var isTerminalFD = term.IsTerminal

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// stageProgress maps a job status to a bar position.
func stageProgress(s models.JobStatus) float64 {
	switch s {
	case models.JobStatusQueued:
		return 0.1
	case models.JobStatusProcessing:
		return 0.5
	case models.JobStatusCompleted, models.JobStatusFailed:
		return 1
	}
	return 0
}

// jobUpdateMsg carries a job state pushed by the server.
type jobUpdateMsg struct {
	job models.Job
}

// watchDoneMsg is sent when the watch stream ends.
type watchDoneMsg struct {
	err error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	jobID    string
	job      *models.Job
	updates  <-chan tea.Msg
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(jobID string, updates <-chan tea.Msg) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		jobID:    jobID,
		updates:  updates,
		progress: prog,
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.progress.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case jobUpdateMsg:
		job := msg.job
		m.job = &job
		if job.Status.IsTerminal() {
			m.done = true
			if job.Status == models.JobStatusFailed {
				m.err = jobError(job)
			}
			return m, tea.Quit
		}
		return m, m.waitForUpdate()

	case watchDoneMsg:
		m.done = true
		if msg.err != nil {
			m.err = fmt.Errorf("watch job: %w", msg.err)
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.job == nil {
		return "Waiting for job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	bar := m.progress.ViewAs(stageProgress(m.job.Status))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, m.job.URL, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'qaharvest job %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	if m.job != nil {
		return m.theme.completedStyle().Render("✓ Completed") +
			fmt.Sprintf("\n\n  Q&A pairs saved: %d\n", m.job.QACount)
	}
	return m.theme.completedStyle().Render("✓ Completed\n")
}

func (m progressModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.updates
		if !ok {
			return watchDoneMsg{}
		}
		return msg
	}
}

func jobError(job models.Job) error {
	if job.Error != nil && *job.Error != "" {
		return fmt.Errorf("%s", *job.Error)
	}
	return fmt.Errorf("job failed with unknown error")
}

// streamJob runs the watch in the background and forwards every update as
// a tea message. The channel is closed when the stream ends.
func streamJob(ctx context.Context, c *client.Client, jobID string) <-chan tea.Msg {
	out := make(chan tea.Msg, 4)
	go func() {
		defer close(out)
		err := c.WatchJob(ctx, jobID, func(job models.Job) error {
			select {
			case out <- jobUpdateMsg{job: job}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			out <- watchDoneMsg{err: err}
		}
	}()
	return out
}

// RunJobProgress shows the progress UI for a job until it finishes.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunJobProgress(ctx context.Context, c *client.Client, jobID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(jobID, streamJob(ctx, c, jobID)))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// Ctrl+C leaves the job running on the server.
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}

// WatchPlain prints one line per status change. Used when stdout is not a
// terminal.
func WatchPlain(ctx context.Context, w io.Writer, c *client.Client, jobID string) error {
	var final *models.Job
	err := c.WatchJob(ctx, jobID, func(job models.Job) error {
		fmt.Fprintf(w, "%s %s\n", job.ID, job.Status)
		final = &job
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}

	if final != nil {
		switch final.Status {
		case models.JobStatusFailed:
			return jobError(*final)
		case models.JobStatusCompleted:
			fmt.Fprintf(w, "Q&A pairs saved: %d\n", final.QACount)
		}
	}
	return nil
}
