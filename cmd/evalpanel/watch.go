package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"evalpanel/internal/api"
	"evalpanel/internal/jobs"
	"evalpanel/internal/supervisor"
)

var (
	watchTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	watchCountsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	watchDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true)

	watchFailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	watchHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		plain bool
		once  bool
	)
	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Follow one job until it finishes, or the job list until interrupted",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print updates as lines instead of the live view")
	cmd.Flags().BoolVar(&once, "once", false, "Print the first list snapshot and exit")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		caller, err := ctx.caller()
		if err != nil {
			return err
		}
		return ctx.withApp(func(a *app) error {
			watchCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			poller := supervisor.NewPoller(a.jobs, a.cfg.ListPollInterval(), a.cfg.DetailPollInterval())
			view := func() api.View {
				return api.View{Now: time.Now(), StuckThreshold: a.jobs.StuckThreshold(), MaxRetries: a.jobs.MaxRetries()}
			}
			out := cmd.OutOrStdout()
			live := !plain && !once && shouldColorize(out)

			if len(args) == 1 {
				updates, err := poller.Subscribe(watchCtx, caller, args[0])
				if err != nil {
					return err
				}
				if !live {
					return printJobUpdates(out, updates, view)
				}
				return runWatch(cmd, newJobWatchModel(updates, view))
			}

			snapshots, err := poller.WatchList(watchCtx, jobs.QueryFor(caller))
			if err != nil {
				return err
			}
			if !live {
				return printListUpdates(out, snapshots, view, once)
			}
			return runWatch(cmd, newListWatchModel(snapshots, view))
		})
	}
	return cmd
}

func runWatch(cmd *cobra.Command, model tea.Model) error {
	p := tea.NewProgram(model, tea.WithContext(cmd.Context()), tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
	_, err := p.Run()
	return err
}

func printJobUpdates(out io.Writer, updates <-chan *jobs.Job, view func() api.View) error {
	for job := range updates {
		fmt.Fprintln(out, jobLine(api.FromJob(job, view())))
	}
	return nil
}

func printListUpdates(out io.Writer, snapshots <-chan supervisor.ListSnapshot, view func() api.View, once bool) error {
	for snap := range snapshots {
		fmt.Fprintln(out, countsLine(snap.At, api.FromCounts(snap.Counts)))
		if once {
			if len(snap.Page.Jobs) > 0 {
				fmt.Fprint(out, renderJobTable(api.FromJobs(snap.Page.Jobs, view())))
				fmt.Fprintln(out)
			}
			return nil
		}
	}
	return nil
}

func jobLine(job api.Job) string {
	parts := []string{job.ID, job.Status, job.RetryLabel}
	if job.Stuck {
		parts = append(parts, "stuck")
	}
	if job.FinalScore != nil {
		parts = append(parts, fmt.Sprintf("score %d %s", *job.FinalScore, job.Classification))
	}
	if job.LastError != "" {
		parts = append(parts, "error: "+job.LastError)
	}
	return strings.Join(parts, "  ")
}

func countsLine(at time.Time, counts api.Counts) string {
	return fmt.Sprintf("%s  queued %d  processing %d  retrying %d",
		at.Format("15:04:05"), counts.Queued, counts.Processing, counts.Retrying)
}

type jobUpdateMsg struct{ job *jobs.Job }

type snapshotMsg struct{ snap supervisor.ListSnapshot }

type watchClosedMsg struct{}

func waitForJob(updates <-chan *jobs.Job) tea.Cmd {
	return func() tea.Msg {
		job, ok := <-updates
		if !ok {
			return watchClosedMsg{}
		}
		return jobUpdateMsg{job: job}
	}
}

func waitForSnapshot(snapshots <-chan supervisor.ListSnapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-snapshots
		if !ok {
			return watchClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

func isQuitKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return true
	}
	return false
}

type jobWatchModel struct {
	updates <-chan *jobs.Job
	view    func() api.View
	spinner spinner.Model
	job     *api.Job
	done    bool
}

func newJobWatchModel(updates <-chan *jobs.Job, view func() api.View) jobWatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = watchCountsStyle
	return jobWatchModel{updates: updates, view: view, spinner: s}
}

func (m jobWatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForJob(m.updates))
}

func (m jobWatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isQuitKey(msg) {
			return m, tea.Quit
		}
	case jobUpdateMsg:
		job := api.FromJob(msg.job, m.view())
		m.job = &job
		return m, waitForJob(m.updates)
	case watchClosedMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m jobWatchModel) View() string {
	if m.job == nil {
		return m.spinner.View() + " loading job...\n"
	}
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render(m.job.Title))
	b.WriteString("\n")
	status := m.job.Status
	switch {
	case m.job.Status == string(jobs.StatusCompleted):
		status = watchDoneStyle.Render(status)
	case m.job.Status == string(jobs.StatusFailed) || m.job.Status == string(jobs.StatusCancelled):
		status = watchFailStyle.Render(status)
	case !m.done:
		status = m.spinner.View() + " " + status
	}
	fmt.Fprintf(&b, "%s  %s\n", status, m.job.RetryLabel)
	if m.job.FinalScore != nil {
		fmt.Fprintf(&b, "score %d %s\n", *m.job.FinalScore, m.job.Classification)
	}
	if m.job.LastError != "" {
		b.WriteString(watchFailStyle.Render("error: "+m.job.LastError) + "\n")
	}
	if !m.done {
		b.WriteString(watchHintStyle.Render("q to quit") + "\n")
	}
	return b.String()
}

type listWatchModel struct {
	snapshots <-chan supervisor.ListSnapshot
	view      func() api.View
	spinner   spinner.Model
	snap      *supervisor.ListSnapshot
}

func newListWatchModel(snapshots <-chan supervisor.ListSnapshot, view func() api.View) listWatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = watchCountsStyle
	return listWatchModel{snapshots: snapshots, view: view, spinner: s}
}

func (m listWatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.snapshots))
}

func (m listWatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isQuitKey(msg) {
			return m, tea.Quit
		}
	case snapshotMsg:
		m.snap = &msg.snap
		return m, waitForSnapshot(m.snapshots)
	case watchClosedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m listWatchModel) View() string {
	if m.snap == nil {
		return m.spinner.View() + " loading jobs...\n"
	}
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("Evaluation jobs"))
	b.WriteString("\n")
	b.WriteString(m.spinner.View() + " " + watchCountsStyle.Render(countsLine(m.snap.At, api.FromCounts(m.snap.Counts))))
	b.WriteString("\n")
	if len(m.snap.Page.Jobs) > 0 {
		b.WriteString(renderJobTable(api.FromJobs(m.snap.Page.Jobs, m.view())))
		b.WriteString("\n")
	}
	b.WriteString(watchHintStyle.Render("q to quit") + "\n")
	return b.String()
}
