package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/api"
	"evalpanel/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Submit and manage evaluation jobs",
	}
	cmd.AddCommand(newJobsSubmitCommand(ctx))
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsRetryCommand(ctx))
	cmd.AddCommand(newJobsCancelCommand(ctx))
	cmd.AddCommand(newJobsDeleteCommand(ctx))
	cmd.AddCommand(newJobsStuckCommand(ctx))
	cmd.AddCommand(newJobsCountsCommand(ctx))
	cmd.AddCommand(newJobsWatchCommand(ctx))
	return cmd
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		sub      jobs.Submission
		file     string
		messages string
		value    float64
		guests   int
		contract string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a transcript for evaluation",
		Long: "Reads the transcript from --file, or from stdin when --file is omitted or set to '-'.\n" +
			"With --messages the transcript is rendered from a JSON array of chat messages.",
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "Transcript file ('-' for stdin)")
	flags.StringVar(&messages, "messages", "", "JSON message export to render as the transcript ('-' for stdin)")
	flags.StringVar(&sub.TeamID, "team", "", "Team id (defaults to the tenant default team)")
	flags.StringVarP(&sub.Title, "title", "t", "", "Job title")
	flags.StringVarP(&sub.Model, "model", "m", "", "Reasoning model (defaults to jobs.default_model)")
	flags.StringSliceVar(&sub.ClientNames, "client", nil, "Client name (repeatable)")
	flags.StringVar(&sub.EventDate, "event-date", "", "Event date")
	flags.StringVar(&sub.BudgetNumber, "budget", "", "Budget number")
	flags.StringVar(&sub.MeetingDate, "meeting-date", "", "Meeting date")
	flags.StringVar(&sub.MeetingTime, "meeting-time", "", "Meeting time")
	flags.StringVar(&contract, "contract", "", "Contract status: closed, not_closed or na")
	flags.Float64Var(&value, "contract-value", 0, "Contract value")
	flags.IntVar(&guests, "guests", 0, "Guest count")
	cmd.MarkFlagsMutuallyExclusive("file", "messages")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		caller, err := ctx.caller()
		if err != nil {
			return err
		}
		var text string
		if messages != "" {
			text, err = renderMessages(cmd, messages)
		} else {
			text, err = readTranscript(cmd, file)
		}
		if err != nil {
			return err
		}
		sub.Transcript = text
		sub.ContractStatus = contract
		if cmd.Flags().Changed("contract-value") {
			sub.ContractValue = &value
		}
		if cmd.Flags().Changed("guests") {
			sub.GuestCount = &guests
		}
		return ctx.withApp(func(a *app) error {
			job, err := a.api.Submit(cmd.Context(), caller, sub)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.JobResponse{Job: job})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s)\n", job.ID, job.Model)
			return nil
		})
	}
	return cmd
}

func readTranscript(cmd *cobra.Command, file string) (string, error) {
	var reader io.Reader = cmd.InOrStdin()
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("open transcript: %w", err)
		}
		defer f.Close()
		reader = f
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}

func parseStatusFlags(values []string) ([]jobs.Status, error) {
	var out []jobs.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := jobs.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", part)
			}
			out = append(out, status)
		}
	}
	return out, nil
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFilters []string
		page          int
		pageSize      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs visible to the caller, newest first",
	}
	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Page size (defaults to jobs.page_size)")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		caller, err := ctx.caller()
		if err != nil {
			return err
		}
		statuses, err := parseStatusFlags(statusFilters)
		if err != nil {
			return err
		}
		return ctx.withApp(func(a *app) error {
			resp, err := a.api.List(cmd.Context(), caller, statuses, page, pageSize)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs found")
			} else {
				fmt.Fprint(out, renderJobTable(resp.Jobs))
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Page %d (%d per page), %d total. Queued %d, processing %d, retrying %d\n",
				resp.Page, resp.PageSize, resp.Total, resp.Counts.Queued, resp.Counts.Processing, resp.Counts.Retrying)
			return nil
		})
	}
	return cmd
}

func renderJobTable(list []api.Job) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		status := job.Status
		if job.Stuck {
			status += " (stuck)"
		}
		rows = append(rows, []string{
			job.ID,
			job.Title,
			status,
			scoreText(job.FinalScore),
			job.Classification,
			job.RetryLabel,
			job.CreatedAt,
		})
	}
	return renderTable(
		[]column{left("ID"), clipped("Title", 32), left("Status"), right("Score"), left("Class"), left("Retries"), left("Created")},
		rows,
	)
}

func scoreText(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score)
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its module and coordinator results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := ctx.caller()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				detail, err := a.api.Describe(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, detail)
				}
				printJobDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}
}

func printJobDetail(out io.Writer, detail api.JobDetail) {
	job := detail.Job
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader(job.Title, colorize) {
		fmt.Fprintln(out, line)
	}
	status, _ := jobs.ParseStatus(job.Status)
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(status), job.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Retries", statusInfo, job.RetryLabel, colorize))
	if job.Stuck {
		fmt.Fprintln(out, renderStatusLine("Stuck", statusWarn, "no progress past the stuck threshold", colorize))
	}
	if job.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, job.LastError, colorize))
	}
	if job.FinalScore != nil {
		class := aggregate.Classification(job.Classification)
		fmt.Fprintln(out, renderStatusLine("Final score", classificationKind(class), fmt.Sprintf("%d %s", *job.FinalScore, job.Classification), colorize))
	}
	if job.MechanicalScore != nil {
		fmt.Fprintln(out, renderStatusLine("Weighted score", statusInfo, fmt.Sprintf("%d %s", *job.MechanicalScore, job.MechanicalClassification), colorize))
	}
	if job.WeightWarning {
		fmt.Fprintln(out, renderStatusLine("Weights", statusWarn, "module weights did not sum to 100", colorize))
	}
	if job.CoordinatorFallback {
		fmt.Fprintln(out, renderStatusLine("Coordinator", statusWarn, "automatic consolidation used", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Model", statusInfo, orDash(job.ModelUsed), colorize))
	fmt.Fprintln(out, renderStatusLine("Tokens", statusInfo, strconv.FormatInt(job.TokensUsed, 10), colorize))

	if len(detail.Modules) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(detail.Modules))
		for _, module := range detail.Modules {
			rows = append(rows, []string{
				module.AgentKey,
				strconv.Itoa(module.Weight),
				strconv.Itoa(module.Score),
				module.Result.Stars,
				module.Result.Comment,
			})
		}
		fmt.Fprint(out, renderTable(
			[]column{left("Module"), right("Weight"), right("Score"), left("Stars"), clipped("Comment", 60)},
			rows,
		))
		fmt.Fprintln(out)
	}

	if result := job.CoordinatorResult; result != nil {
		if result.Summary != "" {
			fmt.Fprintf(out, "\nSummary:\n%s\n", result.Summary)
		}
		if len(result.Recommendations) > 0 {
			fmt.Fprintln(out, "\nRecommendations:")
			for i, rec := range result.Recommendations {
				fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, rec.Priority, rec.Title)
			}
		}
		for _, warning := range result.Warnings {
			fmt.Fprintf(out, "warning: %s\n", warning)
		}
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>...",
		Short: "Requeue failed jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := ctx.caller()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				result, err := api.RetryFailedJobsByID(cmd.Context(), a.api, caller, args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				for _, item := range result.Jobs {
					switch item.Outcome {
					case api.RetryJobNotFound:
						fmt.Fprintf(out, "Job %s not found\n", item.ID)
					case api.RetryJobNotFailed:
						fmt.Fprintf(out, "Job %s is not in failed state\n", item.ID)
					case api.RetryJobUpdated:
						fmt.Fprintf(out, "Job %s requeued\n", item.ID)
					}
				}
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>...",
		Short: "Cancel queued, processing or retrying jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := ctx.caller()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				result, err := api.CancelJobsByID(cmd.Context(), a.api, caller, args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				for _, item := range result.Jobs {
					switch item.Outcome {
					case api.CancelJobNotFound:
						fmt.Fprintf(out, "Job %s not found\n", item.ID)
					case api.CancelJobAlreadyTerminal:
						fmt.Fprintf(out, "Job %s already %s\n", item.ID, item.PriorStatus)
					case api.CancelJobUpdated:
						fmt.Fprintf(out, "Job %s cancelled\n", item.ID)
					}
				}
				return nil
			})
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job and its module results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := ctx.caller()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				if err := a.api.Delete(cmd.Context(), caller, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newJobsStuckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stuck",
		Short: "List processing jobs past the stuck threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			caller, err := ctx.caller()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				resp, err := a.api.Stuck(cmd.Context(), caller)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintf(out, "No jobs stuck longer than %d minutes\n", resp.ThresholdMinutes)
					return nil
				}
				fmt.Fprint(out, renderJobTable(resp.Jobs))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func newJobsCountsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show queued, processing and retrying totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			caller, err := ctx.caller()
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				counts, err := a.api.Counts(cmd.Context(), caller)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, counts)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{right("Queued"), right("Processing"), right("Retrying")},
					[][]string{{strconv.Itoa(counts.Queued), strconv.Itoa(counts.Processing), strconv.Itoa(counts.Retrying)}},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}
