package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/attachments"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/lifecycle"
	"github.com/joseph-ayodele/packing-tracker/internal/progress"
)

const dateLayout = "2006-01-02"

func expectOpts(v int64) []lifecycle.WriteOption {
	if v <= 0 {
		return nil
	}
	return []lifecycle.WriteOption{lifecycle.ExpectVersion(v)}
}

func newCreateCommand(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job from a JSON document (file or stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			var data []byte
			if file == "" || file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read job document: %w", err)
			}
			req, err := lifecycle.DecodeCreateRequest(data)
			if err != nil {
				return err
			}
			job, err := a.engine.Create(cmd.Context(), req, actor)
			if err != nil {
				return err
			}
			return a.printJSON(job)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "job document path, - for stdin")
	return cmd
}

func newAdvanceCommand(a *app) *cobra.Command {
	var status, phase string
	var version int64
	cmd := &cobra.Command{
		Use:   "advance <job-id>",
		Short: "Move a job one step forward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			var job *entity.Job
			if status == "" {
				job, err = a.engine.AdvanceNext(cmd.Context(), id, actor, expectOpts(version)...)
			} else {
				if !constants.IsValidStatus(status) {
					return common.NewValidationError(fmt.Sprintf("unknown status %q (want one of %s)", status, strings.Join(constants.StatusStrings(), ", ")))
				}
				var target *constants.Phase
				if phase != "" {
					p := constants.Phase(phase)
					if !p.Valid() {
						return common.NewValidationError(fmt.Sprintf("unknown phase %q", phase))
					}
					target = &p
				}
				job, err = a.engine.Advance(cmd.Context(), id, constants.JobStatus(status), target, actor, expectOpts(version)...)
			}
			if err != nil {
				return err
			}
			return a.printJSON(job)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status (default: the next step)")
	cmd.Flags().StringVar(&phase, "phase", "", "target phase when moving within OnProcess")
	cmd.Flags().Int64Var(&version, "expect-version", 0, "reject if the stored version differs")
	return cmd
}

func newReverseCommand(a *app) *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "reverse <job-id>",
		Short: "Undo exactly one workflow step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			seen := &entity.Job{ID: id, Version: version}
			if version <= 0 {
				if seen, err = a.engine.Get(cmd.Context(), id); err != nil {
					return err
				}
			}
			job, err := a.engine.Reverse(cmd.Context(), seen, actor)
			if err != nil {
				return err
			}
			return a.printJSON(job)
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "version the reversal is based on (default: current)")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Soft-delete an Allocated job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			job, err := a.engine.SoftDelete(cmd.Context(), id, actor, expectOpts(version)...)
			if err != nil {
				return err
			}
			return a.printJSON(job)
		},
	}
	cmd.Flags().Int64Var(&version, "expect-version", 0, "reject if the stored version differs")
	return cmd
}

func newUpdateCommand(a *app) *cobra.Command {
	var (
		customer, product, priority, remark string
		start, due, jobsheet, reference     string
		siQty, jobQty                       int
		version                             int64
	)
	cmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Edit descriptive job fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			var patch entity.JobPatch
			if flags.Changed("customer") {
				patch.Customer = &customer
			}
			if flags.Changed("product") {
				patch.Product = &product
			}
			if flags.Changed("priority") {
				p := constants.Priority(priority)
				patch.Priority = &p
			}
			if flags.Changed("si-qty") {
				patch.SIQty = &siQty
			}
			if flags.Changed("job-qty") {
				patch.JobQty = &jobQty
			}
			if flags.Changed("remark") {
				patch.Remark = &remark
			}
			if flags.Changed("jobsheet") {
				patch.JobsheetNo = &jobsheet
			}
			if flags.Changed("reference") {
				patch.ReferenceNo = &reference
			}
			for name, dst := range map[string]**time.Time{"start": &patch.StartDate, "due": &patch.DueDate} {
				if !flags.Changed(name) {
					continue
				}
				raw, _ := flags.GetString(name)
				t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
				if err != nil {
					return common.NewValidationError(fmt.Sprintf("--%s must be YYYY-MM-DD", name))
				}
				*dst = &t
			}
			job, err := a.engine.UpdateFields(cmd.Context(), id, patch, actor, expectOpts(version)...)
			if err != nil {
				return err
			}
			return a.printJSON(job)
		},
	}
	f := cmd.Flags()
	f.StringVar(&customer, "customer", "", "customer name")
	f.StringVar(&product, "product", "", "product")
	f.StringVar(&priority, "priority", "", "Standard or High")
	f.IntVar(&siQty, "si-qty", 0, "SI quantity")
	f.IntVar(&jobQty, "job-qty", 0, "job quantity")
	f.StringVar(&remark, "remark", "", "free-text remark")
	f.StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	f.StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	f.StringVar(&jobsheet, "jobsheet", "", "jobsheet number (Waiting only)")
	f.StringVar(&reference, "reference", "", "reference number (Waiting only)")
	f.Int64Var(&version, "expect-version", 0, "reject if the stored version differs")
	return cmd
}

// newProgressCommand replays slider values through a progress view, so the
// same debounce, capping and auto-advance rules apply as on the board.
func newProgressCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <job-id> <phase> <value>...",
		Short: "Set phase progress; 100 completes the phase and advances the job",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			phase := constants.Phase(args[1])
			if !phase.Valid() {
				return common.NewValidationError(fmt.Sprintf("unknown phase %q", args[1]))
			}
			values := make([]int, 0, len(args)-2)
			for _, raw := range args[2:] {
				v, err := strconv.Atoi(raw)
				if err != nil {
					return common.NewValidationError(fmt.Sprintf("progress %q is not a number", raw))
				}
				values = append(values, v)
			}

			ctx := cmd.Context()
			dispatcher := a.dispatcher()
			board := progress.NewBoard(a.engine, dispatcher, a.logger,
				progress.WithConfig(progress.ConfigFromCommon(a.cfg.Sync)))

			var flushErr error
			view, err := board.Open(ctx, id, actor, progress.Hooks{
				OnAdvance: func(e progress.AdvanceEvent) {
					fmt.Fprintf(a.out, "moved %s -> %s\n", e.From, e.To)
					if e.CloseView {
						fmt.Fprintln(a.out, "job left the phase board")
					}
				},
				OnError: func(err error) { flushErr = err },
			})
			if err != nil {
				dispatcher.Shutdown(ctx)
				return err
			}
			for _, v := range values {
				applied, err := view.UpdateProgress(phase, v)
				if err != nil {
					dispatcher.Shutdown(ctx)
					return err
				}
				if applied != v {
					fmt.Fprintf(a.out, "%s capped at %d\n", phase, applied)
				}
			}
			// the process exits next, so send the debounced write now
			view.FlushNow()
			dispatcher.Shutdown(ctx)
			board.Close(id)
			if flushErr != nil {
				return flushErr
			}
			return a.printJSON(view.Snapshot().Job)
		},
	}
	return cmd
}

func newCommentCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <job-id> <text>",
		Short: "Add a comment to a job's audit trail",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return a.engine.AddComment(cmd.Context(), id, strings.Join(args[1:], " "), actor)
		},
	}
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			job, err := a.engine.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printJSON(job)
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	var statuses []string
	var customer string
	var deleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := entity.JobFilter{IncludeDeleted: deleted, Customer: customer}
			for _, s := range statuses {
				if !constants.IsValidStatus(s) {
					return common.NewValidationError(fmt.Sprintf("unknown status %q", s))
				}
				filter.Statuses = append(filter.Statuses, constants.JobStatus(s))
			}
			jobs, err := a.engine.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Fprintf(a.out, "%s  %-22s  %-18s  %-20s  v%d\n", j.ID, j.State(), truncate(j.Customer, 18), truncate(j.Product, 20), j.Version)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only these statuses")
	cmd.Flags().StringVar(&customer, "customer", "", "only this customer")
	cmd.Flags().BoolVar(&deleted, "deleted", false, "include soft-deleted jobs")
	return cmd
}

func newAuditCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <job-id>",
		Short: "Show a job's audit trail, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			entries, err := a.engine.ListAudit(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(a.out, "%s  %-8s  %-12s  %s\n", e.Timestamp.Format(time.RFC3339), e.Action, e.PerformedBy, e.Details)
			}
			return nil
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export jobs|audit [job-id]",
		Short: "Write an XLSX report of the active board or of one job's audit trail",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			switch args[0] {
			case "jobs":
				data, err = a.exporter.ExportJobsXLSX(cmd.Context(), entity.ActiveJobs())
			case "audit":
				if len(args) < 2 {
					return common.NewValidationError("export audit needs a job id")
				}
				id, perr := common.ParseJobID(args[1])
				if perr != nil {
					return perr
				}
				data, err = a.exporter.ExportAuditXLSX(cmd.Context(), id)
			default:
				return common.NewValidationError(fmt.Sprintf("unknown export %q", args[0]))
			}
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".xlsx"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(a.out, "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default <kind>.xlsx)")
	return cmd
}

func newAttachCommand(a *app) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "attach <job-id> <file>",
		Short: "Upload a jobsheet scan and note it in the audit trail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			id, err := common.ParseJobID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := a.engine.Get(ctx, id); err != nil {
				return err
			}
			if !a.cfg.Attachments.Enabled() {
				return common.NewAppError(common.CodeConfig, "MINIO_ENDPOINT is not set", common.ErrInvalidInput)
			}
			store, err := attachments.NewMinIOStore(ctx, a.cfg.Attachments, a.logger)
			if err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[1], err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[1], err)
			}
			key, err := store.Put(ctx, id, filepath.Base(args[1]), f, info.Size(), "")
			if err != nil {
				return err
			}
			if err := a.engine.AddComment(ctx, id, "Attached "+key, actor); err != nil {
				return err
			}
			url, err := store.PresignedURL(ctx, key, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\n%s\n", key, url)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expiry, "expiry", 15*time.Minute, "validity of the printed download URL")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the active board whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			updates, err := a.engine.Subscribe(ctx, entity.ActiveJobs())
			if err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case jobs, ok := <-updates:
					if !ok {
						return nil
					}
					fmt.Fprintf(a.out, "-- %s: %d active jobs\n", time.Now().Format(time.TimeOnly), len(jobs))
					for _, j := range jobs {
						fmt.Fprintf(a.out, "%s  %-22s  %3d/%3d/%3d/%3d  %s\n", j.ID, j.State(),
							j.PhaseProgress.Picking, j.PhaseProgress.Packing, j.PhaseProgress.ProcessData, j.PhaseProgress.Storage,
							j.Customer)
					}
				}
			}
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
