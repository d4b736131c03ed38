package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
)

// Reader is the read side the exports need.
type Reader interface {
	Get(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, filter entity.JobFilter) ([]*entity.Job, error)
	ListAudit(ctx context.Context, jobID uuid.UUID) ([]*entity.AuditLog, error)
}

// Service produces XLSX workbooks (as bytes) for the board and audit reports.
type Service struct {
	reader Reader
	logger *slog.Logger
}

func NewService(reader Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, logger: logger}
}

const (
	jobsSheet  = "Jobs"
	auditSheet = "Audit"
	dateLayout = "2006-01-02"
)

var jobHeaders = []string{
	"Job ID",
	"Customer",
	"Product",
	"Priority",
	"SI Qty",
	"Job Qty",
	"Status",
	"Phase",
	"Picking %",
	"Packing %",
	"ProcessData %",
	"Storage %",
	"Start Date",
	"Due Date",
	"Jobsheet No",
	"Reference No",
	"Remark",
}

var auditHeaders = []string{
	"Timestamp",
	"Action",
	"Performed By",
	"Details",
	"Old Value",
	"New Value",
}

// ExportJobsXLSX returns a workbook with one row per job matching filter.
// A zero filter exports the active board.
func (s *Service) ExportJobsXLSX(ctx context.Context, filter entity.JobFilter) ([]byte, error) {
	start := time.Now()

	jobs, err := s.reader.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f, err := newWorkbook(jobsSheet, jobHeaders)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i, j := range jobs {
		phase := ""
		if p, ok := j.Phase(); ok {
			phase = string(p)
		}
		writeRow(f, jobsSheet, i+2,
			j.ID.String(),
			j.Customer,
			j.Product,
			string(j.Priority),
			j.SIQty,
			j.JobQty,
			string(j.Status),
			phase,
			j.PhaseProgress.Picking,
			j.PhaseProgress.Packing,
			j.PhaseProgress.ProcessData,
			j.PhaseProgress.Storage,
			formatDate(j.StartDate),
			formatDate(j.DueDate),
			j.JobsheetNo,
			j.ReferenceNo,
			truncate(j.Remark, 140),
		)
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38) // id
	_ = f.SetColWidth(jobsSheet, "B", "C", 24)
	_ = f.SetColWidth(jobsSheet, "G", "H", 14)
	_ = f.SetColWidth(jobsSheet, "M", "P", 14)
	_ = f.SetColWidth(jobsSheet, "Q", "Q", 48) // remark

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.jobs.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportAuditXLSX returns a workbook with the audit trail of one job,
// oldest entry first. Deleted jobs can still be exported.
func (s *Service) ExportAuditXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	start := time.Now()

	entries, err := s.reader.ListAudit(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}

	f, err := newWorkbook(auditSheet, auditHeaders)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i, e := range entries {
		writeRow(f, auditSheet, i+2,
			e.Timestamp.UTC().Format(time.RFC3339),
			actionLabel(e.Action),
			e.PerformedBy,
			truncate(e.Details, 200),
			truncate(string(e.OldValue), 500),
			truncate(string(e.NewValue), 500),
		)
	}

	_ = f.SetColWidth(auditSheet, "A", "A", 22)
	_ = f.SetColWidth(auditSheet, "B", "C", 14)
	_ = f.SetColWidth(auditSheet, "D", "D", 40)
	_ = f.SetColWidth(auditSheet, "E", "F", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.audit.ok",
		"job_id", jobID.String(),
		"rows", len(entries),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// newWorkbook creates a workbook whose only sheet is name, with a header row.
func newWorkbook(name string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		_ = f.Close()
		return nil, err
	}
	index, err := f.GetSheetIndex(name)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	f.SetActiveSheet(index)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(name, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(name, "A1", last, style)
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func actionLabel(a constants.AuditAction) string {
	return strings.ToUpper(string(a))
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
