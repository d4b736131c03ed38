package server

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
)

const (
	ExportJobs  = "jobs"
	ExportAudit = "audit"
)

func (s *CommandService) export(ctx context.Context, data []byte) (Reply, error) {
	if s.exporter == nil {
		return Reply{}, common.NewPreconditionFailed("export is not enabled on this server")
	}
	var q ExportQuery
	if err := decode(data, &q); err != nil {
		return Reply{}, err
	}

	switch q.Kind {
	case ExportJobs, "":
		xlsx, err := s.exporter.ExportJobsXLSX(ctx, entity.ActiveJobs())
		if err != nil {
			s.logger.Error("export.xlsx.failed", "kind", ExportJobs, "error", err)
			return Reply{}, err
		}
		return Reply{XLSX: xlsx}, nil
	case ExportAudit:
		id, err := common.ParseJobID(q.JobID)
		if err != nil {
			return Reply{}, err
		}
		xlsx, err := s.exporter.ExportAuditXLSX(ctx, id)
		if err != nil {
			s.logger.Error("export.xlsx.failed", "kind", ExportAudit, "job_id", id, "error", err)
			return Reply{}, err
		}
		return Reply{XLSX: xlsx}, nil
	}
	return Reply{}, common.NewValidationError(fmt.Sprintf("unknown export kind %q", q.Kind))
}
