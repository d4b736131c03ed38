package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/export"
	"github.com/joseph-ayodele/packing-tracker/internal/lifecycle"
)

const (
	queueGroup     = "packingd"
	requestTimeout = 30 * time.Second
)

// CommandService exposes the lifecycle engine over NATS request/reply.
type CommandService struct {
	engine   *lifecycle.Engine
	exporter *export.Service
	prefix   string
	logger   *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewCommandService(engine *lifecycle.Engine, exporter *export.Service, prefix string, logger *slog.Logger) *CommandService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandService{engine: engine, exporter: exporter, prefix: prefix, logger: logger}
}

// Subject returns the subject an operation is served on.
func Subject(prefix, op string) string {
	return prefix + "." + op
}

// Start subscribes every operation in a shared queue group so that several
// daemons can serve the same prefix.
func (s *CommandService) Start(nc *nats.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range Ops() {
		op := op
		sub, err := nc.QueueSubscribe(Subject(s.prefix, op), queueGroup, func(msg *nats.Msg) {
			s.serve(op, msg)
		})
		if err != nil {
			s.stopLocked()
			return fmt.Errorf("subscribe %s: %w", op, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("command service started", "prefix", s.prefix, "ops", len(s.subs))
	return nil
}

// Stop drains the subscriptions.
func (s *CommandService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *CommandService) stopLocked() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *CommandService) serve(op string, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	requestID := ""
	if msg.Header != nil {
		requestID = msg.Header.Get(HeaderRequestID)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = common.WithRequestID(ctx, requestID)

	start := time.Now()
	reply := s.Dispatch(ctx, op, msg.Data)
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("encode reply failed", "op", op, "request_id", requestID, "error", err)
		return
	}
	if msg.Reply == "" {
		s.logger.Warn("command without reply subject", "op", op, "request_id", requestID)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("respond failed", "op", op, "request_id", requestID, "error", err)
		return
	}
	s.logger.Debug("command served", "op", op, "request_id", requestID, "ok", reply.OK, "elapsed_ms", time.Since(start).Milliseconds())
}

// Dispatch runs op against the engine. It never returns a Go error; failures
// are encoded in the reply.
func (s *CommandService) Dispatch(ctx context.Context, op string, data []byte) Reply {
	var (
		reply Reply
		err   error
	)
	switch op {
	case OpCreate:
		reply, err = s.create(ctx, data)
	case OpAdvance:
		reply, err = s.advance(ctx, data)
	case OpReverse:
		reply, err = s.reverse(ctx, data)
	case OpDelete:
		reply, err = s.delete(ctx, data)
	case OpUpdate:
		reply, err = s.update(ctx, data)
	case OpProgress:
		reply, err = s.progress(ctx, data)
	case OpComment:
		reply, err = s.comment(ctx, data)
	case OpGet:
		reply, err = s.get(ctx, data)
	case OpList:
		reply, err = s.list(ctx, data)
	case OpAudit:
		reply, err = s.audit(ctx, data)
	case OpExport:
		reply, err = s.export(ctx, data)
	default:
		err = common.NewValidationError(fmt.Sprintf("unknown operation %q", op))
	}
	if err != nil {
		return s.failure(ctx, op, err)
	}
	reply.OK = true
	return reply
}

func (s *CommandService) failure(ctx context.Context, op string, err error) Reply {
	msg := err.Error()
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	code := common.GRPCCode(err)
	s.logger.Warn("command failed", "op", op, "request_id", common.RequestIDFromContext(ctx), "status", code.String(), "error", err)
	return Reply{OK: false, Code: common.ErrorCode(err), Status: code.String(), Error: msg}
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return common.NewValidationError(fmt.Sprintf("malformed request: %v", err))
	}
	return nil
}

func requireActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", common.NewValidationError("actor is required")
	}
	return actor, nil
}

func expect(v int64) []lifecycle.WriteOption {
	if v <= 0 {
		return nil
	}
	return []lifecycle.WriteOption{lifecycle.ExpectVersion(v)}
}

func (s *CommandService) create(ctx context.Context, data []byte) (Reply, error) {
	var cmd CreateCommand
	if err := decode(data, &cmd); err != nil {
		return Reply{}, err
	}
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Reply{}, err
	}
	req, err := lifecycle.DecodeCreateRequest(cmd.Job)
	if err != nil {
		return Reply{}, err
	}
	job, err := s.engine.Create(ctx, req, actor)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Job: job}, nil
}

func (s *CommandService) advance(ctx context.Context, data []byte) (Reply, error) {
	var cmd AdvanceCommand
	if err := decode(data, &cmd); err != nil {
		return Reply{}, err
	}
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(cmd.JobID)
	if err != nil {
		return Reply{}, err
	}
	if cmd.Next {
		job, err := s.engine.AdvanceNext(ctx, id, actor, expect(cmd.ExpectVersion)...)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Job: job, Moved: true}, nil
	}

	if !constants.IsValidStatus(cmd.Status) {
		return Reply{}, common.NewValidationError(fmt.Sprintf("unknown status %q", cmd.Status))
	}
	var phase *constants.Phase
	if cmd.Phase != "" {
		p := constants.Phase(cmd.Phase)
		if !p.Valid() {
			return Reply{}, common.NewValidationError(fmt.Sprintf("unknown phase %q", cmd.Phase))
		}
		phase = &p
	}
	job, err := s.engine.Advance(ctx, id, constants.JobStatus(cmd.Status), phase, actor, expect(cmd.ExpectVersion)...)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Job: job, Moved: true}, nil
}

func (s *CommandService) reverse(ctx context.Context, data []byte) (Reply, error) {
	var cmd ReverseCommand
	if err := decode(data, &cmd); err != nil {
		return Reply{}, err
	}
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(cmd.JobID)
	if err != nil {
		return Reply{}, err
	}
	seen := &entity.Job{ID: id, Version: cmd.Version}
	if cmd.Version <= 0 {
		if seen, err = s.engine.Get(ctx, id); err != nil {
			return Reply{}, err
		}
	}
	job, err := s.engine.Reverse(ctx, seen, actor)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Job: job, Moved: true}, nil
}

func (s *CommandService) delete(ctx context.Context, data []byte) (Reply, error) {
	var cmd DeleteCommand
	if err := decode(data, &cmd); err != nil {
		return Reply{}, err
	}
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(cmd.JobID)
	if err != nil {
		return Reply{}, err
	}
	job, err := s.engine.SoftDelete(ctx, id, actor, expect(cmd.ExpectVersion)...)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Job: job}, nil
}

func (s *CommandService) update(ctx context.Context, data []byte) (Reply, error) {
	var cmd UpdateCommand
	if err := decode(data, &cmd); err != nil {
		return Reply{}, err
	}
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(cmd.JobID)
	if err != nil {
		return Reply{}, err
	}
	job, err := s.engine.UpdateFields(ctx, id, cmd.Patch, actor, expect(cmd.ExpectVersion)...)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Job: job}, nil
}

func (s *CommandService) progress(ctx context.Context, data []byte) (Reply, error) {
	var cmd ProgressCommand
	if err := decode(data, &cmd); err != nil {
		return Reply{}, err
	}
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(cmd.JobID)
	if err != nil {
		return Reply{}, err
	}
	res, err := s.engine.SaveProgress(ctx, id, cmd.Progress, constants.Phase(cmd.Phase), cmd.Advance, actor)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Job: res.Job, Moved: res.Moved}, nil
}

func (s *CommandService) comment(ctx context.Context, data []byte) (Reply, error) {
	var cmd CommentCommand
	if err := decode(data, &cmd); err != nil {
		return Reply{}, err
	}
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(cmd.JobID)
	if err != nil {
		return Reply{}, err
	}
	if err := s.engine.AddComment(ctx, id, cmd.Text, actor); err != nil {
		return Reply{}, err
	}
	return Reply{}, nil
}

func (s *CommandService) get(ctx context.Context, data []byte) (Reply, error) {
	var q JobQuery
	if err := decode(data, &q); err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(q.JobID)
	if err != nil {
		return Reply{}, err
	}
	job, err := s.engine.Get(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Job: job}, nil
}

func (s *CommandService) list(ctx context.Context, data []byte) (Reply, error) {
	var q ListQuery
	if len(data) > 0 {
		if err := decode(data, &q); err != nil {
			return Reply{}, err
		}
	}
	filter, err := toFilter(q)
	if err != nil {
		return Reply{}, err
	}
	jobs, err := s.engine.List(ctx, filter)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Jobs: jobs}, nil
}

func toFilter(q ListQuery) (entity.JobFilter, error) {
	filter := entity.JobFilter{IncludeDeleted: q.IncludeDeleted, Customer: strings.TrimSpace(q.Customer)}
	for _, st := range q.Statuses {
		if !constants.IsValidStatus(st) {
			return entity.JobFilter{}, common.NewValidationError(fmt.Sprintf("unknown status %q", st))
		}
		filter.Statuses = append(filter.Statuses, constants.JobStatus(st))
	}
	return filter, nil
}

func (s *CommandService) audit(ctx context.Context, data []byte) (Reply, error) {
	var q JobQuery
	if err := decode(data, &q); err != nil {
		return Reply{}, err
	}
	id, err := common.ParseJobID(q.JobID)
	if err != nil {
		return Reply{}, err
	}
	entries, err := s.engine.ListAudit(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Entries: entries}, nil
}
