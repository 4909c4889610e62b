package app

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/mongopenter/ports"
	"github.com/rs/zerolog"
)

// closeTimeout bounds connection release when the run context is done.
const closeTimeout = 10 * time.Second

// task is one named provisioning operation.
type task struct {
	name    string
	status  string
	pending bool
	run     func(ctx context.Context, tr *taskRun) error
}

// taskRun is the state handed to a running task.
type taskRun struct {
	conn   ports.Conn
	report *Report
	task   *TaskReport
	logger zerolog.Logger
}

func (p *Provisioner) task(name string) (task, error) {
	switch name {
	case TaskCreateShards:
		return task{name, "creating shards", p.plan.Shards != nil, p.createShards}, nil
	case TaskCreateDatabases:
		return task{name, "creating databases", p.plan.Databases != nil, p.createDatabases}, nil
	case TaskCreateCollections:
		return task{name, "creating collections", p.plan.Collections != nil, p.createCollections}, nil
	case TaskCreateDocuments:
		return task{name, "creating documents", p.plan.Documents != nil, p.createDocuments}, nil
	case TaskAddShards:
		return task{name, "tagging shards", p.plan.ShardTags != nil, p.addShards}, nil
	}
	return task{}, fmt.Errorf("unknown task %q", name)
}

// run executes the named tasks strictly in sequence over one connection.
// The first failing task aborts the rest. Once acquired, the connection is
// closed exactly once before run returns.
func (p *Provisioner) run(ctx context.Context, entry string, names []string) (report Report, err error) {
	start := p.clock.Now()
	report = Report{RunID: p.ids.New(), Entry: entry}
	logger := p.logger.With().Str("run_id", report.RunID).Str("entry", entry).Logger()

	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		p.metrics.RunsTotal.WithLabelValues(entry, status).Inc()
		p.metrics.RunDuration.WithLabelValues(entry).Observe(p.clock.Now().Sub(start).Seconds())
	}()

	if p.setup == nil || p.url == "" {
		logger.Error().Err(ErrNoConfiguration).Msg("cannot run")
		return report, ErrNoConfiguration
	}

	tasks := make([]task, 0, len(names))
	pending := false
	for _, name := range names {
		t, err := p.task(name)
		if err != nil {
			return report, err
		}
		tasks = append(tasks, t)
		pending = pending || t.pending
	}

	if !pending {
		for _, t := range tasks {
			logger.Info().Str("task", t.name).Msg(t.status + ": nothing to do")
		}
		return report, nil
	}

	conn, err := p.store.Connect(ctx, p.url)
	if err != nil {
		logger.Error().Err(err).Msg("failed to get connection")
		return report, newError(ErrConnection, "connect", err)
	}
	report.Connected = true
	defer p.release(ctx, conn, logger)

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tr := &taskRun{
			conn:   conn,
			report: &report,
			task:   &TaskReport{Name: t.name},
			logger: logger.With().Str("task", t.name).Logger(),
		}
		taskStart := p.clock.Now()
		tr.logger.Info().Msg(t.status)

		var taskErr error
		if t.pending {
			taskErr = t.run(ctx, tr)
		}

		tr.task.Duration = p.clock.Now().Sub(taskStart)
		report.Tasks = append(report.Tasks, *tr.task)
		p.metrics.TaskDuration.WithLabelValues(t.name).Observe(tr.task.Duration.Seconds())

		if taskErr != nil {
			tr.logger.Error().Err(taskErr).Msg("task failed")
			return report, taskErr
		}
		tr.logger.Debug().
			Int("created", tr.task.Created).
			Int("skipped", tr.task.Skipped).
			Dur("duration", tr.task.Duration).
			Msg("task done")
	}

	logger.Info().Int("tasks", len(tasks)).Msg("provisioning complete")
	return report, nil
}

// release closes conn even when ctx is already done.
func (p *Provisioner) release(ctx context.Context, conn ports.Conn, logger zerolog.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to close connection")
	}
}
