package app

import (
	"context"
)

// notify runs the hooks registered for event over a fresh connection.
// Hooks run in registration order; the first failure stops the rest.
// With no hooks registered nothing connects.
func (p *Provisioner) notify(ctx context.Context, event string, report *Report) error {
	hooks := p.extensions.Hooks(event)
	if len(hooks) == 0 {
		return nil
	}

	logger := p.logger.With().Str("run_id", report.RunID).Str("event", event).Logger()

	conn, err := p.store.Connect(ctx, p.url)
	if err != nil {
		logger.Error().Err(err).Msg("failed to get connection for hooks")
		return newError(ErrConnection, "connect for "+event, err)
	}
	defer p.release(ctx, conn, logger)

	for i, hook := range hooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := hook(ctx, conn); err != nil {
			p.metrics.HooksTotal.WithLabelValues(event, "failure").Inc()
			logger.Error().Err(err).Int("hook", i).Msg("hook failed")
			return newError(ErrHook, event, err)
		}
		p.metrics.HooksTotal.WithLabelValues(event, "success").Inc()
	}

	logger.Info().Int("hooks", len(hooks)).Msg("hooks complete")
	return nil
}
