package execution

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// LogEnqueuer writes executions to the log.
type LogEnqueuer struct {
	logger log.Logger
}

func NewLogEnqueuer(logger log.Logger) *LogEnqueuer {
	return &LogEnqueuer{logger: log.With(logger, "component", "executions")}
}

func (l *LogEnqueuer) Enqueue(_ context.Context, e *Execution) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	level.Info(l.logger).Log(
		"msg", "execution created",
		"execution", e.ID,
		"namespace", e.Namespace,
		"flow", e.FlowID,
		"trigger", e.Trigger.ID,
		"payload", string(payload),
	)
	return nil
}
