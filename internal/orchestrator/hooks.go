package orchestrator

import (
	"context"

	"carousel/internal/logging"
	"carousel/internal/pipeline"
)

// stageHooks drives the turntable and notifications from stage entry. All
// effects are fire-and-forget.
type stageHooks struct {
	m *Manager
}

func (h *stageHooks) StageEntered(stage pipeline.Stage) {
	switch stage {
	case pipeline.StageCapture:
		h.m.table.MotorOn()
		h.m.table.RotateForward()
	case pipeline.StageProcess:
		// Capture is over once the job is queued server-side.
		h.m.table.Stop()
		h.m.table.MotorOff()
		if title := h.m.machine.TrackedJobTitle(); title != "" {
			if err := h.m.notifier.NotifyJobTracked(context.Background(), title); err != nil {
				h.m.logger.Debug("job tracked notification failed", logging.Error(err))
			}
		}
	case pipeline.StageFailed:
		h.m.table.Stop()
		h.m.table.MotorOff()
	}
}
