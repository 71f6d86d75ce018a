package workflow

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/earnbot/pkg/logger"
)

// StepStatus is the outcome of one saga step.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step names shared by all sagas.
const (
	StepRedeem         = "redeem_savings"
	StepWaitSettlement = "wait_settlement"
	StepPlaceOrder     = "place_order"
	StepLookupOrder    = "lookup_order"
	StepTransfer       = "transfer"
	StepResolveMode    = "resolve_position_mode"
	StepConvertSize    = "convert_notional"
	StepSubscribe      = "subscribe_savings"
)

// StepEvent is emitted at every step boundary. Progress reporting is
// decoupled from control flow: observers must not influence the saga.
type StepEvent struct {
	Workflow   string // saga name
	WorkflowID string // unique per invocation
	Step       string
	Status     StepStatus
	IDs        map[string]string // identifiers produced so far by this step
	Err        error             // set when Status is StepFailed
	At         time.Time
}

// Observer receives step events.
type Observer interface {
	OnStep(ev StepEvent)
}

// LogObserver writes step events to the process log.
type LogObserver struct {
	log *logrus.Entry
}

// NewLogObserver creates the default observer.
func NewLogObserver() *LogObserver {
	return &LogObserver{log: logger.WithField("component", "workflow")}
}

func (o *LogObserver) OnStep(ev StepEvent) {
	entry := o.log.WithFields(logrus.Fields{
		"workflow":    ev.Workflow,
		"workflow_id": ev.WorkflowID,
		"step":        ev.Step,
		"status":      ev.Status,
	})
	for k, v := range ev.IDs {
		entry = entry.WithField(k, v)
	}
	switch ev.Status {
	case StepFailed:
		entry.WithField("error", ev.Err).Error("workflow step failed")
	case StepSkipped:
		entry.Info("workflow step skipped")
	default:
		entry.Info("workflow step")
	}
}
