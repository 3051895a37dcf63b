package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/metrics"
	"github.com/jonathan/shift-backfill/internal/phi"
	"github.com/jonathan/shift-backfill/internal/prompts"
	"github.com/jonathan/shift-backfill/internal/types"
)

// StartTimeLayout is how shift start times appear in outreach texts.
const StartTimeLayout = "Mon Jan 2, 3:04 PM MST"

// Store is the persistence the dispatcher needs.
type Store interface {
	SetRunChosenWorker(ctx context.Context, runID, workerID string) error
	CreateAttempt(ctx context.Context, attempt types.BackfillAttempt) error
	MarkAttemptSent(ctx context.Context, attemptID, providerID string) (bool, error)
	MarkAttemptFailed(ctx context.Context, attemptID string) (bool, error)
}

// Result describes a delivered outreach attempt.
type Result struct {
	AttemptID  string
	RunID      string
	WorkerID   string
	Channel    types.Channel
	ProviderID string
}

// Dispatcher contacts the top-ranked candidate over the configured channel.
type Dispatcher struct {
	store   Store
	channel Channel
	audit   audit.Recorder
	log     logging.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
	smsKey  string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLocation renders start times in loc. The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) { d.loc = loc }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store Store, channel Channel, rec audit.Recorder, log logging.Logger, m *metrics.Metrics, opts ...Option) *Dispatcher {
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	d := &Dispatcher{
		store:   store,
		channel: channel,
		audit:   rec,
		log:     log,
		metrics: m,
		loc:     time.UTC,
		now:     time.Now,
		smsKey:  prompts.KeyOutreachSMS,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Channel reports which channel this dispatcher uses.
func (d *Dispatcher) Channel() types.Channel {
	return d.channel.Kind
}

// Dispatch contacts ranked[0]. It returns nil, nil when ranked is empty.
// The attempt is persisted as pending before the gateway is called, so a crash
// mid-send leaves an inspectable row. A gateway failure marks the attempt
// failed and is returned as *types.TransportError.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, vacancy types.Vacancy, candidates []types.CandidateRow, ranked []types.RankedCandidate) (*Result, error) {
	if len(ranked) == 0 {
		return nil, nil
	}
	top := ranked[0]

	var cand *types.CandidateRow
	for i := range candidates {
		if candidates[i].WorkerID == top.WorkerID {
			cand = &candidates[i]
			break
		}
	}
	if cand == nil {
		return nil, &types.DataIntegrityError{RunID: runID, WorkerID: top.WorkerID}
	}

	if err := d.store.SetRunChosenWorker(ctx, runID, cand.WorkerID); err != nil {
		return nil, fmt.Errorf("failed to record chosen worker: %w", err)
	}

	attempt := types.BackfillAttempt{
		ID:        uuid.NewString(),
		RunID:     runID,
		WorkerID:  cand.WorkerID,
		Channel:   d.channel.Kind,
		Status:    types.AttemptPending,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.CreateAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	label := phi.ClientLabel(vacancy.ClientFirstName, vacancy.ClientLastInitial)
	log := d.log.With(
		logging.String("run_id", runID),
		logging.String("attempt_id", attempt.ID),
		logging.String("channel", string(attempt.Channel)),
	)

	msg, err := d.message(attempt, vacancy, cand.Phone, label)
	if err != nil {
		d.fail(ctx, log, attempt, vacancy, err, "Outreach message could not be built.")
		return nil, err
	}

	providerID, sendErr := d.channel.Send(ctx, msg)
	if sendErr != nil {
		d.fail(ctx, log, attempt, vacancy, sendErr, "Outreach provider call failed.")
		return nil, &types.TransportError{Op: "outreach " + string(attempt.Channel), Err: sendErr}
	}

	if _, err := d.store.MarkAttemptSent(ctx, attempt.ID, providerID); err != nil {
		return nil, fmt.Errorf("failed to mark attempt sent: %w", err)
	}
	d.metrics.Outreach(string(attempt.Channel), "sent")
	d.audit.Record(ctx, types.AuditEntry{
		Action:     audit.ActionOutreachSent,
		EntityType: types.EntityAttempt,
		EntityID:   attempt.ID,
		RedactedInput: map[string]any{
			"shift_id":  vacancy.ShiftID,
			"worker_id": cand.WorkerID,
			"channel":   attempt.Channel,
			"client":    label,
		},
		Output: map[string]any{
			"top_score":   top.FinalScore,
			"rationale":   top.Rationale,
			"provider_id": providerID,
		},
		Rationale: "Executed outreach to top-ranked caregiver.",
	})
	log.Info("outreach sent", logging.String("provider_id", providerID))

	return &Result{
		AttemptID:  attempt.ID,
		RunID:      runID,
		WorkerID:   cand.WorkerID,
		Channel:    attempt.Channel,
		ProviderID: providerID,
	}, nil
}

// fail closes a pending attempt as failed so inbound replies no longer match it.
func (d *Dispatcher) fail(ctx context.Context, log logging.Logger, attempt types.BackfillAttempt, vacancy types.Vacancy, cause error, rationale string) {
	if _, err := d.store.MarkAttemptFailed(ctx, attempt.ID); err != nil {
		log.Error("failed to mark attempt failed", logging.Error(err))
	}
	d.metrics.Outreach(string(attempt.Channel), "failed")
	d.audit.Record(ctx, types.AuditEntry{
		Action:     audit.ActionOutreachFailed,
		EntityType: types.EntityAttempt,
		EntityID:   attempt.ID,
		RedactedInput: map[string]any{
			"shift_id":  vacancy.ShiftID,
			"worker_id": attempt.WorkerID,
			"channel":   attempt.Channel,
		},
		Output:    map[string]any{"error": cause.Error()},
		Rationale: rationale,
	})
	log.Warn("outreach failed", logging.Error(cause))
}

func (d *Dispatcher) message(attempt types.BackfillAttempt, vacancy types.Vacancy, phone, label string) (Message, error) {
	msg := Message{ToE164: phone}
	if attempt.Channel == types.ChannelVoice {
		msg.Metadata = map[string]string{
			"attemptId": attempt.ID,
			"runId":     attempt.RunID,
			"shiftId":   vacancy.ShiftID,
		}
		return msg, nil
	}

	body, err := prompts.Render(prompts.MessagesFile, d.smsKey, map[string]string{
		"Client":    label,
		"StartTime": vacancy.StartTime.In(d.loc).Format(StartTimeLayout),
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render outreach text: %w", err)
	}
	msg.Body = body
	return msg, nil
}
