// Package audit appends decision records to the system audit log.
// Writes are best effort: a failed write is logged and counted, never returned.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/metrics"
	"github.com/jonathan/shift-backfill/internal/types"
)

// Actions recorded by the engine.
const (
	ActionRunCreated        = "backfill.run.created"
	ActionRunFilled         = "backfill.run.filled"
	ActionRankDeterministic = "backfill.rank.deterministic"
	ActionRankOracle        = "backfill.rank.llm"
	ActionRankFallback      = "backfill.rank.llm_fallback"
	ActionOutreachSent      = "backfill.outreach.sent"
	ActionOutreachFailed    = "backfill.outreach.failed"
	ActionResponsePrefix    = "backfill.response."
	ActionResponseReplayed  = "backfill.response.replayed"
	ActionLateAcceptance    = "backfill.response.late_acceptance"
	ActionEscalate          = "backfill.escalate"
	ActionPipelineFailed    = "backfill.pipeline.failed"
	ActionShiftCancelled    = "shift.cancelled"
	ActionSMSInbound        = "twilio.sms.inbound"
	ActionVoiceInbound      = "vapi.webhook.inbound"
)

// DefaultActor is used when an entry names no actor.
const DefaultActor = "system"

const writeTimeout = 5 * time.Second

// Store persists audit entries.
type Store interface {
	InsertAudit(ctx context.Context, entry types.AuditEntry) error
}

// Recorder is what components depend on to audit their decisions.
type Recorder interface {
	Record(ctx context.Context, entry types.AuditEntry)
}

// Writer is the Recorder backed by a Store.
type Writer struct {
	store   Store
	log     logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewWriter creates a Writer. m may be nil.
func NewWriter(store Store, log logging.Logger, m *metrics.Metrics) *Writer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Writer{store: store, log: log, metrics: m, now: time.Now}
}

// Record fills in defaults and persists entry. Cancellation of ctx does not
// abort the write, so the final step of a cancelled request is still recorded.
func (w *Writer) Record(ctx context.Context, entry types.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Actor == "" {
		entry.Actor = DefaultActor
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = w.now().UTC()
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := w.store.InsertAudit(wctx, entry); err != nil {
		w.metrics.AuditFailed()
		w.log.Warn("audit write failed",
			logging.String("action", entry.Action),
			logging.String("entity_type", entry.EntityType),
			logging.String("entity_id", entry.EntityID),
			logging.Error(err),
		)
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, types.AuditEntry) {}
