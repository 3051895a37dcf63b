package server

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/phi"
	"github.com/jonathan/shift-backfill/internal/schemas"
	"github.com/jonathan/shift-backfill/internal/types"
)

// emptyTwiML acknowledges an inbound SMS without replying to the sender.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

var (
	yesWord = regexp.MustCompile(`\byes\b`)
	noWord  = regexp.MustCompile(`\bno\b`)
)

// smsDecision reads a worker's SMS reply. Anything that is not a clear yes or
// no is ignored.
func smsDecision(body string) (types.Decision, bool) {
	t := strings.ToLower(strings.TrimSpace(body))
	switch {
	case t == "":
		return "", false
	case t == "y" || t == "yes" || strings.HasPrefix(t, "yes "):
		return types.DecisionAccepted, true
	case t == "n" || t == "no" || strings.HasPrefix(t, "no "):
		return types.DecisionDeclined, true
	default:
		return "", false
	}
}

// handleTwilioSMS maps an inbound reply to the sender's latest open attempt.
func (s *Server) handleTwilioSMS(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, &ErrValidation{Field: "form", Message: err.Error()})
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := r.PostForm.Get("Body")
	sid := r.PostForm.Get("MessageSid")
	decision, ok := smsDecision(body)

	recognized := "[unrecognized]"
	if ok {
		recognized = string(decision)
	}
	s.audit.Record(r.Context(), types.AuditEntry{
		Action:        audit.ActionSMSInbound,
		EntityType:    types.EntitySMS,
		EntityID:      sid,
		RedactedInput: map[string]any{"from": phi.MaskPhone(from), "body": recognized},
		Output:        map[string]any{"messageSid": sid},
		Rationale:     "Inbound SMS webhook received.",
	})

	if from != "" && ok {
		if err := s.forwardSMS(r, from, sid, decision); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, emptyTwiML)
}

func (s *Server) forwardSMS(r *http.Request, from, sid string, decision types.Decision) error {
	log := logging.FromContext(r.Context(), s.log)
	attempt, err := s.store.FindOpenAttemptForPhone(r.Context(), from)
	if err != nil {
		return err
	}
	if attempt == nil {
		log.Info("inbound sms has no open attempt", logging.String("from", phi.MaskPhone(from)))
		return nil
	}
	raw, _ := json.Marshal(map[string]string{"channel": "sms", "messageSid": sid})
	return s.emitter.EmitResponse(r.Context(), types.BackfillResponse{
		AttemptID: attempt.ID,
		Decision:  decision,
		Raw:       raw,
	})
}

// handleVapiWebhook resolves a call outcome into a response signal.
func (s *Server) handleVapiWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		s.fail(w, r, &ErrValidation{Field: "body", Message: "expected a JSON object"})
		return
	}
	if err := schemas.Validate(schemas.VoiceWebhook, body); err != nil {
		s.fail(w, r, err)
		return
	}

	attemptID := firstString(payload,
		[]string{"metadata", "attemptId"},
		[]string{"call", "metadata", "attemptId"},
		[]string{"message", "metadata", "attemptId"},
		[]string{"message", "call", "metadata", "attemptId"},
	)
	decision := voiceDecision(payload)
	callID := firstString(payload, []string{"id"}, []string{"call", "id"})

	s.audit.Record(r.Context(), types.AuditEntry{
		Action:        audit.ActionVoiceInbound,
		EntityType:    types.EntityCall,
		EntityID:      callID,
		RedactedInput: map[string]any{"attemptId": attemptID, "decision": decision},
		Output:        map[string]any{"received": true},
		Rationale:     "Inbound Vapi server message received.",
	})

	if attemptID != "" {
		err := s.emitter.EmitResponse(r.Context(), types.BackfillResponse{
			AttemptID: attemptID,
			Decision:  decision,
			Raw:       body,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"received": true})
}

// voiceDecision prefers an explicit decision and otherwise reads the transcript.
func voiceDecision(payload map[string]any) types.Decision {
	explicit := types.Decision(firstString(payload,
		[]string{"decision"},
		[]string{"data", "decision"},
		[]string{"message", "decision"},
	))
	if explicit.Valid() {
		return explicit
	}

	t := strings.ToLower(firstString(payload,
		[]string{"transcript"},
		[]string{"call", "transcript"},
		[]string{"message", "transcript"},
		[]string{"message", "call", "transcript"},
	))
	hasYes, hasNo := yesWord.MatchString(t), noWord.MatchString(t)
	switch {
	case hasYes && !hasNo:
		return types.DecisionAccepted
	case hasNo && !hasYes:
		return types.DecisionDeclined
	default:
		return types.DecisionNoAnswer
	}
}

// firstString returns the first non-empty string found at any of paths.
func firstString(payload map[string]any, paths ...[]string) string {
	for _, path := range paths {
		if v, ok := lookup(payload, path).(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func lookup(node map[string]any, path []string) any {
	var cur any = node
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}
