package crosswalk

import "time"

// DefaultAlertCooldown is the interval after which an unchanged alert is
// repeated.
const DefaultAlertCooldown = 5 * time.Second

// AlertPhase is the state of the alert machine.
type AlertPhase string

const (
	PhaseIdle       AlertPhase = "idle"
	PhaseAnnouncing AlertPhase = "announcing"
)

// AlertState is the alert machine's memory between frames. The zero value
// is a fresh session that has never alerted.
type AlertState struct {
	Phase         AlertPhase `json:"phase"`
	LastStatus    Status     `json:"last_status,omitempty"`
	LastText      string     `json:"last_text,omitempty"`
	LastAlertTime time.Time  `json:"last_alert_time"`
	Emitted       int        `json:"emitted"`
}

// AlertEvent is handed to the narrator. ID is left empty by the engine and
// assigned by whoever persists the event.
type AlertEvent struct {
	ID        string    `json:"id,omitempty"`
	Key       Status    `json:"key"`
	Text      string    `json:"text"`
	Language  Language  `json:"language"`
	Speech    string    `json:"speech_language"`
	Verdict   Verdict   `json:"verdict"`
	FrameIdx  int64     `json:"frame_index"`
	EmittedAt time.Time `json:"emitted_at"`
}

// AlertPolicy decides when a verdict is announced.
type AlertPolicy struct {
	Cooldown time.Duration
}

// Next advances the alert machine for one frame. It emits when the rendered
// message differs from the last one spoken or when more than Cooldown has
// passed since the last alert, and never while the narrator is busy. The
// message text is compared rather than the status so that a change in the
// vehicle count is announced.
func (p AlertPolicy) Next(st AlertState, v Verdict, lang Language, text string, frameIdx int64, now time.Time, busy bool) (AlertState, *AlertEvent) {
	if busy {
		st.Phase = PhaseAnnouncing
		return st, nil
	}
	st.Phase = PhaseIdle

	changed := st.Emitted == 0 || text != st.LastText
	expired := now.Sub(st.LastAlertTime) > p.Cooldown
	if !changed && !expired {
		return st, nil
	}

	ev := &AlertEvent{
		Key:       v.Status,
		Text:      text,
		Language:  lang,
		Speech:    SpeechLanguage(lang),
		Verdict:   v,
		FrameIdx:  frameIdx,
		EmittedAt: now,
	}
	st.Phase = PhaseAnnouncing
	st.LastStatus = v.Status
	st.LastText = text
	st.LastAlertTime = now
	st.Emitted++
	return st, ev
}
