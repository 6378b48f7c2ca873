// Package hub fans released caption translations out to every subscriber of a
// channel, with a bounded backlog ring for late joiners and bounded
// per-subscriber queues so one slow connection never stalls the rest.
package hub

import (
	"time"

	"github.com/MustfainTariq/Jama-Translator/translation"
)

// Message is the wire unit pushed to subscribers: either caption text or an
// explicit skipped marker occupying the sequence slot.
type Message struct {
	Sequence  int64     `json:"sequence"`
	Language  string    `json:"language"`
	Text      string    `json:"text,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FromTranslation converts a released translation into its subscriber-facing
// message. Failure markers and reorder skips both surface as skipped slots.
func FromTranslation(tr translation.Translation) Message {
	return Message{
		Sequence:  tr.Sequence,
		Language:  tr.TargetLang,
		Text:      tr.Text,
		Skipped:   tr.Skipped || tr.Failed,
		Timestamp: tr.CompletedAt,
	}
}
