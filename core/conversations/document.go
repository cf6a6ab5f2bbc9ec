package conversations

import (
	"time"

	"github.com/koscakluka/ema-transcript/internal/utils"
)

// Document is the persisted record of one conversation.
type Document struct {
	ConversationID   string           `json:"conversation_id"`
	ParticipantID    string           `json:"participant_id"`
	ConversationData ConversationData `json:"conversation_data"`
}

type ConversationData struct {
	// Exchanges holds the raw chronological exchanges while the conversation
	// is active, and the clean pairs once it is finalized.
	Exchanges        []Pair     `json:"exchanges"`
	Metadata         Metadata   `json:"metadata"`
	RawChronological []Exchange `json:"raw_chronological,omitempty"`
	StructuredFormat *TurnView  `json:"structured_format,omitempty"`
}

type Metadata struct {
	ParticipantID string     `json:"participant_id"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	Finalized     bool       `json:"finalized,omitempty"`
}

// Snapshot is a point-in-time copy of a conversation's state, used to build
// documents away from the goroutine that owns the conversation.
type Snapshot struct {
	ConversationID string
	ParticipantID  string
	StartTime      time.Time
	EndTime        time.Time
	Exchanges      []Exchange
}

// NewInitialDocument builds the record written when a conversation starts,
// before anything was said.
func NewInitialDocument(snapshot Snapshot) Document {
	return Document{
		ConversationID: snapshot.ConversationID,
		ParticipantID:  snapshot.ParticipantID,
		ConversationData: ConversationData{
			Exchanges: []Pair{},
			Metadata:  newMetadata(snapshot, false),
		},
	}
}

// NewCheckpointDocument builds an intermediate record with the raw exchanges
// and every derived view.
func NewCheckpointDocument(snapshot Snapshot) Document {
	view := Reconcile(snapshot.Exchanges)
	return Document{
		ConversationID: snapshot.ConversationID,
		ParticipantID:  snapshot.ParticipantID,
		ConversationData: ConversationData{
			Exchanges:        pairsFromExchanges(view.Chronological),
			Metadata:         newMetadata(snapshot, false),
			RawChronological: view.Chronological,
			StructuredFormat: &view,
		},
	}
}

// NewFinalDocument builds the finalized record. The clean pairs replace the
// exchanges, the raw sequence is kept under RawChronological.
func NewFinalDocument(snapshot Snapshot) Document {
	view := Reconcile(snapshot.Exchanges)
	return Document{
		ConversationID: snapshot.ConversationID,
		ParticipantID:  snapshot.ParticipantID,
		ConversationData: ConversationData{
			Exchanges:        view.CleanPairs,
			Metadata:         newMetadata(snapshot, true),
			RawChronological: view.Chronological,
			StructuredFormat: &view,
		},
	}
}

func newMetadata(snapshot Snapshot, finalized bool) Metadata {
	metadata := Metadata{ParticipantID: snapshot.ParticipantID, Finalized: finalized}
	if !snapshot.StartTime.IsZero() {
		metadata.StartTime = utils.Ptr(snapshot.StartTime)
	}
	if !snapshot.EndTime.IsZero() {
		metadata.EndTime = utils.Ptr(snapshot.EndTime)
	}
	return metadata
}

func pairsFromExchanges(exchanges []Exchange) []Pair {
	pairs := make([]Pair, 0, len(exchanges))
	for _, exchange := range exchanges {
		pairs = append(pairs, Pair{Exchange: exchange})
	}
	return pairs
}
