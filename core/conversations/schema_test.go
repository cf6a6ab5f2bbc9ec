package conversations

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDocumentSchemaDescribesConversationData(t *testing.T) {
	schema := DocumentSchema()

	encoded, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("failed to marshal schema: %v", err)
	}

	for _, property := range []string{"conversation_id", "participant_id", "conversation_data", "clean_pairs", "interrupted_responses", "was_interrupted"} {
		if !strings.Contains(string(encoded), `"`+property+`"`) {
			t.Fatalf("expected schema to mention %q, got %s", property, encoded)
		}
	}
	if schema.Title != "Conversation" {
		t.Fatalf("expected schema title, got %q", schema.Title)
	}
}
