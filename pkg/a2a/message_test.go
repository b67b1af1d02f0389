package a2a

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_JSONRoundTrip(t *testing.T) {
	t.Run("Should round-trip a skill/request message through JSON", func(t *testing.T) {
		content, err := json.Marshal(SkillRequestContent{
			SkillName: "sql",
			Operation: "query",
			Parameters: map[string]any{"q": "select 1"},
		})
		require.NoError(t, err)

		ttl := 30
		msg := Message{
			ID:                "msg-1",
			Type:              TypeRequest,
			From:              Identity{ID: "agent-a", Name: "A", Type: "worker", Version: "1.0.0"},
			To:                Identity{ID: "agent-b", Name: "B", Type: "worker", Version: "1.0.0"},
			Priority:          PriorityNormal,
			TimeToLiveSeconds: &ttl,
			Payload:           Payload{ContentType: ContentTypeSkillRequest, Content: content},
		}

		raw, err := json.Marshal(msg)
		require.NoError(t, err)

		var decoded Message
		require.NoError(t, json.Unmarshal(raw, &decoded))

		assert.Equal(t, msg.ID, decoded.ID)
		assert.Equal(t, msg.Type, decoded.Type)
		assert.Equal(t, msg.From, decoded.From)
		assert.Equal(t, *msg.TimeToLiveSeconds, *decoded.TimeToLiveSeconds)
		assert.Nil(t, decoded.Signature)

		var decodedContent SkillRequestContent
		require.NoError(t, json.Unmarshal(decoded.Payload.Content, &decodedContent))
		assert.Equal(t, "sql", decodedContent.SkillName)
		assert.Equal(t, "query", decodedContent.Operation)
	})

	t.Run("Should omit signature when unset", func(t *testing.T) {
		msg := Message{ID: "msg-2", Type: TypeHeartbeat, Priority: PriorityLow}
		raw, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "signature")
	})
}
