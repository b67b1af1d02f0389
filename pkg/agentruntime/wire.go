package agentruntime

import (
	"encoding/json"

	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/agenterrors"
)

func marshalSkillRequest(skillName, operation string, params map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(a2a.SkillRequestContent{SkillName: skillName, Operation: operation, Parameters: params})
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindProtocolError, err, nil)
	}
	return raw, nil
}

func unmarshalSkillResponse(msg a2a.Message) (map[string]any, error) {
	var body a2a.SkillResponseContent
	if err := json.Unmarshal(msg.Payload.Content, &body); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindProtocolError, err, map[string]any{"message_id": msg.ID})
	}
	if !body.Success {
		if body.Error != nil {
			return nil, agenterrors.New(agenterrors.Kind(body.Error.Kind), body.Error.Message, nil)
		}
		return nil, agenterrors.New(agenterrors.KindUnreachable, "remote skill call failed", nil)
	}
	return body.Data, nil
}
