package main

import (
	"encoding/json"

	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/agenterrors"
)

func bindJSON(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return agenterrors.Wrap(agenterrors.KindProtocolError, err, nil)
	}
	return nil
}

func marshalSuccessResponse(data map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(a2a.SkillResponseContent{Success: true, Data: data})
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindProtocolError, err, nil)
	}
	return raw, nil
}

func marshalErrorResponse(err error) (json.RawMessage, error) {
	kind, _ := agenterrors.KindOf(err)
	raw, marshalErr := json.Marshal(a2a.SkillResponseContent{Success: false, Error: &a2a.ErrorBody{Kind: string(kind), Message: err.Error()}})
	if marshalErr != nil {
		return nil, agenterrors.Wrap(agenterrors.KindProtocolError, marshalErr, nil)
	}
	return raw, nil
}
