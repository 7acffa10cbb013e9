package realtime

import "encoding/json"

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type responseOptions struct {
	Instructions string   `json:"instructions,omitempty"`
	Modalities   []string `json:"modalities,omitempty"`
}

type responseCreate struct {
	Type     string           `json:"type"`
	Response *responseOptions `json:"response,omitempty"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type typeOnly struct {
	Type string `json:"type"`
}

type functionCallOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type itemCreate struct {
	Type string                 `json:"type"`
	Item functionCallOutputItem `json:"item"`
}

// SessionUpdate encodes the session.update command.
func SessionUpdate(cfg SessionConfig) ([]byte, error) {
	return json.Marshal(sessionUpdate{Type: "session.update", Session: cfg})
}

// ResponseCreate encodes response.create. Empty instructions ask the model to
// continue from the conversation as it stands.
func ResponseCreate(instructions string) ([]byte, error) {
	msg := responseCreate{Type: "response.create"}
	if instructions != "" {
		msg.Response = &responseOptions{Instructions: instructions}
	}
	return json.Marshal(msg)
}

// AppendAudio encodes input_audio_buffer.append with the payload untouched.
func AppendAudio(payload string) ([]byte, error) {
	return json.Marshal(audioAppend{Type: "input_audio_buffer.append", Audio: payload})
}

// ResponseCancel encodes response.cancel.
func ResponseCancel() ([]byte, error) {
	return json.Marshal(typeOnly{Type: "response.cancel"})
}

// FunctionCallOutput encodes a conversation.item.create carrying a tool result.
func FunctionCallOutput(callID string, output []byte) ([]byte, error) {
	return json.Marshal(itemCreate{
		Type: "conversation.item.create",
		Item: functionCallOutputItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: string(output),
		},
	})
}
