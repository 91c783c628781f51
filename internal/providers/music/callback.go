package music

import (
	"encoding/json"
	"strings"
)

// Callback is the push notification sent when a task makes progress.
type Callback struct {
	Code      int
	Message   string
	TaskID    string
	Type      string
	TrackURLs []string
}

type callbackPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID       string `json:"task_id"`
		TaskIDCamel  string `json:"taskId"`
		CallbackType string `json:"callbackType"`
		Data         []struct {
			AudioURL      string `json:"audio_url"`
			AudioURLCamel string `json:"audioUrl"`
		} `json:"data"`
	} `json:"data"`
}

// ParseCallback decodes a callback body. A missing task id is not an error
// here; callers decide how to answer it.
func ParseCallback(body []byte) (Callback, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Callback{}, err
	}

	cb := Callback{
		Code:    payload.Code,
		Message: payload.Msg,
		TaskID:  strings.TrimSpace(payload.Data.TaskID),
		Type:    strings.TrimSpace(payload.Data.CallbackType),
	}
	if cb.TaskID == "" {
		cb.TaskID = strings.TrimSpace(payload.Data.TaskIDCamel)
	}
	for _, item := range payload.Data.Data {
		u := strings.TrimSpace(item.AudioURL)
		if u == "" {
			u = strings.TrimSpace(item.AudioURLCamel)
		}
		if u != "" {
			cb.TrackURLs = append(cb.TrackURLs, u)
		}
	}
	return cb, nil
}
