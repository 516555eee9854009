package hooks

import (
	"encoding/json"
	"net/url"
)

func handleInteraction(client *Client, in *EventInput) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"id":        in.ID,
		"from_user": in.FromUser,
		"to_user":   in.ToUser,
		"kind":      in.Kind,
		"timestamp": in.Timestamp,
		"metadata":  in.Metadata,
	})
	if err != nil {
		return Result{}, err
	}
	data, err := client.Post(in.guildPath()+"/interactions", body)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: "recorded", Data: data}, nil
}

func handleUser(client *Client, in *EventInput) (Result, error) {
	id := in.User
	if id == "" {
		id = in.ID
	}
	body, err := json.Marshal(map[string]string{
		"id":           id,
		"username":     in.Username,
		"display_name": in.DisplayName,
	})
	if err != nil {
		return Result{}, err
	}
	data, err := client.Post(in.guildPath()+"/users", body)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: "upserted", Data: data}, nil
}

// voiceAction maps a voice state change to the tracker call it implies.
// An unchanged channel yields "".
func voiceAction(before, after string) string {
	switch {
	case before == after:
		return ""
	case before == "":
		return "join"
	case after == "":
		return "leave"
	default:
		return "switch"
	}
}

func handleVoice(client *Client, in *EventInput) (Result, error) {
	action := voiceAction(in.BeforeChannel, in.AfterChannel)
	if action == "" {
		return Result{Action: "ignored"}, nil
	}
	body, err := json.Marshal(map[string]any{
		"user":         in.User,
		"channel_id":   in.AfterChannel,
		"channel_name": in.ChannelName,
		"at":           in.At,
	})
	if err != nil {
		return Result{}, err
	}
	data, err := client.Post(in.guildPath()+"/voice/"+action, body)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: action, Data: data}, nil
}

func handleSummary(client *Client, in *EventInput) (Result, error) {
	data, err := client.Get(in.guildPath() + "/users/" + url.PathEscape(in.User) + "/summary")
	if err != nil {
		return Result{}, err
	}
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return Result{}, err
	}
	out, err := json.Marshal(resp.Summary)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: "summary", Data: out}, nil
}
