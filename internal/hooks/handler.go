package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Events accepted by Handle.
const (
	EventInteraction = "interaction"
	EventUser        = "user"
	EventVoice       = "voice"
	EventSummary     = "summary"
)

// ErrServerDown is returned when the server's health check fails.
var ErrServerDown = errors.New("rapport server not reachable")

// Handle reads one EventInput from stdin, forwards it to the server and
// writes the result to stdout.
func Handle(client *Client, event string, stdin io.Reader, stdout io.Writer) error {
	var input EventInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		return fmt.Errorf("decode stdin: %w", err)
	}
	if input.Guild == "" {
		return errors.New("guild required")
	}

	if !client.Healthy() {
		return ErrServerDown
	}

	var (
		res Result
		err error
	)
	switch event {
	case EventInteraction:
		res, err = handleInteraction(client, &input)
	case EventUser:
		res, err = handleUser(client, &input)
	case EventVoice:
		res, err = handleVoice(client, &input)
	case EventSummary:
		res, err = handleSummary(client, &input)
	default:
		return fmt.Errorf("unknown hook event: %s", event)
	}
	if err != nil {
		return err
	}
	res.Event = event
	return WriteResult(stdout, res)
}
