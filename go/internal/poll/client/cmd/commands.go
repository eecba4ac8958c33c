package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/client"
)

var errQuit = errors.New("quit")

// pollRequest is parsed from "/poll <question> | <option>, <option>* | <duration>".
// A trailing * marks the correct option. The duration part is optional.
type pollRequest struct {
	question string
	options  []models.Option
	duration time.Duration
}

func parsePoll(arg string) (pollRequest, error) {
	parts := strings.Split(arg, "|")
	if len(parts) < 2 {
		return pollRequest{}, fmt.Errorf("usage: /poll question | option, option* | 60s")
	}

	req := pollRequest{question: strings.TrimSpace(parts[0])}
	if req.question == "" {
		return pollRequest{}, fmt.Errorf("question is empty")
	}

	for _, raw := range strings.Split(parts[1], ",") {
		text := strings.TrimSpace(raw)
		correct := strings.HasSuffix(text, "*")
		text = strings.TrimSpace(strings.TrimSuffix(text, "*"))
		if text == "" {
			continue
		}
		req.options = append(req.options, models.Option{Text: text, IsCorrect: correct})
	}

	if len(parts) > 2 {
		d, err := time.ParseDuration(strings.TrimSpace(parts[2]))
		if err != nil {
			return pollRequest{}, fmt.Errorf("invalid duration: %w", err)
		}
		req.duration = d
	}
	return req, nil
}

// execute runs one input line against the connection
func execute(c *client.Client, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.Chat(line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "poll":
		req, err := parsePoll(arg)
		if err != nil {
			return err
		}
		return c.CreatePoll(req.question, req.options, req.duration)
	case "answer", "a":
		return c.Answer(arg)
	case "kick":
		return c.Kick(arg)
	case "history":
		return c.RequestHistory()
	case "state":
		return c.RequestState()
	case "quit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command /%s", name)
	}
}
