package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/client"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

var opts struct {
	URL       string
	Name      string
	Moderator bool
	LogLevel  string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:  "poll-client",
		Usage: "join a live poll from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "url",
				Usage:       "gateway websocket endpoint",
				Value:       "ws://localhost:8081/ws",
				EnvVars:     []string{"POLL_URL"},
				Destination: &opts.URL,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "display name",
				Required:    true,
				EnvVars:     []string{"POLL_NAME"},
				Destination: &opts.Name,
			},
			&cli.BoolFlag{
				Name:        "moderator",
				Usage:       "join as the moderator",
				Destination: &opts.Moderator,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "warn",
				EnvVars:     []string{"LOG_LEVEL"},
				Destination: &opts.LogLevel,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("poll client failed")
	}
}

func run(c *cli.Context) error {
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := client.DefaultConfig(opts.URL)
	cfg.OnTick = func(_ string, remaining time.Duration) {
		if secs := int(remaining.Round(time.Second).Seconds()); secs%10 == 0 || secs <= 5 {
			fmt.Printf("  %ds left\n", secs)
		}
	}
	cfg.OnExpire = func(string) {
		fmt.Println("  time is up")
	}

	conn, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	role := models.RoleParticipant
	if opts.Moderator {
		role = models.RoleModerator
	}
	if err := conn.Join(role, opts.Name); err != nil {
		return err
	}
	fmt.Printf("joined %s as %s\n", opts.URL, opts.Name)

	go printEvents(conn)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			if conn.Removed() {
				fmt.Println("you have been removed from the session")
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := execute(conn, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}
}

func printEvents(conn *client.Client) {
	for event := range conn.Events() {
		payload, err := events.ParseEventPayload(event)
		if err != nil {
			log.Debug().Err(err).Str("event_type", string(event.Type)).Msg("unprintable event")
			continue
		}

		switch p := payload.(type) {
		case events.SessionPayload:
			fmt.Printf("poll: %s (%ds left)\n", p.Question, (p.RemainingMs+999)/1000)
			for i, option := range p.Options {
				fmt.Printf("  %d. %s\n", i+1, option.Text)
			}
		case events.AnswersPayload:
			label := "results"
			if event.Type == events.EventPollEnd {
				label = "final results"
			}
			fmt.Printf("%s: %s\n", label, formatTally(p))
		case events.PresencePayload:
			fmt.Printf("present (%d): %s\n", len(p), strings.Join(p, ", "))
		case events.ChatMessagePayload:
			fmt.Printf("[%s] %s\n", p.Sender, p.Text)
		case []events.RecordPayload:
			fmt.Printf("history: %d polls\n", len(p))
			for _, record := range p {
				fmt.Printf("  %s  %s\n", record.Question, formatCounts(record.Tally))
			}
		}
	}
}

func formatTally(answers events.AnswersPayload) string {
	counts := make(map[string]int)
	for _, option := range answers {
		counts[option]++
	}
	return formatCounts(counts)
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	if len(parts) == 0 {
		return "no answers"
	}
	return strings.Join(parts, " ")
}
