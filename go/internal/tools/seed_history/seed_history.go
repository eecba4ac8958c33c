package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/livepoll/go/internal/dbconfig"
	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/archive"
	"github.com/mcdev12/livepoll/go/internal/sqlutil"
)

type demoPoll struct {
	question string
	options  []models.Option
}

var demoPolls = []demoPoll{
	{"What is 7 x 8?", []models.Option{{Text: "54"}, {Text: "56", IsCorrect: true}, {Text: "64"}}},
	{"Which planet is closest to the sun?", []models.Option{{Text: "Venus"}, {Text: "Mercury", IsCorrect: true}, {Text: "Mars"}}},
	{"H2O is the formula for", []models.Option{{Text: "Water", IsCorrect: true}, {Text: "Hydrogen peroxide"}}},
	{"How confident do you feel about today's topic?", []models.Option{{Text: "Very"}, {Text: "Somewhat"}, {Text: "Not yet"}}},
}

var demoParticipants = []string{"Alice", "Bob", "Carol", "Dan", "Erin", "Frank"}

func main() {
	ctx := context.Background()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Make sure the archive table exists
	for _, stmt := range archive.SchemaStatements(archive.Postgres) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "create schema: %v\n", err)
			os.Exit(1)
		}
	}

	// 3) Insert one finished poll per demo question, an hour apart
	var (
		total    = len(demoPolls)
		inserted int
		skipped  int
		errs     int
	)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	end := time.Now().Add(-time.Hour * time.Duration(total))

	for _, p := range demoPolls {
		record := newRecord(rng, p, end)
		end = end.Add(time.Hour)

		options, err := sqlutil.ToNullRawMessage(record.Options)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode options %s: %v\n", record.ID, err)
			errs++
			continue
		}
		answers, err := sqlutil.ToNullRawMessage(record.Answers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode answers %s: %v\n", record.ID, err)
			errs++
			continue
		}

		cmdTag, err := pool.Exec(ctx, archive.InsertRecordSQL(archive.Postgres),
			record.ID.String(), record.SessionID.String(), record.Question,
			options, answers,
			sqlutil.ToUnixMilli(record.StartTime), sqlutil.ToUnixMilli(record.EndTime),
			record.DurationMs(),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting poll %s: %v\n", record.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Poll history seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}

func newRecord(rng *rand.Rand, p demoPoll, end time.Time) models.PollRecord {
	duration := 60 * time.Second
	answers := make(map[string]string)
	for _, name := range demoParticipants {
		if rng.Intn(5) == 0 {
			continue // did not answer
		}
		answers[name] = p.options[rng.Intn(len(p.options))].Text
	}

	return models.PollRecord{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Question:  p.question,
		Options:   p.options,
		Answers:   answers,
		StartTime: end.Add(-duration),
		EndTime:   end,
		Duration:  duration,
	}
}
