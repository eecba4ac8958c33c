package gateway

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/archive"
)

const historySchema = `
schema {
	query: Query
}

type Query {
	# most recent first
	polls(limit: Int): [Poll!]!
	poll(id: ID!): Poll
}

type Poll {
	id: ID!
	sessionId: ID!
	question: String!
	options: [Option!]!
	answers: [Answer!]!
	tally: [TallyEntry!]!
	startTime: String!
	endTime: String!
	durationMs: Float!
}

type Option {
	text: String!
	isCorrect: Boolean!
}

type Answer {
	participant: String!
	option: String!
}

type TallyEntry {
	option: String!
	count: Int!
}
`

// NewGraphQLHandler exposes the poll archive as a read-only GraphQL endpoint
func NewGraphQLHandler(a archive.Archive) *relay.Handler {
	schema := graphql.MustParseSchema(historySchema, &historyResolver{archive: a},
		graphql.MaxDepth(15),
		graphql.UseFieldResolvers(),
	)
	return &relay.Handler{Schema: schema}
}

type historyResolver struct {
	archive archive.Archive
}

func (r *historyResolver) Polls(ctx context.Context, args struct{ Limit *int32 }) ([]*pollResolver, error) {
	records, err := r.archive.List(ctx)
	if err != nil {
		return nil, err
	}
	if args.Limit != nil && *args.Limit >= 0 && int(*args.Limit) < len(records) {
		records = records[:*args.Limit]
	}

	polls := make([]*pollResolver, 0, len(records))
	for _, record := range records {
		polls = append(polls, &pollResolver{record: record})
	}
	return polls, nil
}

func (r *historyResolver) Poll(ctx context.Context, args struct{ ID graphql.ID }) (*pollResolver, error) {
	record, err := r.archive.Get(ctx, string(args.ID))
	if errors.Is(err, archive.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pollResolver{record: record}, nil
}

type pollResolver struct {
	record models.PollRecord
}

func (p *pollResolver) ID() graphql.ID        { return graphql.ID(p.record.ID.String()) }
func (p *pollResolver) SessionID() graphql.ID { return graphql.ID(p.record.SessionID.String()) }
func (p *pollResolver) Question() string      { return p.record.Question }
func (p *pollResolver) Options() []*models.Option {
	options := make([]*models.Option, 0, len(p.record.Options))
	for i := range p.record.Options {
		options = append(options, &p.record.Options[i])
	}
	return options
}
func (p *pollResolver) StartTime() string { return p.record.StartTime.UTC().Format(time.RFC3339Nano) }
func (p *pollResolver) EndTime() string   { return p.record.EndTime.UTC().Format(time.RFC3339Nano) }
func (p *pollResolver) DurationMs() float64 {
	return float64(p.record.DurationMs())
}

type answerResolver struct {
	Participant string
	Option      string
}

// Answers are sorted by participant so repeated queries agree
func (p *pollResolver) Answers() []*answerResolver {
	answers := make([]*answerResolver, 0, len(p.record.Answers))
	for participant, option := range p.record.Answers {
		answers = append(answers, &answerResolver{Participant: participant, Option: option})
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].Participant < answers[j].Participant })
	return answers
}

type tallyResolver struct {
	Option string
	Count  int32
}

// Tally follows option order
func (p *pollResolver) Tally() []*tallyResolver {
	counts := p.record.Tally()
	tally := make([]*tallyResolver, 0, len(p.record.Options))
	for _, opt := range p.record.Options {
		tally = append(tally, &tallyResolver{Option: opt.Text, Count: int32(counts[opt.Text])})
	}
	return tally
}
