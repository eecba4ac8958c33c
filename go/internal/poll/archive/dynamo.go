package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// DynamoTableName is the archive table for an environment
func DynamoTableName(env string) string {
	return env + "-livepoll--poll-record"
}

type dynamoOption struct {
	Text      string `dynamodbav:"text"`
	IsCorrect bool   `dynamodbav:"is_correct"`
}

type dynamoRecord struct {
	ID          string            `dynamodbav:"id"`
	SessionID   string            `dynamodbav:"session_id"`
	Question    string            `dynamodbav:"question"`
	Options     []dynamoOption    `dynamodbav:"options"`
	Answers     map[string]string `dynamodbav:"answers,omitempty"`
	StartTimeMs int64             `dynamodbav:"start_time_ms"`
	EndTimeMs   int64             `dynamodbav:"end_time_ms"`
	DurationMs  int64             `dynamodbav:"duration_ms"`
}

func toDynamoRecord(r models.PollRecord) dynamoRecord {
	options := make([]dynamoOption, 0, len(r.Options))
	for _, opt := range r.Options {
		options = append(options, dynamoOption{Text: opt.Text, IsCorrect: opt.IsCorrect})
	}
	return dynamoRecord{
		ID:          r.ID.String(),
		SessionID:   r.SessionID.String(),
		Question:    r.Question,
		Options:     options,
		Answers:     r.Answers,
		StartTimeMs: r.StartTime.UnixMilli(),
		EndTimeMs:   r.EndTime.UnixMilli(),
		DurationMs:  r.DurationMs(),
	}
}

func (d dynamoRecord) toModel() (models.PollRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.PollRecord{}, fmt.Errorf("invalid record id %q: %w", d.ID, err)
	}
	sessionID, err := uuid.Parse(d.SessionID)
	if err != nil {
		return models.PollRecord{}, fmt.Errorf("invalid session id %q: %w", d.SessionID, err)
	}

	options := make([]models.Option, 0, len(d.Options))
	for _, opt := range d.Options {
		options = append(options, models.Option{Text: opt.Text, IsCorrect: opt.IsCorrect})
	}
	answers := d.Answers
	if answers == nil {
		answers = map[string]string{}
	}

	return models.PollRecord{
		ID:        id,
		SessionID: sessionID,
		Question:  d.Question,
		Options:   options,
		Answers:   answers,
		StartTime: time.UnixMilli(d.StartTimeMs).UTC(),
		EndTime:   time.UnixMilli(d.EndTimeMs).UTC(),
		Duration:  time.Duration(d.DurationMs) * time.Millisecond,
	}, nil
}

// DynamoStore keeps records in a DynamoDB table keyed by record id
type DynamoStore struct {
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

func NewDynamoStore(api dynamodbiface.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{api: api, tableName: tableName}
}

// CreateTableIfNotExists creates the on-demand archive table
func (s *DynamoStore) CreateTableIfNotExists(ctx context.Context) error {
	_, err := s.api.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}
	if !isAWSCode(err, dynamodb.ErrCodeResourceNotFoundException) {
		return fmt.Errorf("describe table %s: %w", s.tableName, err)
	}

	_, err = s.api.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.tableName),
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
	})
	if err != nil && !isAWSCode(err, dynamodb.ErrCodeResourceInUseException) {
		return fmt.Errorf("create table %s: %w", s.tableName, err)
	}
	log.Info().Str("table", s.tableName).Msg("created dynamodb archive table")
	return nil
}

// Append writes the record once; a second append of the same id is ignored
func (s *DynamoStore) Append(ctx context.Context, record models.PollRecord) error {
	item, err := dynamodbattribute.MarshalMap(toDynamoRecord(record))
	if err != nil {
		return fmt.Errorf("marshal poll record %s: %w", record.ID, err)
	}

	_, err = s.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isAWSCode(err, dynamodb.ErrCodeConditionalCheckFailedException) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to put poll record %s: %w", record.ID, err)
	}
	return nil
}

// List scans the table and returns records most recent first
func (s *DynamoStore) List(ctx context.Context) ([]models.PollRecord, error) {
	var (
		records []models.PollRecord
		scanErr error
	)
	err := s.api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}, func(page *dynamodb.ScanOutput, _ bool) bool {
		var items []dynamoRecord
		if scanErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); scanErr != nil {
			return false
		}
		for _, item := range items {
			record, err := item.toModel()
			if err != nil {
				scanErr = err
				return false
			}
			records = append(records, record)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan poll records: %w", err)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to decode poll records: %w", scanErr)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].EndTime.Equal(records[j].EndTime) {
			return records[i].EndTime.After(records[j].EndTime)
		}
		return records[i].ID.String() < records[j].ID.String()
	})
	return records, nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (models.PollRecord, error) {
	out, err := s.api.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return models.PollRecord{}, fmt.Errorf("failed to get poll record %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return models.PollRecord{}, ErrNotFound
	}

	var item dynamoRecord
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return models.PollRecord{}, fmt.Errorf("failed to decode poll record %s: %w", id, err)
	}
	return item.toModel()
}

func (s *DynamoStore) Close() error { return nil }

func isAWSCode(err error, code string) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == code
}
