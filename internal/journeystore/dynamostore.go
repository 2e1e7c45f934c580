package journeystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/journey-engine/internal/journey"
)

// DynamoStore is the server-fleet Store backend: live journeys and the
// completion ledger in DynamoDB for low-latency admission checks, with
// terminal journey snapshots archived to S3 for long-term retention rather
// than kept in the hot table.
type DynamoStore struct {
	dynamoDB  *dynamodb.Client
	s3Client  *s3.Client
	tableName string
	bucket    string
	cache     *Cache
}

// NewDynamoStore wraps already-configured DynamoDB/S3 clients.
func NewDynamoStore(dynamoDB *dynamodb.Client, s3Client *s3.Client, tableName, bucket string) *DynamoStore {
	return &DynamoStore{dynamoDB: dynamoDB, s3Client: s3Client, tableName: tableName, bucket: bucket, cache: NewCache()}
}

// journeyItem is the DynamoDB item shape for a live journey. PK partitions
// by journey id so individual saves/deletes are single-item operations.
// GSI1PK (distinct_id#campaign_id) is written on every save, but
// GetActiveJourneyIDs answers from the cache and does not query it.
type journeyItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	GSI1PK       string `dynamodbav:"GSI1PK"`
	DistinctID   string `dynamodbav:"DistinctID"`
	CampaignID   string `dynamodbav:"CampaignID"`
	Status       string `dynamodbav:"Status"`
	Snapshot     string `dynamodbav:"Snapshot"`
}

func journeyPK(id journey.ID) string { return fmt.Sprintf("JOURNEY#%s", id) }

func gsi1Key(distinctID, campaignID string) string {
	return fmt.Sprintf("USER#%s#CAMPAIGN#%s", distinctID, campaignID)
}

// SaveJourney upserts a journey item.
func (s *DynamoStore) SaveJourney(ctx context.Context, j journey.Journey) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("journeystore: marshal journey %s: %w", j.ID, err)
	}

	item := journeyItem{
		PK:         journeyPK(j.ID),
		SK:         "JOURNEY",
		GSI1PK:     gsi1Key(j.DistinctID, j.CampaignID),
		DistinctID: j.DistinctID,
		CampaignID: j.CampaignID,
		Status:     string(j.Status),
		Snapshot:   string(data),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("journeystore: marshal journey item %s: %w", j.ID, err)
	}
	_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("journeystore: put journey %s: %w", j.ID, err)
	}
	s.cache.Update(j)
	return nil
}

// LoadActiveJourneys scans the table for live-status items. A production
// deployment would back this with a status GSI rather than a scan; left as a
// scan here since the hot table is expected to be small relative to fleet
// size (one item per live journey, deleted on completion).
func (s *DynamoStore) LoadActiveJourneys(ctx context.Context) ([]journey.Journey, error) {
	result, err := s.dynamoDB.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("SK = :sk AND (#status = :active OR #status = :paused)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "Status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk":     &types.AttributeValueMemberS{Value: "JOURNEY"},
			":active": &types.AttributeValueMemberS{Value: string(journey.StatusActive)},
			":paused": &types.AttributeValueMemberS{Value: string(journey.StatusPaused)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journeystore: scan active journeys: %w", err)
	}

	var out []journey.Journey
	for _, rawItem := range result.Items {
		var item journeyItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			continue
		}
		var j journey.Journey
		if err := json.Unmarshal([]byte(item.Snapshot), &j); err != nil {
			continue
		}
		s.cache.Update(j)
		out = append(out, j)
	}
	return out, nil
}

// DeleteJourney removes the live item and archives its last-known snapshot
// to S3.
func (s *DynamoStore) DeleteJourney(ctx context.Context, id journey.ID) error {
	if j, ok := s.cache.Get(id); ok {
		if err := s.archiveToS3(ctx, j); err != nil {
			return err
		}
	}
	_, err := s.dynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: journeyPK(id)},
			"SK": &types.AttributeValueMemberS{Value: "JOURNEY"},
		},
	})
	if err != nil {
		return fmt.Errorf("journeystore: delete journey %s: %w", id, err)
	}
	s.cache.Remove(id)
	return nil
}

func (s *DynamoStore) archiveToS3(ctx context.Context, j journey.Journey) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("journeystore: marshal journey %s for archive: %w", j.ID, err)
	}
	key := fmt.Sprintf("journeys/%s/%s.json", j.CampaignID, j.ID)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("journeystore: archive journey %s to s3: %w", j.ID, err)
	}
	return nil
}

// completionItem is the DynamoDB item shape for a ledger entry. SK is the
// fixed-width RFC3339 completion time (nanoseconds always written) so a query
// on PK returns history in order.
type completionItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	JourneyID   string `dynamodbav:"JourneyID"`
	ExitReason  string `dynamodbav:"ExitReason"`
	CompletedAt string `dynamodbav:"CompletedAt"`
}

func completionPK(distinctID, campaignID string) string {
	return fmt.Sprintf("COMPLETION#%s#%s", distinctID, campaignID)
}

// RecordCompletion appends a ledger item.
func (s *DynamoStore) RecordCompletion(ctx context.Context, rec journey.CompletionRecord) error {
	item := completionItem{
		PK:          completionPK(rec.DistinctID, rec.CampaignID),
		SK:          rec.CompletedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		JourneyID:   string(rec.JourneyID),
		ExitReason:  string(rec.ExitReason),
		CompletedAt: rec.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("journeystore: marshal completion record %s: %w", rec.JourneyID, err)
	}
	_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("journeystore: put completion record %s: %w", rec.JourneyID, err)
	}
	return nil
}

func (s *DynamoStore) queryCompletions(ctx context.Context, distinctID, campaignID string) ([]completionItem, error) {
	result, err := s.dynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: completionPK(distinctID, campaignID)},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("journeystore: query completions for %s/%s: %w", distinctID, campaignID, err)
	}
	var items []completionItem
	for _, raw := range result.Items {
		var item completionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// HasCompletedCampaign reports whether any completion item exists for
// (distinctID, campaignID).
func (s *DynamoStore) HasCompletedCampaign(ctx context.Context, distinctID, campaignID string) (bool, error) {
	items, err := s.queryCompletions(ctx, distinctID, campaignID)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// LastCompletionTime returns the most recent completion time, if any. Items
// are queried in descending SK order, so the first result is the latest.
func (s *DynamoStore) LastCompletionTime(ctx context.Context, distinctID, campaignID string) (time.Time, bool, error) {
	items, err := s.queryCompletions(ctx, distinctID, campaignID)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(items) == 0 {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, items[0].CompletedAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("journeystore: parse completion time: %w", err)
	}
	return t, true, nil
}

// GetActiveJourneyIDs answers from the memory-resident cache, which is kept
// current by LoadActiveJourneys/SaveJourney/DeleteJourney.
func (s *DynamoStore) GetActiveJourneyIDs(ctx context.Context, distinctID, campaignID string) ([]journey.ID, error) {
	return s.cache.ActiveIDs(distinctID, campaignID), nil
}

// UpdateCache inserts j into the memory-resident lookup cache.
func (s *DynamoStore) UpdateCache(j journey.Journey) { s.cache.Update(j) }

// ClearCache empties the memory-resident lookup cache.
func (s *DynamoStore) ClearCache() { s.cache.Clear() }
