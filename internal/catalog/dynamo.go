package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
//
//	CATEGORY#{category}  COUNTER   category counter
//	WALLPAPER#{filename} META      catalog row
//	SOURCE#{predictionId} META     source marker pointing at a filename
const (
	pkCategory  = "CATEGORY#"
	pkWallpaper = "WALLPAPER#"
	pkSource    = "SOURCE#"
	skCounter   = "COUNTER"
	skMeta      = "META"
)

// dynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements Store using AWS DynamoDB.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *DynamoStore) Close() error { return nil }

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// AdvanceCounter uses an ADD update, which DynamoDB applies atomically and
// which creates the item (starting from zero) when it does not exist.
func (s *DynamoStore) AdvanceCounter(ctx context.Context, category string) (int, error) {
	pk := pkCategory + category
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              key(pk, skCounter),
		UpdateExpression: aws.String("SET category = :category ADD #count :one"),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":category": &types.AttributeValueMemberS{Value: category},
			":one":      &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("UpdateItem PK=%s SK=%s: %w", pk, skCounter, err)
	}
	next, err := numberAttr(out.Attributes, "count")
	if err != nil {
		return 0, fmt.Errorf("UpdateItem PK=%s: %w", pk, err)
	}
	log.Debug().Str("category", category).Int("count", next).Msg("Counter advanced")
	return next, nil
}

// InsertWallpaper writes the row conditionally so an existing filename is
// never overwritten. With a source id the row and its source marker are
// written in one transaction, both conditional.
func (s *DynamoStore) InsertWallpaper(ctx context.Context, w *Wallpaper) error {
	item, err := attributevalue.MarshalMap(w)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	pk := pkWallpaper + w.Filename
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}

	if w.SourceID == "" {
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return fmt.Errorf("PutItem PK=%s: %w", pk, ErrDuplicate)
			}
			return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, skMeta, err)
		}
		return nil
	}

	marker := key(pkSource+w.SourceID, skMeta)
	marker["filename"] = &types.AttributeValueMemberS{Value: w.Filename}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                marker,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && hasConditionalFailure(tce) {
			return fmt.Errorf("TransactWriteItems PK=%s source=%s: %w", pk, w.SourceID, ErrDuplicate)
		}
		return fmt.Errorf("TransactWriteItems PK=%s: %w", pk, err)
	}
	return nil
}

func (s *DynamoStore) WallpaperBySource(ctx context.Context, sourceID string) (*Wallpaper, error) {
	var marker struct {
		Filename string `dynamodbav:"filename"`
	}
	found, err := s.getItem(ctx, pkSource+sourceID, skMeta, &marker)
	if err != nil {
		return nil, err
	}
	if !found || marker.Filename == "" {
		return nil, ErrNotFound
	}

	var w Wallpaper
	found, err = s.getItem(ctx, pkWallpaper+marker.Filename, skMeta, &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &w, nil
}

// IncrementDownloads is conditional on the row existing so that an unknown
// filename does not create a stray item.
func (s *DynamoStore) IncrementDownloads(ctx context.Context, filename string) (int, error) {
	pk := pkWallpaper + filename
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(pk, skMeta),
		UpdateExpression:    aws.String("ADD downloads :one"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("UpdateItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	return numberAttr(out.Attributes, "downloads")
}

// TopDownloads and Latest scan the catalog rows and order them in memory.
// The catalog grows by a handful of rows per generation run, so a scan stays
// within a few pages.
func (s *DynamoStore) TopDownloads(ctx context.Context, limit int) ([]Wallpaper, error) {
	limit = ClampLimit(limit, DefaultTopLimit)
	rows, err := s.scanWallpapers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Downloads != rows[j].Downloads {
			return rows[i].Downloads > rows[j].Downloads
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return head(rows, limit), nil
}

func (s *DynamoStore) Latest(ctx context.Context, limit int) ([]Wallpaper, error) {
	limit = ClampLimit(limit, DefaultLatestLimit)
	rows, err := s.scanWallpapers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return head(rows, limit), nil
}

func (s *DynamoStore) ListCounters(ctx context.Context) ([]CategoryCounter, error) {
	items, err := s.scanSK(ctx, pkCategory, skCounter)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryCounter, 0, len(items))
	for _, item := range items {
		var c CategoryCounter
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			return nil, fmt.Errorf("unmarshal counter: %w", err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sorting != out[j].Sorting {
			return out[i].Sorting < out[j].Sorting
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// --- Internal helpers ---

// getItem reads a single item from DynamoDB and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       key(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

func (s *DynamoStore) scanWallpapers(ctx context.Context) ([]Wallpaper, error) {
	items, err := s.scanSK(ctx, pkWallpaper, skMeta)
	if err != nil {
		return nil, err
	}
	out := make([]Wallpaper, 0, len(items))
	for _, item := range items {
		var w Wallpaper
		if err := attributevalue.UnmarshalMap(item, &w); err != nil {
			return nil, fmt.Errorf("unmarshal wallpaper: %w", err)
		}
		out = append(out, w)
	}
	return out, nil
}

// scanSK scans every item whose PK starts with pkPrefix and whose SK equals
// sk, following LastEvaluatedKey across pages.
func (s *DynamoStore) scanSK(ctx context.Context, pkPrefix, sk string) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("begins_with(PK, :pk) AND SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkPrefix},
			":sk": &types.AttributeValueMemberS{Value: sk},
		},
	}

	var items []map[string]types.AttributeValue
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Scan prefix=%s SK=%s: %w", pkPrefix, sk, err)
		}
		items = append(items, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return items, nil
}

func numberAttr(attrs map[string]types.AttributeValue, name string) (int, error) {
	v, ok := attrs[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("missing numeric attribute %q", name)
	}
	n, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", name, err)
	}
	return n, nil
}

func hasConditionalFailure(tce *types.TransactionCanceledException) bool {
	for _, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func head(rows []Wallpaper, n int) []Wallpaper {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}
