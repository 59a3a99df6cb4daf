package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

const (
	defaultListLimit  = 25
	maxListLimit      = 100
	maxBatchWriteSize = 25
	maxBatchRetries   = 5

	ledgerPartition = "LEDGER"
	triggerGSI1     = "GSI1"

	attrPK          = "PK"
	attrSK          = "SK"
	attrGSI1PK      = "GSI1PK"
	attrGSI1SK      = "GSI1SK"
	attrID          = "id"
	attrTrigger     = "trigger"
	attrOutcome     = "outcome"
	attrReason      = "reason"
	attrDigest      = "digest"
	attrKinds       = "kinds"
	attrErrorKind   = "error_kind"
	attrStatusCode  = "status_code"
	attrArchiveKey  = "archive_key"
	attrAttemptedAt = "attempted_at"
	attrExpiresAt   = "expires_at"
)

type dynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
	RetentionDays   int
}

// DispatchLedgerRepository stores dispatch attempts in one DynamoDB table.
// Items live in a single partition sorted by attempt time; GSI1 partitions them by trigger.
type DispatchLedgerRepository struct {
	client      dynamoAPI
	tableName   string
	strongReads bool
	retention   time.Duration
	retryDelay  time.Duration
}

type cursorPayload struct {
	Trigger string                 `json:"trigger,omitempty"`
	FromMS  int64                  `json:"from_ms,omitempty"`
	ToMS    int64                  `json:"to_ms,omitempty"`
	Key     map[string]cursorValue `json:"key"`
}

type cursorValue struct {
	S string `json:"s,omitempty"`
	N string `json:"n,omitempty"`
}

func NewDispatchLedgerRepository(ctx context.Context, cfg Config) (*DispatchLedgerRepository, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return newDispatchLedgerRepository(client, cfg), nil
}

func newDispatchLedgerRepository(client dynamoAPI, cfg Config) *DispatchLedgerRepository {
	var retention time.Duration
	if cfg.RetentionDays > 0 {
		retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	}

	return &DispatchLedgerRepository{
		client:      client,
		tableName:   strings.TrimSpace(cfg.TableName),
		strongReads: cfg.StrongReads,
		retention:   retention,
		retryDelay:  100 * time.Millisecond,
	}
}

func (r *DispatchLedgerRepository) PutBatch(ctx context.Context, records []*entity.DispatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	for start := 0; start < len(records); start += maxBatchWriteSize {
		end := start + maxBatchWriteSize
		if end > len(records) {
			end = len(records)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, record := range records[start:end] {
			item, err := r.toItem(record)
			if err != nil {
				return err
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		if err := r.writeBatchWithRetry(ctx, requests); err != nil {
			return err
		}
	}

	return nil
}

// List returns attempts newest first. A trigger filter switches the query to GSI1.
func (r *DispatchLedgerRepository) List(ctx context.Context, query port.DispatchLedgerQuery) (port.DispatchLedgerPage, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	trigger := strings.TrimSpace(query.Trigger)
	fromMS, toMS, hasRange, err := normalizeTimeRange(query.From, query.To)
	if err != nil {
		return port.DispatchLedgerPage{}, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 &r.tableName,
		Limit:                     int32Pointer(int32(limit)),
		ScanIndexForward:          boolPointer(false),
		ConsistentRead:            boolPointer(r.strongReads),
		ExpressionAttributeNames:  map[string]string{},
		ExpressionAttributeValues: map[string]types.AttributeValue{},
	}

	pkAttr, skAttr, pkValue := attrPK, attrSK, ledgerPartition
	if trigger != "" {
		pkAttr, skAttr, pkValue = attrGSI1PK, attrGSI1SK, buildGSI1PK(trigger)
		input.IndexName = stringPointer(triggerGSI1)
		input.ConsistentRead = nil
	}

	input.ExpressionAttributeNames["#pk"] = pkAttr
	input.ExpressionAttributeValues[":pk"] = &types.AttributeValueMemberS{Value: pkValue}
	keyCondition := "#pk = :pk"
	if hasRange {
		input.ExpressionAttributeNames["#sk"] = skAttr
		input.ExpressionAttributeValues[":from"] = &types.AttributeValueMemberS{Value: buildSortLowerBound(fromMS)}
		input.ExpressionAttributeValues[":to"] = &types.AttributeValueMemberS{Value: buildSortUpperBound(toMS)}
		keyCondition += " AND #sk BETWEEN :from AND :to"
	}
	input.KeyConditionExpression = &keyCondition

	if strings.TrimSpace(query.Cursor) != "" {
		exclusiveStartKey, err := decodeCursor(query.Cursor, trigger, fromMS, toMS)
		if err != nil {
			return port.DispatchLedgerPage{}, err
		}
		input.ExclusiveStartKey = exclusiveStartKey
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return port.DispatchLedgerPage{}, fmt.Errorf("dynamodb query failed: %w", err)
	}

	items := make([]*entity.DispatchRecord, 0, len(output.Items))
	for _, raw := range output.Items {
		item, err := fromItem(raw)
		if err != nil {
			return port.DispatchLedgerPage{}, err
		}
		items = append(items, item)
	}

	nextCursor := ""
	if len(output.LastEvaluatedKey) > 0 {
		nextCursor, err = encodeCursor(output.LastEvaluatedKey, trigger, fromMS, toMS)
		if err != nil {
			return port.DispatchLedgerPage{}, err
		}
	}

	return port.DispatchLedgerPage{
		Items:      items,
		NextCursor: nextCursor,
	}, nil
}

func (r *DispatchLedgerRepository) writeBatchWithRetry(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{
		r.tableName: requests,
	}

	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		output, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("dynamodb batch write failed: %w", err)
		}

		if len(output.UnprocessedItems) == 0 {
			return nil
		}

		pending = output.UnprocessedItems

		timer := time.NewTimer(time.Duration(attempt+1) * r.retryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return fmt.Errorf("dynamodb batch write has unprocessed items after retries")
}

func (r *DispatchLedgerRepository) toItem(record *entity.DispatchRecord) (map[string]types.AttributeValue, error) {
	if record == nil {
		return nil, fmt.Errorf("dispatch record is nil")
	}
	trigger := string(record.Trigger())
	if trigger == "" {
		return nil, fmt.Errorf("trigger is required")
	}

	attemptedAt := record.AttemptedAt().UTC()
	if attemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}
	attemptedAtMS := attemptedAt.UnixMilli()
	sk := buildSK(attemptedAtMS, record.ID())

	kinds := make([]types.AttributeValue, 0, len(record.Kinds()))
	for _, kind := range record.Kinds() {
		kinds = append(kinds, &types.AttributeValueMemberS{Value: string(kind)})
	}

	item := map[string]types.AttributeValue{
		attrPK:          &types.AttributeValueMemberS{Value: ledgerPartition},
		attrSK:          &types.AttributeValueMemberS{Value: sk},
		attrGSI1PK:      &types.AttributeValueMemberS{Value: buildGSI1PK(trigger)},
		attrGSI1SK:      &types.AttributeValueMemberS{Value: sk},
		attrID:          &types.AttributeValueMemberS{Value: record.ID()},
		attrTrigger:     &types.AttributeValueMemberS{Value: trigger},
		attrOutcome:     &types.AttributeValueMemberS{Value: string(record.Outcome())},
		attrKinds:       &types.AttributeValueMemberL{Value: kinds},
		attrAttemptedAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(attemptedAtMS, 10)},
	}

	if reason := strings.TrimSpace(record.Reason()); reason != "" {
		item[attrReason] = &types.AttributeValueMemberS{Value: reason}
	}
	if !record.Digest().IsZero() {
		item[attrDigest] = &types.AttributeValueMemberS{Value: record.Digest().String()}
	}
	if record.ErrorKind() != "" {
		item[attrErrorKind] = &types.AttributeValueMemberS{Value: record.ErrorKind()}
	}
	if record.StatusCode() > 0 {
		item[attrStatusCode] = &types.AttributeValueMemberN{Value: strconv.Itoa(record.StatusCode())}
	}
	if record.ArchiveKey() != "" {
		item[attrArchiveKey] = &types.AttributeValueMemberS{Value: record.ArchiveKey()}
	}
	if r.retention > 0 {
		expiresAt := attemptedAt.Add(r.retention).Unix()
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)}
	}

	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (*entity.DispatchRecord, error) {
	id, err := attrString(item, attrID)
	if err != nil {
		return nil, err
	}
	trigger, err := attrString(item, attrTrigger)
	if err != nil {
		return nil, err
	}
	outcome, err := attrString(item, attrOutcome)
	if err != nil {
		return nil, err
	}
	attemptedAtMS, err := attrInt64(item, attrAttemptedAt)
	if err != nil {
		return nil, err
	}

	var kinds []valueobject.AnomalyKind
	if raw, ok := item[attrKinds].(*types.AttributeValueMemberL); ok {
		for _, v := range raw.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				kinds = append(kinds, valueobject.AnomalyKind(s.Value))
			}
		}
	}

	return entity.ReconstructDispatchRecord(
		id,
		valueobject.DispatchTrigger(trigger),
		valueobject.DispatchOutcome(outcome),
		optionalString(item, attrReason),
		valueobject.AlertDigest(optionalString(item, attrDigest)),
		kinds,
		optionalString(item, attrErrorKind),
		int(optionalInt64(item, attrStatusCode)),
		optionalString(item, attrArchiveKey),
		time.UnixMilli(attemptedAtMS).UTC(),
	), nil
}

func normalizeTimeRange(from, to time.Time) (int64, int64, bool, error) {
	from = from.UTC()
	to = to.UTC()
	if from.IsZero() && to.IsZero() {
		return 0, math.MaxInt64, false, nil
	}

	fromMS := int64(0)
	toMS := int64(math.MaxInt64)
	if !from.IsZero() {
		fromMS = from.UnixMilli()
	}
	if !to.IsZero() {
		toMS = to.UnixMilli()
	}

	if fromMS > toMS {
		return 0, 0, false, fmt.Errorf("from must be less than or equal to to")
	}

	return fromMS, toMS, true, nil
}

func buildSK(attemptedAtMS int64, id string) string {
	return fmt.Sprintf("TS#%013d#ID#%s", attemptedAtMS, id)
}

func buildGSI1PK(trigger string) string {
	return "TRIGGER#" + trigger
}

func buildSortLowerBound(tsMS int64) string {
	return fmt.Sprintf("TS#%013d#", tsMS)
}

func buildSortUpperBound(tsMS int64) string {
	return fmt.Sprintf("TS#%013d#~", tsMS)
}

func encodeCursor(key map[string]types.AttributeValue, trigger string, fromMS, toMS int64) (string, error) {
	values := make(map[string]cursorValue, len(key))
	for attributeName, raw := range key {
		switch value := raw.(type) {
		case *types.AttributeValueMemberS:
			values[attributeName] = cursorValue{S: value.Value}
		case *types.AttributeValueMemberN:
			values[attributeName] = cursorValue{N: value.Value}
		default:
			return "", fmt.Errorf("unsupported cursor attribute type for %s", attributeName)
		}
	}

	serialized, err := json.Marshal(cursorPayload{
		Trigger: trigger,
		FromMS:  fromMS,
		ToMS:    toMS,
		Key:     values,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(serialized), nil
}

// decodeCursor rejects cursors issued for a different trigger or time range.
func decodeCursor(cursor, trigger string, fromMS, toMS int64) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, port.ErrInvalidCursor
	}

	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, port.ErrInvalidCursor
	}

	if payload.Trigger != trigger || payload.FromMS != fromMS || payload.ToMS != toMS {
		return nil, fmt.Errorf("%w: cursor does not match query filters", port.ErrInvalidCursor)
	}

	key := make(map[string]types.AttributeValue, len(payload.Key))
	for attributeName, value := range payload.Key {
		if value.S != "" {
			key[attributeName] = &types.AttributeValueMemberS{Value: value.S}
			continue
		}
		if value.N != "" {
			key[attributeName] = &types.AttributeValueMemberN{Value: value.N}
			continue
		}
		return nil, port.ErrInvalidCursor
	}

	return key, nil
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	value, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return value.Value
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	value, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func boolPointer(v bool) *bool {
	return &v
}

func int32Pointer(v int32) *int32 {
	return &v
}

func stringPointer(v string) *string {
	return &v
}
