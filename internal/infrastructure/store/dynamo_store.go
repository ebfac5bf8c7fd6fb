package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoTables names the tables used by DynamoStore.
type DynamoTables struct {
	Events    string
	Tickets   string
	Purchases string
}

const (
	// GSI on purchases: partition user_id, sort purchase_time.
	purchasesByUserIndex = "user_id-purchase_time-index"
	// GSI on tickets: partition event_id.
	ticketsByEventIndex = "event_id-index"

	// Fixed width so purchase_time sorts lexicographically.
	dynamoTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	// Attempts when the ticket price changes between read and commit.
	dynamoPurchaseAttempts = 3
)

// DynamoStore implements ledger.Store and catalog.Store on DynamoDB.
//
// The tickets table keeps quantity_remaining next to quantity_sold so the
// stock check fits in a single condition expression. A purchase is one
// TransactWriteItems call: a conditional Update of the ticket and a Put of
// the purchase record.
type DynamoStore struct {
	client DynamoAPI
	tables DynamoTables
}

type dynamoTicket struct {
	TicketID          string `dynamodbav:"ticket_id"`
	EventID           string `dynamodbav:"event_id"`
	TicketType        string `dynamodbav:"ticket_type"`
	Price             int64  `dynamodbav:"price"`
	QuantityAvailable int    `dynamodbav:"quantity_available"`
	QuantitySold      int    `dynamodbav:"quantity_sold"`
	QuantityRemaining int    `dynamodbav:"quantity_remaining"`
}

type dynamoPurchase struct {
	PurchaseID   string `dynamodbav:"purchase_id"`
	UserID       string `dynamodbav:"user_id"`
	TicketID     string `dynamodbav:"ticket_id"`
	Quantity     int    `dynamodbav:"quantity"`
	TotalPrice   int64  `dynamodbav:"total_price"`
	PurchaseTime string `dynamodbav:"purchase_time"`
}

type dynamoEvent struct {
	EventID     string `dynamodbav:"event_id"`
	OrganizerID string `dynamodbav:"organizer_id"`
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description"`
	Location    string `dynamodbav:"location"`
	StartsAt    string `dynamodbav:"starts_at"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

func NewDynamoStore(client DynamoAPI, tables DynamoTables) *DynamoStore {
	return &DynamoStore{client: client, tables: tables}
}

func formatDynamoTime(t time.Time) string {
	return t.UTC().Format(dynamoTimeLayout)
}

func parseDynamoTime(s string) time.Time {
	t, _ := time.Parse(dynamoTimeLayout, s)
	return t
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func numberValue[T int | int64](v T) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}
}

func (t dynamoTicket) toStock() ledger.TicketStock {
	return ledger.TicketStock{
		TicketID:          t.TicketID,
		EventID:           t.EventID,
		TicketType:        t.TicketType,
		Price:             t.Price,
		QuantityAvailable: t.QuantityAvailable,
		QuantitySold:      t.QuantitySold,
	}
}

func (p dynamoPurchase) toRecord() ledger.PurchaseRecord {
	return ledger.PurchaseRecord{
		PurchaseID:   p.PurchaseID,
		UserID:       p.UserID,
		TicketID:     p.TicketID,
		Quantity:     p.Quantity,
		TotalPrice:   p.TotalPrice,
		PurchaseTime: parseDynamoTime(p.PurchaseTime),
	}
}

func (e dynamoEvent) toEvent() catalog.Event {
	return catalog.Event{
		ID:          e.EventID,
		OrganizerID: e.OrganizerID,
		Name:        e.Name,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    parseDynamoTime(e.StartsAt),
		CreatedAt:   parseDynamoTime(e.CreatedAt),
		UpdatedAt:   parseDynamoTime(e.UpdatedAt),
	}
}

// getTicket reads a ticket item; a nil result means it does not exist.
func (s *DynamoStore) getTicket(ctx context.Context, ticketID string, consistent bool) (*dynamoTicket, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Tickets),
		Key:            stringKey("ticket_id", ticketID),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	var item dynamoTicket
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
	}
	return &item, nil
}

// Purchase implements ledger.Store.
func (s *DynamoStore) Purchase(ctx context.Context, req ledger.PurchaseRequest) (ledger.PurchaseRecord, int, error) {
	if req.Quantity <= 0 {
		return ledger.PurchaseRecord{}, 0, ledger.ErrInvalidQuantity
	}

	for attempt := 0; attempt < dynamoPurchaseAttempts; attempt++ {
		ticket, err := s.getTicket(ctx, req.TicketID, true)
		if err != nil {
			return ledger.PurchaseRecord{}, 0, classifyDynamoError(err)
		}
		if ticket == nil {
			return ledger.PurchaseRecord{}, 0, ledger.ErrTicketNotFound
		}
		if ticket.QuantityRemaining < req.Quantity {
			return ledger.PurchaseRecord{}, 0, ledger.ErrInsufficientStock
		}

		record := ledger.PurchaseRecord{
			PurchaseID:   req.PurchaseID,
			UserID:       req.UserID,
			TicketID:     req.TicketID,
			Quantity:     req.Quantity,
			TotalPrice:   ticket.Price * int64(req.Quantity),
			PurchaseTime: req.PurchasedAt,
		}

		err = s.commitPurchase(ctx, record, ticket.Price, purchaseAttemptToken(req.PurchaseID, attempt))
		if err == nil {
			// Upper bound on what is left; other purchases may have landed too.
			return record, ticket.QuantityRemaining - req.Quantity, nil
		}

		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && stockConditionFailed(canceled) {
			// Stock, existence or price changed since the read; re-read decides.
			continue
		}
		return ledger.PurchaseRecord{}, 0, classifyDynamoError(err)
	}

	return ledger.PurchaseRecord{}, 0, fmt.Errorf("%w: ticket %s changed during %d attempts",
		ledger.ErrTransientConflict, req.TicketID, dynamoPurchaseAttempts)
}

// purchaseAttemptToken is the idempotency token for one commit attempt. A
// retry re-reads the ticket and may send a different price, so each attempt
// needs its own token. Tokens are at most 36 characters.
func purchaseAttemptToken(purchaseID string, attempt int) string {
	if attempt == 0 && len(purchaseID) <= 36 {
		return purchaseID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", purchaseID, attempt))).String()
}

func (s *DynamoStore) commitPurchase(ctx context.Context, record ledger.PurchaseRecord, price int64, token string) error {
	item, err := attributevalue.MarshalMap(dynamoPurchase{
		PurchaseID:   record.PurchaseID,
		UserID:       record.UserID,
		TicketID:     record.TicketID,
		Quantity:     record.Quantity,
		TotalPrice:   record.TotalPrice,
		PurchaseTime: formatDynamoTime(record.PurchaseTime),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal purchase: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		ClientRequestToken: aws.String(token),
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:           aws.String(s.tables.Tickets),
					Key:                 stringKey("ticket_id", record.TicketID),
					UpdateExpression:    aws.String("SET quantity_sold = quantity_sold + :q, quantity_remaining = quantity_remaining - :q"),
					ConditionExpression: aws.String("attribute_exists(ticket_id) AND quantity_remaining >= :q AND price = :price"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":q":     numberValue(record.Quantity),
						":price": numberValue(price),
					},
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.tables.Purchases),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(purchase_id)"),
				},
			},
		},
	})
	return err
}

// stockConditionFailed reports whether the ticket update, the first item of
// the transaction, failed its condition.
func stockConditionFailed(e *types.TransactionCanceledException) bool {
	if len(e.CancellationReasons) == 0 {
		return false
	}
	return aws.ToString(e.CancellationReasons[0].Code) == "ConditionalCheckFailed"
}

// classifyDynamoError maps SDK errors onto the ledger error taxonomy.
func classifyDynamoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ledger.ErrTransientConflict, err)
	}

	var (
		canceled   *types.TransactionCanceledException
		conflict   *types.TransactionConflictException
		inProgress *types.TransactionInProgressException
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
	)
	switch {
	case errors.As(err, &canceled):
		for _, reason := range canceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "TransactionConflict", "ThrottlingError", "ProvisionedThroughputExceeded":
				return fmt.Errorf("%w: %v", ledger.ErrTransientConflict, err)
			}
		}
	case errors.As(err, &conflict), errors.As(err, &inProgress),
		errors.As(err, &throughput), errors.As(err, &limit):
		return fmt.Errorf("%w: %v", ledger.ErrTransientConflict, err)
	}
	return fmt.Errorf("%w: %v", ledger.ErrStorageFailure, err)
}

// Remaining implements ledger.Store.
func (s *DynamoStore) Remaining(ctx context.Context, ticketID string) (int, error) {
	ticket, err := s.getTicket(ctx, ticketID, false)
	if err != nil {
		return 0, classifyDynamoError(err)
	}
	if ticket == nil {
		return 0, ledger.ErrTicketNotFound
	}
	return ticket.QuantityRemaining, nil
}

// ListPurchases implements ledger.Store.
func (s *DynamoStore) ListPurchases(ctx context.Context, userID string) ([]ledger.PurchaseRecord, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Purchases),
		IndexName:              aws.String(purchasesByUserIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false), // Most recent first
	})

	records := make([]ledger.PurchaseRecord, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyDynamoError(err)
		}
		var items []dynamoPurchase
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal purchases: %v", ledger.ErrStorageFailure, err)
		}
		for _, item := range items {
			records = append(records, item.toRecord())
		}
	}
	return records, nil
}

// Aggregate implements ledger.Store.
func (s *DynamoStore) Aggregate(ctx context.Context) (ledger.Summary, error) {
	var summary ledger.Summary

	purchases := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.tables.Purchases),
		ProjectionExpression: aws.String("quantity, total_price"),
	})
	for purchases.HasMorePages() {
		page, err := purchases.NextPage(ctx)
		if err != nil {
			return ledger.Summary{}, classifyDynamoError(err)
		}
		var items []dynamoPurchase
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return ledger.Summary{}, fmt.Errorf("%w: failed to unmarshal purchases: %v", ledger.ErrStorageFailure, err)
		}
		for _, item := range items {
			summary.TotalTicketsSold += int64(item.Quantity)
			summary.TotalSales += item.TotalPrice
		}
	}

	events := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tables.Events),
		Select:    types.SelectCount,
	})
	for events.HasMorePages() {
		page, err := events.NextPage(ctx)
		if err != nil {
			return ledger.Summary{}, classifyDynamoError(err)
		}
		summary.NumberOfEvents += int64(page.Count)
	}

	return summary, nil
}

// CreateEvent implements catalog.Store.
func (s *DynamoStore) CreateEvent(ctx context.Context, e *catalog.Event) error {
	item, err := attributevalue.MarshalMap(dynamoEvent{
		EventID:     e.ID,
		OrganizerID: e.OrganizerID,
		Name:        e.Name,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    formatDynamoTime(e.StartsAt),
		CreatedAt:   formatDynamoTime(e.CreatedAt),
		UpdatedAt:   formatDynamoTime(e.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Events),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(event_id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put event: %w", err)
	}
	return nil
}

// GetEvent implements catalog.Store.
func (s *DynamoStore) GetEvent(ctx context.Context, id string) (*catalog.Event, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tables.Events),
		Key:       stringKey("event_id", id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if out.Item == nil {
		return nil, catalog.ErrEventNotFound
	}

	var item dynamoEvent
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	e := item.toEvent()
	return &e, nil
}

// ListEvents implements catalog.Store.
func (s *DynamoStore) ListEvents(ctx context.Context) ([]catalog.Event, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tables.Events),
	})

	events := make([]catalog.Event, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan events: %w", err)
		}
		var items []dynamoEvent
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}
		for _, item := range items {
			events = append(events, item.toEvent())
		}
	}
	return events, nil
}

// CreateTicket implements catalog.Store.
func (s *DynamoStore) CreateTicket(ctx context.Context, t *ledger.TicketStock) error {
	if _, err := s.GetEvent(ctx, t.EventID); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(dynamoTicket{
		TicketID:          t.TicketID,
		EventID:           t.EventID,
		TicketType:        t.TicketType,
		Price:             t.Price,
		QuantityAvailable: t.QuantityAvailable,
		QuantitySold:      0,
		QuantityRemaining: t.QuantityAvailable,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Tickets),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(ticket_id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put ticket: %w", err)
	}
	return nil
}

// GetTicket implements catalog.Store.
func (s *DynamoStore) GetTicket(ctx context.Context, id string) (*ledger.TicketStock, error) {
	ticket, err := s.getTicket(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return nil, catalog.ErrTicketNotFound
	}
	stock := ticket.toStock()
	return &stock, nil
}

// ListTickets implements catalog.Store.
func (s *DynamoStore) ListTickets(ctx context.Context, eventID string) ([]ledger.TicketStock, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Tickets),
		IndexName:              aws.String(ticketsByEventIndex),
		KeyConditionExpression: aws.String("event_id = :eid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":eid": &types.AttributeValueMemberS{Value: eventID},
		},
	})

	tickets := make([]ledger.TicketStock, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query tickets: %w", err)
		}
		var items []dynamoTicket
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tickets: %w", err)
		}
		for _, item := range items {
			tickets = append(tickets, item.toStock())
		}
	}
	return tickets, nil
}

// UpdateTicketPrice implements catalog.Store.
func (s *DynamoStore) UpdateTicketPrice(ctx context.Context, ticketID string, price int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Tickets),
		Key:                 stringKey("ticket_id", ticketID),
		UpdateExpression:    aws.String("SET price = :price"),
		ConditionExpression: aws.String("attribute_exists(ticket_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":price": numberValue(price),
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return catalog.ErrTicketNotFound
		}
		return fmt.Errorf("failed to update ticket price: %w", err)
	}
	return nil
}

// UpdateTicketQuantity implements catalog.Store. quantity_remaining is derived
// in the same write so the purchase condition stays exact.
func (s *DynamoStore) UpdateTicketQuantity(ctx context.Context, ticketID string, quantityAvailable int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Tickets),
		Key:                 stringKey("ticket_id", ticketID),
		UpdateExpression:    aws.String("SET quantity_available = :a, quantity_remaining = :a - quantity_sold"),
		ConditionExpression: aws.String("attribute_exists(ticket_id) AND quantity_sold <= :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": numberValue(quantityAvailable),
		},
	})
	if err == nil {
		return nil
	}

	var condErr *types.ConditionalCheckFailedException
	if !errors.As(err, &condErr) {
		return fmt.Errorf("failed to update ticket quantity: %w", err)
	}
	ticket, err := s.getTicket(ctx, ticketID, true)
	if err != nil {
		return fmt.Errorf("failed to check ticket: %w", err)
	}
	if ticket == nil {
		return catalog.ErrTicketNotFound
	}
	return catalog.ErrQuantityBelowSold
}
