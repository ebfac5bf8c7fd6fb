package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo answers DynamoAPI calls from per-operation callbacks and records inputs.
type fakeDynamo struct {
	mu sync.Mutex

	getItem  func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem  func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	update   func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	query    func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	scan     func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	transact func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)

	getCalls      int
	transactCalls []*dynamodb.TransactWriteItemsInput
	queryCalls    []*dynamodb.QueryInput
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	f.getCalls++
	f.mu.Unlock()
	return f.getItem(in)
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return f.putItem(in)
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return f.update(in)
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	f.queryCalls = append(f.queryCalls, in)
	f.mu.Unlock()
	return f.query(in)
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return f.scan(in)
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	f.transactCalls = append(f.transactCalls, in)
	f.mu.Unlock()
	return f.transact(in)
}

var testTables = DynamoTables{Events: "events", Tickets: "tickets", Purchases: "purchases"}

func ticketItem(t *testing.T, price int64, available, sold int) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(dynamoTicket{
		TicketID:          "ticket-1",
		EventID:           "event-1",
		TicketType:        "VIP",
		Price:             price,
		QuantityAvailable: available,
		QuantitySold:      sold,
		QuantityRemaining: available - sold,
	})
	require.NoError(t, err)
	return item
}

func conditionFailed() error {
	return &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}
}

// ============================================
// Purchase Tests
// ============================================

func TestDynamoStore_Purchase_Success(t *testing.T) {
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 10, 2)}, nil
		},
		transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	record, remaining, err := s.Purchase(context.Background(), testPurchaseRequest())

	require.NoError(t, err)
	assert.Equal(t, int64(15000), record.TotalPrice)
	assert.Equal(t, 5, remaining)

	require.Len(t, fake.transactCalls, 1)
	in := fake.transactCalls[0]
	assert.Equal(t, "p-1", aws.ToString(in.ClientRequestToken))
	require.Len(t, in.TransactItems, 2)
	assert.Equal(t, "tickets", aws.ToString(in.TransactItems[0].Update.TableName))
	assert.Contains(t, aws.ToString(in.TransactItems[0].Update.ConditionExpression), "quantity_remaining >= :q")
	assert.Equal(t, "purchases", aws.ToString(in.TransactItems[1].Put.TableName))

	var stored dynamoPurchase
	require.NoError(t, attributevalue.UnmarshalMap(in.TransactItems[1].Put.Item, &stored))
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "2026-03-01T10:00:00.000000000Z", stored.PurchaseTime)
}

func TestDynamoStore_Purchase_TicketNotFound(t *testing.T) {
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	_, _, err := s.Purchase(context.Background(), testPurchaseRequest())

	assert.ErrorIs(t, err, ledger.ErrTicketNotFound)
	assert.Empty(t, fake.transactCalls)
}

func TestDynamoStore_Purchase_InsufficientAfterConditionFailure(t *testing.T) {
	reads := 0
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			reads++
			if reads == 1 {
				return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 10, 5)}, nil
			}
			// Another buyer took the stock between the read and the commit.
			return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 10, 9)}, nil
		},
		transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, conditionFailed()
		},
	}
	s := NewDynamoStore(fake, testTables)

	_, _, err := s.Purchase(context.Background(), testPurchaseRequest())

	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Len(t, fake.transactCalls, 1)
}

func TestDynamoStore_Purchase_ConditionKeepsFailing(t *testing.T) {
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 10, 0)}, nil
		},
		transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, conditionFailed()
		},
	}
	s := NewDynamoStore(fake, testTables)

	_, _, err := s.Purchase(context.Background(), testPurchaseRequest())

	assert.ErrorIs(t, err, ledger.ErrTransientConflict)
	assert.Len(t, fake.transactCalls, dynamoPurchaseAttempts)
}

func TestDynamoStore_Purchase_RetryAfterPriceChangeUsesNewToken(t *testing.T) {
	reads := 0
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			reads++
			if reads == 1 {
				return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 10, 0)}, nil
			}
			// The organizer changed the price between the read and the commit.
			return &dynamodb.GetItemOutput{Item: ticketItem(t, 6000, 10, 0)}, nil
		},
	}
	fake.transact = func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		if len(fake.transactCalls) == 1 {
			return nil, conditionFailed()
		}
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	s := NewDynamoStore(fake, testTables)

	record, _, err := s.Purchase(context.Background(), testPurchaseRequest())

	require.NoError(t, err)
	assert.Equal(t, int64(18000), record.TotalPrice)
	require.Len(t, fake.transactCalls, 2)
	first := aws.ToString(fake.transactCalls[0].ClientRequestToken)
	second := aws.ToString(fake.transactCalls[1].ClientRequestToken)
	assert.Equal(t, "p-1", first)
	assert.NotEqual(t, first, second)
	assert.LessOrEqual(t, len(second), 36)
}

func TestPurchaseAttemptToken(t *testing.T) {
	long := "purchase-id-that-is-longer-than-thirty-six-characters"

	assert.Equal(t, "p-1", purchaseAttemptToken("p-1", 0))
	assert.Equal(t, purchaseAttemptToken("p-1", 1), purchaseAttemptToken("p-1", 1))
	assert.NotEqual(t, purchaseAttemptToken("p-1", 1), purchaseAttemptToken("p-1", 2))
	assert.Len(t, purchaseAttemptToken(long, 0), 36)
}

func TestDynamoStore_Purchase_TransactionConflictIsTransient(t *testing.T) {
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 10, 0)}, nil
		},
		transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, &types.TransactionCanceledException{
				CancellationReasons: []types.CancellationReason{
					{Code: aws.String("TransactionConflict")},
					{Code: aws.String("None")},
				},
			}
		},
	}
	s := NewDynamoStore(fake, testTables)

	_, _, err := s.Purchase(context.Background(), testPurchaseRequest())

	assert.ErrorIs(t, err, ledger.ErrTransientConflict)
	assert.Len(t, fake.transactCalls, 1)
}

func TestDynamoStore_Purchase_InsufficientWithoutWrite(t *testing.T) {
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 2, 0)}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	_, _, err := s.Purchase(context.Background(), testPurchaseRequest())

	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Empty(t, fake.transactCalls)
}

func TestClassifyDynamoError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throughput", &types.ProvisionedThroughputExceededException{}, ledger.ErrTransientConflict},
		{"in progress", &types.TransactionInProgressException{}, ledger.ErrTransientConflict},
		{"conflict", &types.TransactionConflictException{}, ledger.ErrTransientConflict},
		{"request limit", &types.RequestLimitExceeded{}, ledger.ErrTransientConflict},
		{"context", context.DeadlineExceeded, ledger.ErrTransientConflict},
		{"validation", errors.New("ValidationException"), ledger.ErrStorageFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyDynamoError(tt.err), tt.want)
		})
	}
}

// ============================================
// Query Tests
// ============================================

func TestDynamoStore_Remaining(t *testing.T) {
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: ticketItem(t, 5000, 10, 4)}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	remaining, err := s.Remaining(context.Background(), "ticket-1")

	require.NoError(t, err)
	assert.Equal(t, 6, remaining)
}

func TestDynamoStore_ListPurchases(t *testing.T) {
	newer, err := attributevalue.MarshalMap(dynamoPurchase{
		PurchaseID: "p-2", UserID: "user-1", TicketID: "ticket-1", Quantity: 1, TotalPrice: 5000,
		PurchaseTime: "2026-03-02T10:00:00.000000000Z",
	})
	require.NoError(t, err)
	older, err := attributevalue.MarshalMap(dynamoPurchase{
		PurchaseID: "p-1", UserID: "user-1", TicketID: "ticket-1", Quantity: 2, TotalPrice: 10000,
		PurchaseTime: "2026-03-01T10:00:00.000000000Z",
	})
	require.NoError(t, err)

	fake := &fakeDynamo{
		query: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{newer, older}}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	records, err := s.ListPurchases(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p-2", records[0].PurchaseID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), records[1].PurchaseTime)

	require.Len(t, fake.queryCalls, 1)
	assert.Equal(t, purchasesByUserIndex, aws.ToString(fake.queryCalls[0].IndexName))
	assert.False(t, aws.ToBool(fake.queryCalls[0].ScanIndexForward))
}

func TestDynamoStore_Aggregate(t *testing.T) {
	p1, _ := attributevalue.MarshalMap(map[string]any{"quantity": 2, "total_price": 10000})
	p2, _ := attributevalue.MarshalMap(map[string]any{"quantity": 1, "total_price": 5000})

	fake := &fakeDynamo{
		scan: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			switch aws.ToString(in.TableName) {
			case "purchases":
				return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{p1, p2}}, nil
			case "events":
				assert.Equal(t, types.SelectCount, in.Select)
				return &dynamodb.ScanOutput{Count: 4}, nil
			}
			return nil, errors.New("unexpected table")
		},
	}
	s := NewDynamoStore(fake, testTables)

	summary, err := s.Aggregate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ledger.Summary{TotalTicketsSold: 3, TotalSales: 15000, NumberOfEvents: 4}, summary)
}

// ============================================
// Catalog Tests
// ============================================

func TestDynamoStore_CreateTicket_SetsRemaining(t *testing.T) {
	eventItem, _ := attributevalue.MarshalMap(dynamoEvent{EventID: "event-1", OrganizerID: "org-1", Name: "Concert"})
	var put *dynamodb.PutItemInput
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: eventItem}, nil
		},
		putItem: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			put = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	err := s.CreateTicket(context.Background(), &ledger.TicketStock{
		TicketID: "ticket-1", EventID: "event-1", TicketType: "GA", Price: 1000, QuantityAvailable: 50,
	})

	require.NoError(t, err)
	require.NotNil(t, put)
	var stored dynamoTicket
	require.NoError(t, attributevalue.UnmarshalMap(put.Item, &stored))
	assert.Equal(t, 50, stored.QuantityRemaining)
	assert.Equal(t, 0, stored.QuantitySold)
}

func TestDynamoStore_GetEvent_NotFound(t *testing.T) {
	fake := &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	_, err := s.GetEvent(context.Background(), "missing")

	assert.ErrorIs(t, err, catalog.ErrEventNotFound)
}

func TestDynamoStore_UpdateTicketPrice_NotFound(t *testing.T) {
	fake := &fakeDynamo{
		update: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}
	s := NewDynamoStore(fake, testTables)

	err := s.UpdateTicketPrice(context.Background(), "missing", 100)

	assert.ErrorIs(t, err, catalog.ErrTicketNotFound)
}

func TestDynamoStore_UpdateTicketQuantity(t *testing.T) {
	var updates []*dynamodb.UpdateItemInput
	fake := &fakeDynamo{
		update: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			updates = append(updates, in)
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := NewDynamoStore(fake, testTables)

	require.NoError(t, s.UpdateTicketQuantity(context.Background(), "ticket-1", 8))

	require.Len(t, updates, 1)
	assert.Contains(t, aws.ToString(updates[0].ConditionExpression), "quantity_sold <= :a")
	assert.Contains(t, aws.ToString(updates[0].UpdateExpression), "quantity_remaining = :a - quantity_sold")
}

func TestDynamoStore_UpdateTicketQuantity_ConditionFailed(t *testing.T) {
	tests := []struct {
		name string
		item map[string]types.AttributeValue
		want error
	}{
		{"below sold", ticketItem(t, 5000, 10, 6), catalog.ErrQuantityBelowSold},
		{"missing ticket", nil, catalog.ErrTicketNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDynamo{
				update: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
					return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
				},
				getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
					return &dynamodb.GetItemOutput{Item: tt.item}, nil
				},
			}
			s := NewDynamoStore(fake, testTables)

			err := s.UpdateTicketQuantity(context.Background(), "ticket-1", 5)

			assert.ErrorIs(t, err, tt.want)
		})
	}
}
