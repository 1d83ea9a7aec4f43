package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// maxTransactItems is DynamoDB's TransactWriteItems limit.
const maxTransactItems = 100

var errScopeClosed = errors.New("transaction scope closed")

type txKey struct{}

// txScope buffers the writes of one WithTx call.
type txScope struct {
	mu     sync.Mutex
	items  []types.TransactWriteItem
	closed bool
}

func (s *txScope) add(item types.TransactWriteItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errScopeClosed
	}
	s.items = append(s.items, item)
	return nil
}

// drain closes the scope and returns what was buffered.
func (s *txScope) drain() []types.TransactWriteItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	items := s.items
	s.items = nil
	return items
}

// TxManager commits buffered writes with a single TransactWriteItems call.
// Repos route every write through it so the same code path works inside and
// outside a scope.
type TxManager struct {
	client API
}

func NewTxManager(client API) *TxManager {
	return &TxManager{client: client}
}

// WithTx runs fn with a write scope in its context. Writes issued through that
// context are held until fn returns nil and then committed together; an error
// from fn discards them. Reads are not isolated, so every guard a caller relies
// on must also be expressed as a condition on the buffered writes. Nested calls
// join the outer scope.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txScope); ok {
		return fn(ctx)
	}
	scope := &txScope{}
	defer scope.drain()
	err := fn(context.WithValue(ctx, txKey{}, scope))
	items := scope.drain()
	if err != nil {
		if len(items) > 0 {
			slog.Debug("transaction rolled back", "items", len(items), "err", err)
		}
		return err
	}
	return m.commit(ctx, items)
}

func (m *TxManager) commit(ctx context.Context, items []types.TransactWriteItem) error {
	switch {
	case len(items) == 0:
		return nil
	case len(items) > maxTransactItems:
		return fmt.Errorf("transaction has %d writes, limit is %d", len(items), maxTransactItems)
	}
	_, err := m.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	// Only a failed condition means the stored state rules the writes out.
	// Contention (TransactionConflict, throttling) is transient and surfaces as is.
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
				return domain.Errorf(domain.KindConflict, "conflicting write: %s", *r.Code)
			}
		}
	}
	return fmt.Errorf("commit transaction: %w", err)
}

// write buffers item into the scope carried by ctx, or applies it right away
// when there is none. A failed condition on a direct write is reported as
// domain.ErrConditionFailed.
func (m *TxManager) write(ctx context.Context, item types.TransactWriteItem) error {
	if scope, ok := ctx.Value(txKey{}).(*txScope); ok {
		return scope.add(item)
	}
	var err error
	switch {
	case item.Put != nil:
		p := item.Put
		_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 p.TableName,
			Item:                      p.Item,
			ConditionExpression:       p.ConditionExpression,
			ExpressionAttributeNames:  p.ExpressionAttributeNames,
			ExpressionAttributeValues: p.ExpressionAttributeValues,
		})
	case item.Update != nil:
		u := item.Update
		_, err = m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 u.TableName,
			Key:                       u.Key,
			UpdateExpression:          u.UpdateExpression,
			ConditionExpression:       u.ConditionExpression,
			ExpressionAttributeNames:  u.ExpressionAttributeNames,
			ExpressionAttributeValues: u.ExpressionAttributeValues,
		})
	case item.Delete != nil:
		d := item.Delete
		_, err = m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 d.TableName,
			Key:                       d.Key,
			ConditionExpression:       d.ConditionExpression,
			ExpressionAttributeNames:  d.ExpressionAttributeNames,
			ExpressionAttributeValues: d.ExpressionAttributeValues,
		})
	default:
		return errors.New("unsupported write")
	}
	return conditionErr(err)
}

func conditionErr(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return domain.ErrConditionFailed
	}
	return err
}
