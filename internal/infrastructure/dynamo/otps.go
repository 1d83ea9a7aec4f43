package dynamo

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
	"github.com/go-auth-nosql/internal/domain"
)

// OTPRepo manages one-time code records.
// PK: otp_id. GSIs: account_id-created_at-index, email-created_at-index.
type OTPRepo struct {
	client    API
	tx        *TxManager
	tableName string
}

func NewOTPRepo(client API, tx *TxManager, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tx: tx, tableName: tableName}
}

func (r *OTPRepo) Create(ctx context.Context, c *domain.OneTimeCode) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	return r.tx.write(ctx, types.TransactWriteItem{Put: &types.Put{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": fieldOTPID},
	}})
}

func (r *OTPRepo) Get(ctx context.Context, otpID string) (*domain.OneTimeCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldOTPID, otpID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var c domain.OneTimeCode
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteUnusedByAccount removes every unused record of the account.
func (r *OTPRepo) DeleteUnusedByAccount(ctx context.Context, accountID string) error {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexOTPAccountCreatedAt),
		KeyConditionExpression: aws.String("#a = :a"),
		FilterExpression:       aws.String("#u = :f"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAccountID,
			"#u": fieldUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": strAV(accountID),
			":f": boolAV(false),
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := r.tx.write(ctx, types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       map[string]types.AttributeValue{fieldOTPID: item[fieldOTPID]},
			}}); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindLatestByEmail returns the newest record for email that has not expired
// at now, whether or not it was used. The email index is eventually consistent,
// so it only supplies candidate ids, newest first; each candidate is re-read
// with a consistent Get and re-checked before it is returned. Candidates
// deleted since the index was written are skipped. The expiry predicate runs
// as a filter so Limit is not set.
func (r *OTPRepo) FindLatestByEmail(ctx context.Context, email string, now time.Time) (*domain.OneTimeCode, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexOTPEmailCreatedAt),
		KeyConditionExpression: aws.String("#e = :e"),
		FilterExpression:       aws.String("#x > :now"),
		ProjectionExpression:   aws.String("#k"),
		ScanIndexForward:       aws.Bool(false),
		ExpressionAttributeNames: map[string]string{
			"#e": fieldEmail,
			"#x": fieldExpiresAt,
			"#k": fieldOTPID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e":   strAV(domain.NormalizeEmail(email)),
			":now": intAV(now.Unix()),
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			var key struct {
				OTPID string `dynamodbav:"otp_id"`
			}
			if err := attributevalue.UnmarshalMap(item, &key); err != nil {
				return nil, err
			}
			c, err := r.Get(ctx, key.OTPID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !c.ExpiresAt.After(now) {
				continue
			}
			return c, nil
		}
	}
	return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
}

// IncrementAttempts atomically adds one to attempts while the record is unused
// and below max, returning the new count. The increment that reaches max sets
// used in the same write, so no consume can land between the two. A record
// already used or at max yields domain.ErrConditionFailed.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, otpID string, max int) (int, error) {
	n, err := r.addAttempt(ctx, otpID, int64(max-1), false)
	if !errors.Is(err, domain.ErrConditionFailed) {
		return n, err
	}
	// Either this is the final miss or the record is already closed.
	return r.addAttempt(ctx, otpID, int64(max-1), true)
}

// addAttempt increments attempts below last, or at exactly last when lock is
// set, in which case used is set too.
func (r *OTPRepo) addAttempt(ctx context.Context, otpID string, last int64, lock bool) (int, error) {
	update, cond := "ADD #n :one", "#u = :f AND #n < :last"
	values := map[string]types.AttributeValue{
		":one":  intAV(1),
		":f":    boolAV(false),
		":last": intAV(last),
	}
	if lock {
		update, cond = "ADD #n :one SET #u = :t", "#u = :f AND #n = :last"
		values[":t"] = boolAV(true)
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldOTPID, otpID),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  map[string]string{"#n": fieldAttempts, "#u": fieldUsed},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, conditionErr(err)
	}
	n, ok := out.Attributes[fieldAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("increment attempts: missing attempts in response")
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return v, nil
}

// MarkUsed sets used unconditionally. used never goes back to false.
func (r *OTPRepo) MarkUsed(ctx context.Context, otpID string) error {
	return r.tx.write(ctx, types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldOTPID, otpID),
		UpdateExpression:          aws.String("SET #u = :t"),
		ConditionExpression:       aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames:  map[string]string{"#u": fieldUsed, "#k": fieldOTPID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":t": boolAV(true)},
	}})
}

// ConsumeIfUnused flips used from false to true while attempts is below max.
// It reports false when another caller consumed or locked the record first.
// The write is never buffered in a scope.
func (r *OTPRepo) ConsumeIfUnused(ctx context.Context, otpID string, max int) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldOTPID, otpID),
		UpdateExpression:         aws.String("SET #u = :t"),
		ConditionExpression:      aws.String("#u = :f AND #n < :max"),
		ExpressionAttributeNames: map[string]string{"#u": fieldUsed, "#n": fieldAttempts},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   boolAV(true),
			":f":   boolAV(false),
			":max": intAV(int64(max)),
		},
	})
	if err := conditionErr(err); err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteExpired removes records whose expiry is before the given time and
// returns how many were deleted.
func (r *OTPRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	cutoff := intAV(before.Unix())
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("#x < :c"),
		ProjectionExpression:      aws.String("#k"),
		ExpressionAttributeNames:  map[string]string{"#x": fieldExpiresAt, "#k": fieldOTPID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":c": cutoff},
	})
	deleted := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return deleted, err
		}
		for _, item := range page.Items {
			_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                 aws.String(r.tableName),
				Key:                       map[string]types.AttributeValue{fieldOTPID: item[fieldOTPID]},
				ConditionExpression:       aws.String("#x < :c"),
				ExpressionAttributeNames:  map[string]string{"#x": fieldExpiresAt},
				ExpressionAttributeValues: map[string]types.AttributeValue{":c": cutoff},
			})
			if err := conditionErr(err); err != nil {
				if errors.Is(err, domain.ErrConditionFailed) {
					continue
				}
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
