package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// emailClaim is the uniqueness sentinel stored in the account_emails table.
type emailClaim struct {
	Email     string `dynamodbav:"email"`
	AccountID string `dynamodbav:"account_id"`
}

// AccountRepo provides typed DynamoDB operations for the accounts table and
// its email uniqueness table.
type AccountRepo struct {
	client      API
	tx          *TxManager
	tableName   string
	emailsTable string
}

func NewAccountRepo(client API, tx *TxManager, tableName, emailsTable string) *AccountRepo {
	return &AccountRepo{client: client, tx: tx, tableName: tableName, emailsTable: emailsTable}
}

// Create writes the account and claims its email in one transaction, joining
// the caller's scope when there is one. Either write failing its
// attribute_not_exists condition aborts both.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	claim, err := attributevalue.MarshalMap(emailClaim{Email: a.Email, AccountID: a.AccountID})
	if err != nil {
		return fmt.Errorf("marshal email claim: %w", err)
	}
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.tx.write(ctx, types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(r.tableName),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#k)"),
			ExpressionAttributeNames: map[string]string{"#k": fieldAccountID},
		}}); err != nil {
			return err
		}
		return r.tx.write(ctx, types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(r.emailsTable),
			Item:                     claim,
			ConditionExpression:      aws.String("attribute_not_exists(#k)"),
			ExpressionAttributeNames: map[string]string{"#k": fieldEmail},
		}})
	})
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldAccountID, accountID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByEmail resolves the account through the email claim table, which is
// strongly consistent, rather than the eventually consistent email-index.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.emailsTable),
		Key:            strKey(fieldEmail, domain.NormalizeEmail(email)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var c emailClaim
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return r.Get(ctx, c.AccountID)
}

// UpgradeRole overwrites role, name and password hash of a, provided the
// stored role still equals from.
func (r *AccountRepo) UpgradeRole(ctx context.Context, a *domain.Account, from domain.Role) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldRole:         a.Role,
		fieldName:         a.Name,
		fieldPasswordHash: a.PasswordHash,
		fieldUpdatedAt:    a.UpdatedAt,
	})
	if err != nil {
		return err
	}
	ue = ue.with(map[string]string{"#cr": fieldRole}, map[string]types.AttributeValue{":cr": strAV(string(from))})
	err = r.tx.write(ctx, types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldAccountID, a.AccountID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#cr = :cr"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	}})
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.Errorf(domain.KindConflict, "account role changed concurrently")
	}
	return err
}

func (r *AccountRepo) SetVerified(ctx context.Context, accountID string, now time.Time) error {
	return r.update(ctx, accountID, map[string]interface{}{
		fieldVerified:  true,
		fieldUpdatedAt: now,
	})
}

func (r *AccountRepo) SetPasswordHash(ctx context.Context, accountID, hash string, now time.Time) error {
	return r.update(ctx, accountID, map[string]interface{}{
		fieldPasswordHash: hash,
		fieldUpdatedAt:    now,
	})
}

// ClaimOTPSend stamps the account with now unless an OTP was sent less than
// cooldown ago. A refused claim surfaces as domain.ErrConditionFailed, or as a
// Conflict at commit when buffered in a scope.
func (r *AccountRepo) ClaimOTPSend(ctx context.Context, accountID string, now time.Time, cooldown time.Duration) error {
	return r.tx.write(ctx, types.TransactWriteItem{Update: &types.Update{
		TableName:        aws.String(r.tableName),
		Key:              strKey(fieldAccountID, accountID),
		UpdateExpression: aws.String("SET #s = :now"),
		ConditionExpression: aws.String(
			"attribute_exists(#k) AND (attribute_not_exists(#s) OR #s <= :cutoff)"),
		ExpressionAttributeNames: map[string]string{"#s": fieldOTPSentAt, "#k": fieldAccountID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":    intAV(now.Unix()),
			":cutoff": intAV(now.Add(-cooldown).Unix()),
		},
	}})
}

func (r *AccountRepo) update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue = ue.with(map[string]string{"#k": fieldAccountID}, nil)
	err = r.tx.write(ctx, types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldAccountID, accountID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	}})
	if errors.Is(err, domain.ErrConditionFailed) {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return err
}
