package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// ProfileRepo manages role profiles.
// PK: account_id, SK: role
type ProfileRepo struct {
	client    API
	tx        *TxManager
	tableName string
}

func NewProfileRepo(client API, tx *TxManager, tableName string) *ProfileRepo {
	return &ProfileRepo{client: client, tx: tx, tableName: tableName}
}

// Create puts p unless a profile for the same (account, role) exists.
func (r *ProfileRepo) Create(ctx context.Context, p *domain.RoleProfile) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	err = r.tx.write(ctx, types.TransactWriteItem{Put: &types.Put{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": fieldAccountID},
	}})
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.Errorf(domain.KindConflict, "%s profile already exists", p.Role)
	}
	return err
}

func (r *ProfileRepo) Get(ctx context.Context, accountID string, role domain.Role) (*domain.RoleProfile, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldAccountID, accountID, fieldRole, string(role)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
	}
	var p domain.RoleProfile
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) Exists(ctx context.Context, accountID string, role domain.Role) (bool, error) {
	_, err := r.Get(ctx, accountID, role)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
