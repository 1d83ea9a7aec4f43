package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func putItem(table string) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(table),
		Item:      strKey("id", table),
	}}
}

func TestWithTx_CommitsBufferedWritesTogether(t *testing.T) {
	api := &mockAPI{}
	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 2
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	m := NewTxManager(api)

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, m.write(ctx, putItem("a")))
		return m.write(ctx, putItem("b"))
	})

	require.NoError(t, err)
	api.AssertExpectations(t)
	api.AssertNotCalled(t, "PutItem", mock.Anything, mock.Anything)
}

func TestWithTx_ErrorDiscardsWrites(t *testing.T) {
	api := &mockAPI{}
	m := NewTxManager(api)
	boom := errors.New("boom")

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, m.write(ctx, putItem("a")))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	api.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
}

func TestWithTx_NestedJoinsOuterScope(t *testing.T) {
	api := &mockAPI{}
	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 2
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	m := NewTxManager(api)

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		if err := m.write(ctx, putItem("a")); err != nil {
			return err
		}
		return m.WithTx(ctx, func(ctx context.Context) error {
			return m.write(ctx, putItem("b"))
		})
	})

	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "TransactWriteItems", 1)
}

func TestWithTx_ScopeClosedAfterReturn(t *testing.T) {
	api := &mockAPI{}
	m := NewTxManager(api)
	var leaked context.Context

	require.NoError(t, m.WithTx(context.Background(), func(ctx context.Context) error {
		leaked = ctx
		return nil
	}))

	assert.ErrorIs(t, m.write(leaked, putItem("late")), errScopeClosed)
}

func TestWithTx_CancelledByConditionIsConflict(t *testing.T) {
	api := &mockAPI{}
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	})
	m := NewTxManager(api)

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		_ = m.write(ctx, putItem("a"))
		return m.write(ctx, putItem("b"))
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestWithTx_ContentionIsNotConflict(t *testing.T) {
	cases := map[string]error{
		"cancelled by conflict": &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("TransactionConflict")},
			},
		},
		"conflict exception": &types.TransactionConflictException{},
	}
	for name, commitErr := range cases {
		t.Run(name, func(t *testing.T) {
			api := &mockAPI{}
			api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, commitErr)
			m := NewTxManager(api)

			err := m.WithTx(context.Background(), func(ctx context.Context) error {
				return m.write(ctx, putItem("a"))
			})

			require.Error(t, err)
			assert.NotErrorIs(t, err, domain.ErrConflict)
			assert.ErrorIs(t, err, commitErr)
		})
	}
}

func TestWithTx_OtherCommitErrorsSurface(t *testing.T) {
	api := &mockAPI{}
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
	m := NewTxManager(api)

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		return m.write(ctx, putItem("a"))
	})

	assert.ErrorContains(t, err, "throttled")
	assert.Equal(t, domain.KindUnknown, domain.KindOf(err))
}

func TestWrite_DirectConditionFailure(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
	m := NewTxManager(api)

	err := m.write(context.Background(), putItem("a"))

	assert.ErrorIs(t, err, domain.ErrConditionFailed)
}

func TestAccountRepo_CreateWritesAccountAndEmailClaimAtomically(t *testing.T) {
	api := &mockAPI{}
	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		if len(in.TransactItems) != 2 {
			return false
		}
		return *in.TransactItems[0].Put.TableName == "accounts" &&
			*in.TransactItems[1].Put.TableName == "account_emails" &&
			*in.TransactItems[1].Put.ConditionExpression == "attribute_not_exists(#k)"
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	repo := NewAccountRepo(api, NewTxManager(api), "accounts", "account_emails")

	err := repo.Create(context.Background(), &domain.Account{
		AccountID: "acc-1",
		Email:     "a@b.com",
		Role:      domain.RoleCustomer,
		CreatedAt: time.Now(),
	})

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestAccountRepo_UpgradeRoleGuardsExpectedRole(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		v, ok := in.ExpressionAttributeValues[":cr"].(*types.AttributeValueMemberS)
		return ok && v.Value == "Customer" && *in.ConditionExpression == "#cr = :cr"
	})).Return(nil, &types.ConditionalCheckFailedException{})
	repo := NewAccountRepo(api, NewTxManager(api), "accounts", "account_emails")

	err := repo.UpgradeRole(context.Background(), &domain.Account{AccountID: "acc-1", Role: domain.RoleVendor}, domain.RoleCustomer)

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAccountRepo_GetMissingIsNotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)
	repo := NewAccountRepo(api, NewTxManager(api), "accounts", "account_emails")

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOTPRepo_IncrementAttemptsReturnsNewCount(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.UpdateExpression == "ADD #n :one" && in.ReturnValues == types.ReturnValueUpdatedNew
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{fieldAttempts: intAV(2)},
	}, nil)
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	n, err := repo.IncrementAttempts(context.Background(), "otp-1", 3)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOTPRepo_IncrementAttemptsFinalMissLocksInSameWrite(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.UpdateExpression == "ADD #n :one"
	})).Return(nil, &types.ConditionalCheckFailedException{}).Once()
	var lock *dynamodb.UpdateItemInput
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.UpdateExpression == "ADD #n :one SET #u = :t"
	})).Run(func(args mock.Arguments) {
		lock = args.Get(1).(*dynamodb.UpdateItemInput)
	}).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{fieldAttempts: intAV(3), fieldUsed: boolAV(true)},
	}, nil).Once()
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	n, err := repo.IncrementAttempts(context.Background(), "otp-1", 3)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "#u = :f AND #n = :last", *lock.ConditionExpression)
	assert.Equal(t, intAV(2), lock.ExpressionAttributeValues[":last"])
	api.AssertExpectations(t)
}

func TestOTPRepo_IncrementAttemptsClosedRecord(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	_, err := repo.IncrementAttempts(context.Background(), "otp-1", 3)

	assert.ErrorIs(t, err, domain.ErrConditionFailed)
	api.AssertNumberOfCalls(t, "UpdateItem", 2)
}

func TestOTPRepo_ConsumeIfUnusedGuardsAttempts(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		v, ok := in.ExpressionAttributeValues[":max"].(*types.AttributeValueMemberN)
		return *in.ConditionExpression == "#u = :f AND #n < :max" && ok && v.Value == "3"
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Once()
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{}).Once()
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	first, err := repo.ConsumeIfUnused(context.Background(), "otp-1", 3)
	require.NoError(t, err)
	second, err := repo.ConsumeIfUnused(context.Background(), "otp-1", 3)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func otpItem(id string, used bool, attempts int, expires time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		fieldOTPID:     strAV(id),
		fieldEmail:     strAV("a@b.com"),
		fieldUsed:      boolAV(used),
		fieldAttempts:  intAV(int64(attempts)),
		fieldExpiresAt: intAV(expires.Unix()),
		fieldCreatedAt: intAV(expires.Add(-10 * time.Minute).Unix()),
	}
}

func getsOTP(id string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		v, ok := in.Key[fieldOTPID].(*types.AttributeValueMemberS)
		return ok && v.Value == id && *in.ConsistentRead
	})
}

func TestOTPRepo_FindLatestByEmailTakesNewestMatch(t *testing.T) {
	api := &mockAPI{}
	now := time.Now()
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.Limit == nil && !*in.ScanIndexForward && *in.IndexName == indexOTPEmailCreatedAt
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{fieldOTPID: strAV("newest")},
	}}, nil)
	api.On("GetItem", mock.Anything, getsOTP("newest")).Return(&dynamodb.GetItemOutput{
		Item: otpItem("newest", false, 0, now.Add(5*time.Minute)),
	}, nil)
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	c, err := repo.FindLatestByEmail(context.Background(), "A@B.com", now)

	require.NoError(t, err)
	assert.Equal(t, "newest", c.OTPID)
	assert.Equal(t, now.Add(5*time.Minute).Unix(), c.ExpiresAt.Unix())
}

func TestOTPRepo_FindLatestByEmailRereadsStaleIndexEntry(t *testing.T) {
	api := &mockAPI{}
	now := time.Now()
	expires := now.Add(5 * time.Minute)
	// The index still shows the record before its final miss.
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		otpItem("otp-1", false, 2, expires),
	}}, nil)
	api.On("GetItem", mock.Anything, getsOTP("otp-1")).Return(&dynamodb.GetItemOutput{
		Item: otpItem("otp-1", true, 3, expires),
	}, nil)
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	c, err := repo.FindLatestByEmail(context.Background(), "a@b.com", now)

	require.NoError(t, err)
	assert.True(t, c.Used)
	assert.Equal(t, 3, c.Attempts)
}

func TestOTPRepo_FindLatestByEmailSkipsDeletedCandidate(t *testing.T) {
	api := &mockAPI{}
	now := time.Now()
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{fieldOTPID: strAV("gone")},
		{fieldOTPID: strAV("older")},
	}}, nil)
	api.On("GetItem", mock.Anything, getsOTP("gone")).Return(&dynamodb.GetItemOutput{}, nil)
	api.On("GetItem", mock.Anything, getsOTP("older")).Return(&dynamodb.GetItemOutput{
		Item: otpItem("older", true, 0, now.Add(time.Minute)),
	}, nil)
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	c, err := repo.FindLatestByEmail(context.Background(), "a@b.com", now)

	require.NoError(t, err)
	assert.Equal(t, "older", c.OTPID)
}

func TestOTPRepo_FindLatestByEmailExpiredOnReread(t *testing.T) {
	api := &mockAPI{}
	now := time.Now()
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{fieldOTPID: strAV("otp-1")},
	}}, nil)
	api.On("GetItem", mock.Anything, getsOTP("otp-1")).Return(&dynamodb.GetItemOutput{
		Item: otpItem("otp-1", false, 0, now.Add(-time.Second)),
	}, nil)
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	_, err := repo.FindLatestByEmail(context.Background(), "a@b.com", now)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOTPRepo_FindLatestByEmailNone(t *testing.T) {
	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	_, err := repo.FindLatestByEmail(context.Background(), "a@b.com", time.Now())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOTPRepo_DeleteUnusedByAccountJoinsTransaction(t *testing.T) {
	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.IndexName == indexOTPAccountCreatedAt && *in.FilterExpression == "#u = :f"
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{fieldOTPID: strAV("otp-1")},
		{fieldOTPID: strAV("otp-2")},
	}}, nil)
	var commit *dynamodb.TransactWriteItemsInput
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		commit = args.Get(1).(*dynamodb.TransactWriteItemsInput)
	}).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	m := NewTxManager(api)
	repo := NewOTPRepo(api, m, "otp_records")

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		return repo.DeleteUnusedByAccount(ctx, "acc-1")
	})

	require.NoError(t, err)
	require.Len(t, commit.TransactItems, 2)
	assert.Equal(t, strAV("otp-2"), commit.TransactItems[1].Delete.Key[fieldOTPID])
	api.AssertNotCalled(t, "DeleteItem", mock.Anything, mock.Anything)
}

func TestOTPRepo_DeleteUnusedByAccountOutsideTransaction(t *testing.T) {
	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{fieldOTPID: strAV("otp-1")},
	}}, nil)
	api.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	err := repo.DeleteUnusedByAccount(context.Background(), "acc-1")

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestOTPRepo_DeleteExpiredSkipsRefreshedRecords(t *testing.T) {
	api := &mockAPI{}
	before := time.Now()
	api.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return *in.FilterExpression == "#x < :c"
	})).Return(&dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
		{fieldOTPID: strAV("old-1")},
		{fieldOTPID: strAV("gone")},
		{fieldOTPID: strAV("old-2")},
	}}, nil)
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return in.Key[fieldOTPID].(*types.AttributeValueMemberS).Value == "gone"
	})).Return(nil, &types.ConditionalCheckFailedException{})
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return *in.ConditionExpression == "#x < :c" &&
			assert.ObjectsAreEqual(intAV(before.Unix()), in.ExpressionAttributeValues[":c"])
	})).Return(&dynamodb.DeleteItemOutput{}, nil)
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	n, err := repo.DeleteExpired(context.Background(), before)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	api.AssertNumberOfCalls(t, "DeleteItem", 3)
}

func TestOTPRepo_DeleteExpiredStopsOnStorageError(t *testing.T) {
	api := &mockAPI{}
	boom := errors.New("throttled")
	api.On("Scan", mock.Anything, mock.Anything).Return(&dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
		{fieldOTPID: strAV("old-1")},
		{fieldOTPID: strAV("old-2")},
	}}, nil)
	api.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()
	api.On("DeleteItem", mock.Anything, mock.Anything).Return(nil, boom).Once()
	repo := NewOTPRepo(api, NewTxManager(api), "otp_records")

	n, err := repo.DeleteExpired(context.Background(), time.Now())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}
