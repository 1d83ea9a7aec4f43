package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	"github.com/go-auth-nosql/internal/pkg/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

// hookedCodes runs beforeConsume once, just before the next consume.
type hookedCodes struct {
	*memory.OTPRepo
	beforeConsume func()
}

func (h *hookedCodes) ConsumeIfUnused(ctx context.Context, otpID string, max int) (bool, error) {
	if fn := h.beforeConsume; fn != nil {
		h.beforeConsume = nil
		fn()
	}
	return h.OTPRepo.ConsumeIfUnused(ctx, otpID, max)
}

// refusedCodes refuses every increment and fails the reload.
type refusedCodes struct {
	*memory.OTPRepo
	getErr error
}

func (r *refusedCodes) IncrementAttempts(context.Context, string, int) (int, error) {
	return 0, domain.ErrConditionFailed
}

func (r *refusedCodes) Get(context.Context, string) (*domain.OneTimeCode, error) {
	return nil, r.getErr
}

type failingTx struct{ err error }

func (f failingTx) WithTx(context.Context, func(ctx context.Context) error) error { return f.err }

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendOTP(ctx context.Context, to, name, code string) error {
	return m.Called(ctx, to, name, code).Error(0)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Issue(a *domain.Account) (*domain.Session, error) {
	args := m.Called(a)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Publish(ctx context.Context, e domain.AccountEvent) error {
	return m.Called(ctx, e).Error(0)
}

const testCode = "482913"

type fixture struct {
	svc      Service
	deps     ServiceDeps
	store    *memory.Store
	mailer   *mockMailer
	sessions *mockSessions
	events   *mockEvents
	now      time.Time
	account  *domain.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		mailer:   &mockMailer{},
		sessions: &mockSessions{},
		events:   &mockEvents{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.deps = ServiceDeps{
		TxManager:   f.store,
		AccountRepo: f.store.Accounts(),
		OTPRepo:     f.store.OTPs(),
		Hasher:      password.NewHasher(bcrypt.MinCost),
		Sessions:    f.sessions,
		Mailer:      f.mailer,
		Events:      f.events,
		Generate:    func() (string, error) { return testCode, nil },
		Now:         func() time.Time { return f.now },
		TTL:         10 * time.Minute,
		Cooldown:    time.Minute,
		MaxAttempts: 3,
	}
	f.svc = NewService(f.deps)
	f.account = &domain.Account{
		AccountID: "acc-1",
		Name:      "Alice",
		Email:     "alice@example.com",
		Role:      domain.RoleCustomer,
		Active:    true,
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	require.NoError(t, f.store.Accounts().Create(context.Background(), f.account))
	f.mailer.On("SendOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.sessions.On("Issue", mock.Anything).Return(&domain.Session{AccessToken: "acc", RefreshToken: "ref"}, nil)
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)
	return f
}

func (f *fixture) send(t *testing.T) {
	t.Helper()
	msg, err := f.svc.Send(context.Background(), f.account.Email)
	require.NoError(t, err)
	require.Equal(t, sentMessage, msg)
}

// --- Send ---

func TestSend_StoresHashedCodeAndMails(t *testing.T) {
	f := newFixture(t)

	f.send(t)

	rec, err := f.store.OTPs().FindLatestByEmail(context.Background(), "alice@example.com", f.now)
	require.NoError(t, err)
	assert.NotEqual(t, testCode, rec.CodeHash)
	assert.Equal(t, 0, rec.Attempts)
	assert.False(t, rec.Used)
	assert.Equal(t, f.now.Add(10*time.Minute), rec.ExpiresAt)
	f.mailer.AssertCalled(t, "SendOTP", mock.Anything, "alice@example.com", "Alice", testCode)
}

func TestSend_WithinCooldownIsRateLimited(t *testing.T) {
	f := newFixture(t)
	f.send(t)

	f.now = f.now.Add(30 * time.Second)
	_, err := f.svc.Send(context.Background(), f.account.Email)

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.EqualError(t, err, "Please wait 1 minute before requesting a new OTP")
	assert.Equal(t, 1, f.store.OTPs().CountUsable("acc-1", f.now))
	f.mailer.AssertNumberOfCalls(t, "SendOTP", 1)
}

func TestSend_AfterCooldownReplacesUnusedCode(t *testing.T) {
	f := newFixture(t)
	f.send(t)
	first, err := f.store.OTPs().FindLatestByEmail(context.Background(), f.account.Email, f.now)
	require.NoError(t, err)

	f.now = f.now.Add(61 * time.Second)
	f.send(t)

	assert.Equal(t, 1, f.store.OTPs().CountUsable("acc-1", f.now))
	_, err = f.store.OTPs().Get(context.Background(), first.OTPID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSend_ConcurrentSendsOneWins(t *testing.T) {
	f := newFixture(t)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Send(context.Background(), f.account.Email)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.store.OTPs().CountUsable("acc-1", f.now))
}

func TestSend_CommitContentionIsNotRateLimited(t *testing.T) {
	f := newFixture(t)
	contention := errors.New("commit transaction: TransactionConflict")
	d := f.deps
	d.TxManager = failingTx{err: contention}

	_, err := NewService(d).Send(context.Background(), f.account.Email)

	assert.ErrorIs(t, err, contention)
	assert.NotErrorIs(t, err, domain.ErrRateLimited)
	f.mailer.AssertNotCalled(t, "SendOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSend_VerifiedAccountIsNotFound(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Accounts().SetVerified(context.Background(), "acc-1", f.now))

	_, err := f.svc.Send(context.Background(), f.account.Email)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualError(t, err, "User not found or already verified")
}

func TestSend_UnknownEmailIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSend_DeliveryFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.mailer.ExpectedCalls = nil
	f.mailer.On("SendOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	_, err := f.svc.Send(context.Background(), f.account.Email)

	assert.Error(t, err)
	assert.Equal(t, domain.KindUnknown, domain.KindOf(err))
}

// --- Verify ---

func TestVerify_CorrectCodeVerifiesAccount(t *testing.T) {
	f := newFixture(t)
	f.send(t)

	sess, err := f.svc.Verify(context.Background(), "ALICE@example.com", testCode)

	require.NoError(t, err)
	assert.Equal(t, "acc", sess.AccessToken)
	a, err := f.store.Accounts().Get(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, a.Verified)
	assert.Equal(t, 0, f.store.OTPs().CountUsable("acc-1", f.now))
	f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(e domain.AccountEvent) bool {
		return e.Type == domain.EventAccountVerified
	}))
}

func TestVerify_WrongCodeIsIncorrect(t *testing.T) {
	f := newFixture(t)
	f.send(t)

	_, err := f.svc.Verify(context.Background(), f.account.Email, "000000")

	assert.ErrorIs(t, err, domain.ErrIncorrectCode)
	rec, err := f.store.OTPs().FindLatestByEmail(context.Background(), f.account.Email, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
}

func TestVerify_ThirdMissLocksEvenCorrectCode(t *testing.T) {
	f := newFixture(t)
	f.send(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Verify(ctx, f.account.Email, "000000")
		require.ErrorIs(t, err, domain.ErrIncorrectCode)
	}

	_, err := f.svc.Verify(ctx, f.account.Email, "000000")
	assert.ErrorIs(t, err, domain.ErrLocked)

	_, err = f.svc.Verify(ctx, f.account.Email, testCode)
	assert.ErrorIs(t, err, domain.ErrLocked)

	rec, err := f.store.OTPs().FindLatestByEmail(ctx, f.account.Email, f.now)
	require.NoError(t, err)
	assert.True(t, rec.Used)
	assert.Equal(t, 3, rec.Attempts)
	f.sessions.AssertNotCalled(t, "Issue", mock.Anything)
}

func TestVerify_FinalMissBeforeConsumeLocksCorrectGuess(t *testing.T) {
	f := newFixture(t)
	f.send(t)
	ctx := context.Background()
	codes := &hookedCodes{OTPRepo: f.store.OTPs()}
	d := f.deps
	d.OTPRepo = codes
	svc := NewService(d)

	for i := 0; i < 2; i++ {
		_, err := svc.Verify(ctx, f.account.Email, "000000")
		require.ErrorIs(t, err, domain.ErrIncorrectCode)
	}

	// The correct guess has read the record at attempts=2 when the third miss lands.
	var missErr error
	codes.beforeConsume = func() {
		_, missErr = svc.Verify(ctx, f.account.Email, "000000")
	}
	_, err := svc.Verify(ctx, f.account.Email, testCode)

	assert.ErrorIs(t, missErr, domain.ErrLocked)
	assert.ErrorIs(t, err, domain.ErrLocked)
	a, gerr := f.store.Accounts().Get(ctx, "acc-1")
	require.NoError(t, gerr)
	assert.False(t, a.Verified)
	f.sessions.AssertNotCalled(t, "Issue", mock.Anything)
}

func TestVerify_ReloadErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	f.send(t)
	boom := errors.New("dynamo down")
	d := f.deps
	d.OTPRepo = &refusedCodes{OTPRepo: f.store.OTPs(), getErr: boom}

	_, err := NewService(d).Verify(context.Background(), f.account.Email, "000000")

	assert.ErrorIs(t, err, boom)
}

func TestVerify_ConcurrentCorrectCodesOneWins(t *testing.T) {
	f := newFixture(t)
	f.send(t)

	const n = 2
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Verify(context.Background(), f.account.Email, testCode)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyUsedCode)
	}
	assert.Equal(t, 1, ok)
	f.sessions.AssertNumberOfCalls(t, "Issue", 1)
}

func TestVerify_AfterExpiryIsInvalidOrExpired(t *testing.T) {
	f := newFixture(t)
	f.send(t)

	f.now = f.now.Add(10*time.Minute + time.Second)
	_, err := f.svc.Verify(context.Background(), f.account.Email, testCode)

	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredCode)
	assert.EqualError(t, err, "Invalid or expired code")
}

func TestVerify_NoCodeIssued(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Verify(context.Background(), f.account.Email, testCode)

	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredCode)
}

func TestVerify_ReplayAfterSuccessIsAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	f.send(t)
	ctx := context.Background()

	_, err := f.svc.Verify(ctx, f.account.Email, testCode)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, f.account.Email, testCode)
	assert.ErrorIs(t, err, domain.ErrAlreadyUsedCode)
}

// --- Sweeper ---

func TestSweeper_DeletesOnlyExpired(t *testing.T) {
	f := newFixture(t)
	f.send(t)
	ctx := context.Background()
	require.NoError(t, f.store.OTPs().Create(ctx, &domain.OneTimeCode{
		OTPID:     "stale",
		AccountID: "acc-1",
		Email:     "alice@example.com",
		ExpiresAt: f.now.Add(-time.Minute),
		CreatedAt: f.now.Add(-11 * time.Minute),
	}))

	sw := NewSweeper(f.store.OTPs(), time.Minute)
	sw.now = func() time.Time { return f.now }

	assert.Equal(t, 1, sw.Sweep(ctx))
	_, err := f.store.OTPs().Get(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, f.store.OTPs().CountUsable("acc-1", f.now))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	sw := NewSweeper(f.store.OTPs(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
