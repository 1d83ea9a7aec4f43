package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/go-auth-nosql/internal/pkg/txn"
)

type RegisterCustomerRequest struct {
	Name            string          `json:"name" validate:"required,min=2,max=100"`
	Email           string          `json:"email" validate:"required,email"`
	Password        string          `json:"password" validate:"required,password"`
	ConfirmPassword string          `json:"confirm_password" validate:"required,eqfield=Password"`
	Phone           string          `json:"phone" validate:"omitempty,min=6,max=20"`
	Address         *domain.Address `json:"address"`
}

type CreateVendorRequest struct {
	Name            string                `json:"name" validate:"required,min=2,max=100"`
	Email           string                `json:"email" validate:"required,email"`
	Password        string                `json:"password" validate:"required,password"`
	ConfirmPassword string                `json:"confirm_password" validate:"required,eqfield=Password"`
	Phone           string                `json:"phone" validate:"required,min=6,max=20"`
	StoreName       string                `json:"store_name" validate:"omitempty,max=120"`
	PaymentMethod   *domain.PaymentMethod `json:"payment_method"`
	Address         *domain.Address       `json:"address"`
	Verification    *domain.Verification  `json:"verification"`
}

type CreateDeliveryManRequest struct {
	Name            string               `json:"name" validate:"required,min=2,max=100"`
	Email           string               `json:"email" validate:"required,email"`
	Password        string               `json:"password" validate:"required,password"`
	ConfirmPassword string               `json:"confirm_password" validate:"required,eqfield=Password"`
	Phone           string               `json:"phone" validate:"required,min=6,max=20"`
	VehicleType     string               `json:"vehicle_type" validate:"required,oneof=Bike Car Bicycle Van"`
	Address         *domain.Address      `json:"address"`
	Location        *domain.Location     `json:"location"`
	Verification    *domain.Verification `json:"verification"`
}

type CreateAdminRequest struct {
	Name            string          `json:"name" validate:"required,min=2,max=100"`
	Email           string          `json:"email" validate:"required,email"`
	Password        string          `json:"password" validate:"required,password"`
	ConfirmPassword string          `json:"confirm_password" validate:"required,eqfield=Password"`
	Phone           string          `json:"phone" validate:"omitempty,min=6,max=20"`
	Address         *domain.Address `json:"address"`
}

// Registration is the outcome of a registration or upgrade. VerificationSent is
// false when the account was committed but the verification email could not be
// issued or delivered.
type Registration struct {
	Account          *domain.Account
	Upgraded         bool
	VerificationSent bool
}

type Service interface {
	RegisterCustomer(ctx context.Context, req RegisterCustomerRequest) (*Registration, error)
	CreateVendor(ctx context.Context, req CreateVendorRequest) (*Registration, error)
	CreateDeliveryMan(ctx context.Context, req CreateDeliveryManRequest) (*Registration, error)
	CreateAdmin(ctx context.Context, req CreateAdminRequest) (*Registration, error)
}

type accountStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	UpgradeRole(ctx context.Context, a *domain.Account, from domain.Role) error
}

type profileStore interface {
	Exists(ctx context.Context, accountID string, role domain.Role) (bool, error)
	Create(ctx context.Context, p *domain.RoleProfile) error
}

type passwordHasher interface {
	Hash(plain string) (string, error)
}

type tokenIssuer interface {
	Issue(purpose domain.TokenPurpose, c domain.TokenClaims) (string, error)
}

type verificationMailer interface {
	SendVerificationLink(ctx context.Context, to, name, token string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, e domain.AccountEvent) error
}

type service struct {
	tx       txn.Manager
	accounts accountStore
	profiles profileStore
	hasher   passwordHasher
	tokens   tokenIssuer
	mailer   verificationMailer
	events   eventPublisher
	now      func() time.Time
}

type ServiceDeps struct {
	TxManager   txn.Manager
	AccountRepo accountStore
	ProfileRepo profileStore
	Hasher      passwordHasher
	Tokens      tokenIssuer
	Mailer      verificationMailer
	Events      eventPublisher
	Now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       deps.TxManager,
		accounts: deps.AccountRepo,
		profiles: deps.ProfileRepo,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		mailer:   deps.Mailer,
		events:   deps.Events,
		now:      now,
	}
}

func (s *service) RegisterCustomer(ctx context.Context, req RegisterCustomerRequest) (*Registration, error) {
	return s.provision(ctx, signup{name: req.Name, email: req.Email, password: req.Password},
		domain.CustomerDetails{Phone: req.Phone, Address: req.Address})
}

func (s *service) CreateVendor(ctx context.Context, req CreateVendorRequest) (*Registration, error) {
	return s.provision(ctx, signup{name: req.Name, email: req.Email, password: req.Password},
		domain.VendorDetails{
			Phone:         req.Phone,
			StoreName:     req.StoreName,
			PaymentMethod: req.PaymentMethod,
			Address:       req.Address,
			Verification:  req.Verification,
		})
}

func (s *service) CreateDeliveryMan(ctx context.Context, req CreateDeliveryManRequest) (*Registration, error) {
	return s.provision(ctx, signup{name: req.Name, email: req.Email, password: req.Password},
		domain.DeliveryManDetails{
			Phone:        req.Phone,
			VehicleType:  req.VehicleType,
			Address:      req.Address,
			Location:     req.Location,
			Verification: req.Verification,
		})
}

func (s *service) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*Registration, error) {
	return s.provision(ctx, signup{name: req.Name, email: req.Email, password: req.Password},
		domain.AdminDetails{Phone: req.Phone, Address: req.Address})
}

type signup struct {
	name     string
	email    string
	password string
}

// provision creates a new account holding the details' role, or upgrades the
// existing account with that email in place, and creates the matching role
// profile. Both happen in one atomic scope. The verification email is sent
// after commit and its failure does not undo the registration.
func (s *service) provision(ctx context.Context, in signup, details domain.ProfileDetails) (*Registration, error) {
	target := details.ProfileRole()
	if err := domain.CanCreate(target); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.password)
	if err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(in.email)

	reg, err := txn.Run(ctx, s.tx, func(ctx context.Context) (*Registration, error) {
		now := s.now().UTC()
		existing, err := s.accounts.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		reg := &Registration{}
		if existing == nil {
			reg.Account = &domain.Account{
				AccountID:    id.New(),
				Name:         in.name,
				Email:        email,
				PasswordHash: hash,
				Role:         target,
				Active:       true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.accounts.Create(ctx, reg.Account); err != nil {
				return nil, err
			}
		} else {
			next, err := domain.UpgradeRole(*existing, target)
			if err != nil {
				return nil, err
			}
			next.Name = in.name
			next.PasswordHash = hash
			next.UpdatedAt = now
			if err := s.accounts.UpgradeRole(ctx, &next, existing.Role); err != nil {
				return nil, err
			}
			reg.Account = &next
			reg.Upgraded = true
		}

		exists, err := s.profiles.Exists(ctx, reg.Account.AccountID, target)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.Errorf(domain.KindConflict, "%s already exists", target.Label())
		}
		profile, err := domain.NewRoleProfile(id.New(), reg.Account, details, now)
		if err != nil {
			return nil, err
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, err
		}
		return reg, nil
	})
	if err != nil {
		return nil, err
	}

	reg.VerificationSent = s.sendVerification(ctx, reg.Account)
	s.publish(ctx, reg)
	return reg, nil
}

func (s *service) sendVerification(ctx context.Context, a *domain.Account) bool {
	token, err := s.tokens.Issue(domain.PurposeEmailVerification, domain.TokenClaims{AccountID: a.AccountID, Email: a.Email})
	if err != nil {
		slog.Error("issue email verification token", "account_id", a.AccountID, "err", err)
		return false
	}
	if err := s.mailer.SendVerificationLink(ctx, a.Email, a.Name, token); err != nil {
		slog.Warn("send verification email", "account_id", a.AccountID, "email", a.Email, "err", err)
		return false
	}
	return true
}

func (s *service) publish(ctx context.Context, reg *Registration) {
	typ := domain.EventAccountRegistered
	if reg.Upgraded {
		typ = domain.EventAccountRoleUpgrade
	}
	a := reg.Account
	err := s.events.Publish(ctx, domain.AccountEvent{
		Type:       typ,
		AccountID:  a.AccountID,
		Email:      a.Email,
		Role:       a.Role,
		OccurredAt: a.UpdatedAt,
	})
	if err != nil {
		slog.Warn("publish account event", "type", typ, "account_id", a.AccountID, "err", err)
	}
}

