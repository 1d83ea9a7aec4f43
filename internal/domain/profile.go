package domain

import "time"

type Address struct {
	Full string `json:"full" dynamodbav:"full" validate:"required,max=255"`
	Area string `json:"area" dynamodbav:"area" validate:"required,max=100"`
	City string `json:"city" dynamodbav:"city" validate:"required,max=100"`
}

type Location struct {
	Latitude  float64 `json:"latitude" dynamodbav:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" dynamodbav:"longitude" validate:"gte=-180,lte=180"`
}

type PaymentMethod struct {
	Type          string `json:"type" dynamodbav:"type" validate:"omitempty,oneof=bank mobile cash"`
	Provider      string `json:"provider" dynamodbav:"provider"`
	AccountName   string `json:"account_name" dynamodbav:"account_name"`
	AccountNumber string `json:"account_number" dynamodbav:"account_number"`
}

// Verification holds references to identity documents uploaded elsewhere.
type Verification struct {
	NationalID     string   `json:"nid,omitempty" dynamodbav:"national_id,omitempty" validate:"omitempty,min=6"`
	TradeLicense   string   `json:"trade_license,omitempty" dynamodbav:"trade_license,omitempty"`
	DrivingLicense string   `json:"driving_license,omitempty" dynamodbav:"driving_license,omitempty"`
	DocumentURLs   []string `json:"document_urls,omitempty" dynamodbav:"document_urls,omitempty" validate:"omitempty,dive,url"`
}

// ProfileDetails is the closed set of role-specific payloads. Only the detail
// types declared in this file implement it.
type ProfileDetails interface {
	ProfileRole() Role
	sealed()
}

type CustomerDetails struct {
	Phone   string   `json:"phone" dynamodbav:"phone"`
	Address *Address `json:"address,omitempty" dynamodbav:"address,omitempty"`
}

type VendorDetails struct {
	Phone         string         `json:"phone" dynamodbav:"phone"`
	StoreName     string         `json:"store_name" dynamodbav:"store_name"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty" dynamodbav:"payment_method,omitempty"`
	Address       *Address       `json:"address,omitempty" dynamodbav:"address,omitempty"`
	Verification  *Verification  `json:"verification,omitempty" dynamodbav:"verification,omitempty"`
}

type DeliveryManDetails struct {
	Phone        string        `json:"phone" dynamodbav:"phone"`
	VehicleType  string        `json:"vehicle_type" dynamodbav:"vehicle_type"`
	Address      *Address      `json:"address,omitempty" dynamodbav:"address,omitempty"`
	Location     *Location     `json:"location,omitempty" dynamodbav:"location,omitempty"`
	Verification *Verification `json:"verification,omitempty" dynamodbav:"verification,omitempty"`
}

type AdminDetails struct {
	Phone   string   `json:"phone" dynamodbav:"phone"`
	Address *Address `json:"address,omitempty" dynamodbav:"address,omitempty"`
}

func (CustomerDetails) ProfileRole() Role    { return RoleCustomer }
func (VendorDetails) ProfileRole() Role      { return RoleVendor }
func (DeliveryManDetails) ProfileRole() Role { return RoleDeliveryMan }
func (AdminDetails) ProfileRole() Role       { return RoleAdmin }

func (CustomerDetails) sealed()    {}
func (VendorDetails) sealed()      {}
func (DeliveryManDetails) sealed() {}
func (AdminDetails) sealed()       {}

// RoleProfile is the per-role record owned by exactly one account.
// PK: account_id, SK: role. Exactly one of the detail pointers is set, matching Role.
type RoleProfile struct {
	ProfileID   string              `json:"id" dynamodbav:"profile_id"`
	AccountID   string              `json:"account_id" dynamodbav:"account_id"`
	Role        Role                `json:"role" dynamodbav:"role"`
	Name        string              `json:"name" dynamodbav:"name"`
	Email       string              `json:"email" dynamodbav:"email"`
	Customer    *CustomerDetails    `json:"customer,omitempty" dynamodbav:"customer,omitempty"`
	Vendor      *VendorDetails      `json:"vendor,omitempty" dynamodbav:"vendor,omitempty"`
	DeliveryMan *DeliveryManDetails `json:"delivery_man,omitempty" dynamodbav:"delivery_man,omitempty"`
	Admin       *AdminDetails       `json:"admin,omitempty" dynamodbav:"admin,omitempty"`
	CreatedAt   time.Time           `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time           `json:"updated" dynamodbav:"updated_at"`
}

// NewRoleProfile builds the profile for acct from details. The profile's role is
// taken from the details variant and must match the account's role.
func NewRoleProfile(profileID string, acct *Account, details ProfileDetails, now time.Time) (*RoleProfile, error) {
	if details == nil {
		return nil, Errorf(KindBadRequest, "profile details required")
	}
	role := details.ProfileRole()
	if acct.Role != role {
		return nil, Errorf(KindBadRequest, "%s profile does not match account role %s", role, acct.Role)
	}
	p := &RoleProfile{
		ProfileID: profileID,
		AccountID: acct.AccountID,
		Role:      role,
		Name:      acct.Name,
		Email:     acct.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch d := details.(type) {
	case CustomerDetails:
		p.Customer = &d
	case VendorDetails:
		p.Vendor = &d
	case DeliveryManDetails:
		p.DeliveryMan = &d
	case AdminDetails:
		p.Admin = &d
	}
	return p, nil
}

// Details returns the variant payload stored on p, or nil when none is set.
func (p *RoleProfile) Details() ProfileDetails {
	switch {
	case p.Customer != nil:
		return *p.Customer
	case p.Vendor != nil:
		return *p.Vendor
	case p.DeliveryMan != nil:
		return *p.DeliveryMan
	case p.Admin != nil:
		return *p.Admin
	}
	return nil
}
