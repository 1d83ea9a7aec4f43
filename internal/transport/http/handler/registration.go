package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/domain"
)

// RegistrationHandler handles account registration and role provisioning.
type RegistrationHandler struct {
	svc account.Service
}

func NewRegistrationHandler(svc account.Service) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

func (h *RegistrationHandler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterCustomerRequest
	if !decode(w, r, &req) {
		return
	}
	reg, err := h.svc.RegisterCustomer(r.Context(), req)
	h.respond(w, r, reg, err, domain.RoleCustomer)
}

func (h *RegistrationHandler) RegisterVendor(w http.ResponseWriter, r *http.Request) {
	var req account.CreateVendorRequest
	if !decode(w, r, &req) {
		return
	}
	reg, err := h.svc.CreateVendor(r.Context(), req)
	h.respond(w, r, reg, err, domain.RoleVendor)
}

func (h *RegistrationHandler) RegisterDeliveryMan(w http.ResponseWriter, r *http.Request) {
	var req account.CreateDeliveryManRequest
	if !decode(w, r, &req) {
		return
	}
	reg, err := h.svc.CreateDeliveryMan(r.Context(), req)
	h.respond(w, r, reg, err, domain.RoleDeliveryMan)
}

// CreateAdmin is mounted behind Auth and RequireRole(SuperAdmin).
func (h *RegistrationHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req account.CreateAdminRequest
	if !decode(w, r, &req) {
		return
	}
	reg, err := h.svc.CreateAdmin(r.Context(), req)
	h.respond(w, r, reg, err, domain.RoleAdmin)
}

func (h *RegistrationHandler) respond(w http.ResponseWriter, r *http.Request, reg *account.Registration, err error, role domain.Role) {
	if err != nil {
		httpError(w, r, err)
		return
	}
	msg := role.Label() + " created successfully. Please check your email to verify your account."
	if reg.Upgraded {
		msg = "Account upgraded to " + role.Label() + ". Please check your email to verify your account."
	}
	if !reg.VerificationSent {
		msg = role.Label() + " created successfully, but the verification email could not be sent. Request an OTP to verify your account."
	}
	writeJSON(w, http.StatusCreated, RegistrationEnvelope{
		Message:          msg,
		User:             reg.Account,
		VerificationSent: reg.VerificationSent,
	})
}
