package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Role is the kind of caller acting on an order.
type Role string

// Roles share one lifecycle and differ only in the moves they may make.
const (
	RoleCustomer Role = "customer"
	RoleShop     Role = "shop"
	RoleAdmin    Role = "admin"
)

type transition struct {
	from, to Status
}

// rolePermissions is the subset of the lifecycle each role may drive. Admins
// may drive every transition.
var rolePermissions = map[Role]map[transition]bool{
	RoleCustomer: {
		{StatusProcessing, StatusCancelled}:       true,
		{StatusDelivered, StatusProcessingRefund}: true,
	},
	RoleShop: {
		{StatusProcessing, StatusShipped}:         true,
		{StatusShipped, StatusDelivered}:          true,
		{StatusProcessing, StatusCancelled}:       true,
		{StatusDelivered, StatusProcessingRefund}: true,
	},
}

// ParseRole converts a header value into a Role. An empty value is a customer.
func ParseRole(v string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(v))); r {
	case "":
		return RoleCustomer, nil
	case RoleCustomer, RoleShop, RoleAdmin:
		return r, nil
	default:
		return "", apperrors.Forbidden(fmt.Sprintf("unknown role %q", v))
	}
}

// Permits reports whether r may drive from -> to. It does not consult the
// lifecycle table; use CanTransition for that.
func (r Role) Permits(from, to Status) bool {
	if r == RoleAdmin {
		return true
	}
	return rolePermissions[r][transition{from, to}]
}

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID string
	Role   Role
	ShopID string
}

// CanView reports whether a sees o. Customers see their own orders, shops see
// orders placed with them, admins see everything.
func (a Actor) CanView(o *Order) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleShop:
		return a.ShopID != "" && o.ShopID == a.ShopID
	case RoleCustomer:
		return a.UserID != "" && o.CustomerID == a.UserID
	}
	return false
}

// AuthorizeTransition checks that a may move o to the target status. The
// lifecycle is checked first, so an impossible move is always reported as an
// invalid transition regardless of role.
func (a Actor) AuthorizeTransition(o *Order, to Status) error {
	if !CanTransition(o.Status, to) {
		return apperrors.InvalidTransition(string(o.Status), string(to))
	}
	if !a.Role.Permits(o.Status, to) {
		return apperrors.Forbidden(fmt.Sprintf("%s cannot move an order from %q to %q", a.Role, o.Status, to))
	}
	return nil
}
