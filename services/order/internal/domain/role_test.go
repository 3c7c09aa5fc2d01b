package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"", RoleCustomer},
		{"customer", RoleCustomer},
		{" Shop ", RoleShop},
		{"ADMIN", RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseRole("delivery")
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestRolePermits_SubsetOfTable(t *testing.T) {
	for _, role := range []Role{RoleCustomer, RoleShop} {
		for tr := range rolePermissions[role] {
			assert.True(t, CanTransition(tr.from, tr.to), "%s may %s -> %s but the table forbids it", role, tr.from, tr.to)
		}
	}
}

func TestRolePermits(t *testing.T) {
	tests := []struct {
		role     Role
		from, to Status
		want     bool
	}{
		{RoleCustomer, StatusProcessing, StatusCancelled, true},
		{RoleCustomer, StatusDelivered, StatusProcessingRefund, true},
		{RoleCustomer, StatusProcessing, StatusShipped, false},
		{RoleCustomer, StatusProcessingRefund, StatusRefundSuccess, false},
		{RoleShop, StatusProcessing, StatusShipped, true},
		{RoleShop, StatusShipped, StatusDelivered, true},
		{RoleShop, StatusProcessingRefund, StatusRefundSuccess, false},
		{RoleShop, StatusProcessingRefund, StatusRefundFailed, false},
		{RoleAdmin, StatusProcessingRefund, StatusRefundSuccess, true},
		{RoleAdmin, StatusProcessingRefund, StatusRefundFailed, true},
		{Role("guest"), StatusProcessing, StatusCancelled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.Permits(tt.from, tt.to), "%s: %s -> %s", tt.role, tt.from, tt.to)
	}
}

func TestActorCanView(t *testing.T) {
	o := &Order{CustomerID: "u1", ShopID: "s1"}

	assert.True(t, Actor{UserID: "u1", Role: RoleCustomer}.CanView(o))
	assert.False(t, Actor{UserID: "u2", Role: RoleCustomer}.CanView(o))
	assert.True(t, Actor{UserID: "x", Role: RoleShop, ShopID: "s1"}.CanView(o))
	assert.False(t, Actor{UserID: "x", Role: RoleShop, ShopID: "s2"}.CanView(o))
	assert.False(t, Actor{UserID: "x", Role: RoleShop}.CanView(&Order{ShopID: ""}))
	assert.True(t, Actor{UserID: "x", Role: RoleAdmin}.CanView(o))
}

func TestAuthorizeTransition_TableBeforeRole(t *testing.T) {
	customer := Actor{UserID: "u1", Role: RoleCustomer}

	err := customer.AuthorizeTransition(&Order{Status: StatusProcessing}, StatusDelivered)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	err = customer.AuthorizeTransition(&Order{Status: StatusProcessing}, StatusShipped)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	assert.NoError(t, customer.AuthorizeTransition(&Order{Status: StatusProcessing}, StatusCancelled))
}
