package baseclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Household kinds that may act on a unit's contracts.
const (
	HouseholdKindOwner  = "OWNER"
	HouseholdKindTenant = "TENANT"
)

type Unit struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Building struct {
		ID string `json:"id"`
	} `json:"building"`
}

type Household struct {
	ID                string `json:"id"`
	UnitID            string `json:"unitId"`
	Kind              string `json:"kind"`
	PrimaryResidentID string `json:"primaryResidentId"`
}

type HouseholdMember struct {
	ResidentID string `json:"residentId"`
}

type Resident struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

func (c *Client) GetUnit(ctx context.Context, unitID string) (*Unit, error) {
	var u Unit
	if err := c.do(ctx, serviceBase, http.MethodGet, fmt.Sprintf("%s/api/units/%s", c.baseURL, unitID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetBuildingIDForUnit(ctx context.Context, unitID string) (string, error) {
	u, err := c.GetUnit(ctx, unitID)
	if err != nil {
		return "", err
	}
	return u.Building.ID, nil
}

func (c *Client) GetUnitCode(ctx context.Context, unitID string) (string, error) {
	u, err := c.GetUnit(ctx, unitID)
	if err != nil {
		return "", err
	}
	return u.Code, nil
}

// GetCurrentHousehold returns nil without error when the unit has no household.
func (c *Client) GetCurrentHousehold(ctx context.Context, unitID string) (*Household, error) {
	var h Household
	err := c.do(ctx, serviceBase, http.MethodGet, fmt.Sprintf("%s/api/households/units/%s/current", c.baseURL, unitID), nil, &h)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if h.ID == "" {
		return nil, nil
	}
	return &h, nil
}

func (c *Client) DeleteHousehold(ctx context.Context, householdID string) error {
	err := c.do(ctx, serviceBase, http.MethodDelete, fmt.Sprintf("%s/api/households/%s", c.baseURL, householdID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// GetResidentIDsForUnit lists the primary resident followed by every other member.
func (c *Client) GetResidentIDsForUnit(ctx context.Context, unitID string) ([]string, error) {
	h, err := c.GetCurrentHousehold(ctx, unitID)
	if err != nil || h == nil {
		return nil, err
	}
	var members []HouseholdMember
	err = c.do(ctx, serviceBase, http.MethodGet, fmt.Sprintf("%s/api/household-members/households/%s", c.baseURL, h.ID), nil, &members)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	ids := make([]string, 0, len(members)+1)
	if h.PrimaryResidentID != "" {
		ids = append(ids, h.PrimaryResidentID)
	}
	for _, m := range members {
		if m.ResidentID != "" {
			ids = append(ids, m.ResidentID)
		}
	}
	return lo.Uniq(ids), nil
}

// ResidentIDForUser returns "" without error when the user has no resident profile.
func (c *Client) ResidentIDForUser(ctx context.Context, userID string) (string, error) {
	var r Resident
	err := c.do(ctx, serviceBase, http.MethodGet, fmt.Sprintf("%s/api/residents/by-user/%s", c.baseURL, userID), nil, &r)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// IsOwnerOfUnit holds when the unit's household is an owner or tenant household
// and the user is its primary resident. Household members are not owners.
func (c *Client) IsOwnerOfUnit(ctx context.Context, userID, unitID string) (bool, error) {
	h, err := c.GetCurrentHousehold(ctx, unitID)
	if err != nil {
		return false, err
	}
	if h == nil || h.PrimaryResidentID == "" {
		return false, nil
	}
	if h.Kind != HouseholdKindOwner && h.Kind != HouseholdKindTenant {
		return false, nil
	}
	residentID, err := c.ResidentIDForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return residentID != "" && residentID == h.PrimaryResidentID, nil
}
