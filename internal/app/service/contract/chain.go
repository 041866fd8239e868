package contract

import (
	"context"

	"github.com/samber/lo"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
)

// maxChainHops bounds every chain walk so corrupt links cannot loop forever.
const maxChainHops = 100

// FindOriginalContract resolves the first contract of c's renewal chain.
func FindOriginalContract(ctx context.Context, st *Store, c *models.Contract) (*models.Contract, error) {
	cur := c
	seen := map[string]bool{c.ID: true}
	for i := 0; i < maxChainHops && cur.ParentContractID != nil; i++ {
		parentID := *cur.ParentContractID
		if seen[parentID] {
			break
		}
		parent, err := st.Get(ctx, parentID)
		if errs.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		seen[parentID] = true
		cur = parent
	}
	if !cur.LooksLikeRenewal() {
		return cur, nil
	}

	// Rows written before the structural links existed only carry the number markers.
	unitContracts, err := st.FindByUnit(ctx, c.UnitID)
	if err != nil {
		return nil, err
	}
	originals := lo.Filter(unitContracts, func(o *models.Contract, _ int) bool {
		return o.ContractType == c.ContractType && !o.LooksLikeRenewal()
	})
	if len(originals) == 0 {
		return c, nil
	}
	return originals[0], nil
}

// CountRenewalSequence returns how many renewals separate target from its original.
func CountRenewalSequence(ctx context.Context, st *Store, target *models.Contract) (int, error) {
	original, err := FindOriginalContract(ctx, st, target)
	if err != nil {
		return 0, err
	}
	if original.ID == target.ID {
		return 0, nil
	}

	cur := original
	for hops := 1; hops <= maxChainHops && cur.Renewed(); hops++ {
		next, err := st.Get(ctx, *cur.RenewedContractID)
		if errs.IsNotFound(err) {
			break
		}
		if err != nil {
			return 0, err
		}
		if next.ID == target.ID {
			return hops, nil
		}
		cur = next
	}

	// The forward links are broken. Count the paid renewals on the unit instead.
	unitContracts, err := st.FindByUnit(ctx, target.UnitID)
	if err != nil {
		return 0, err
	}
	return lo.CountBy(unitContracts, func(o *models.Contract) bool {
		return o.LooksLikeRenewal() && !o.AwaitingPayment
	}), nil
}
