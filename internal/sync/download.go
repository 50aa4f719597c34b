package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/edebt/syncengine/internal/ledger"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
)

// Download implements Syncer.Download.
func (s *syncer) Download(ctx context.Context) (DownloadResult, error) {
	var res DownloadResult

	customers, err := s.gateway.GetCustomers(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to fetch customers: %w", err)
	}

	orders, ordersErr := s.gateway.GetOrders(ctx)
	if ordersErr != nil {
		s.logger.Printf("WARNING: failed to fetch orders: %v", ordersErr)
		res.Warnings = append(res.Warnings, "orders: "+ordersErr.Error())
	}
	menu, menuErr := s.gateway.GetMenu(ctx)
	if menuErr != nil {
		s.logger.Printf("WARNING: failed to fetch menu: %v", menuErr)
		res.Warnings = append(res.Warnings, "menu: "+menuErr.Error())
	}

	now := s.now()
	err = s.store.Update(ctx, func(tx store.Tx) error {
		// Read after the upload phase, so confirmed orders are not counted twice.
		deltas, err := ledger.PendingDeltasTx(tx)
		if err != nil {
			return err
		}

		n, err := s.replaceCustomers(tx, ledger.ReconcileAll(customers, deltas), now)
		if err != nil {
			return err
		}
		res.Customers = n

		if ordersErr == nil {
			if res.Orders, err = s.replaceOrders(tx, orders); err != nil {
				return err
			}
		}
		if menuErr == nil {
			if res.MenuItems, err = s.replaceMenu(tx, menu); err != nil {
				return err
			}
		}
		return store.SetLastSyncTx(tx, now)
	})
	if err != nil {
		return res, fmt.Errorf("failed to store download: %w", err)
	}

	if err := s.store.Mirror(ctx); err != nil {
		s.logger.Printf("WARNING: failed to refresh fallback mirror: %v", err)
	}

	s.logger.Printf("Downloaded %d customers, %d orders, %d menu items", res.Customers, res.Orders, res.MenuItems)
	return res, nil
}

// replaceCustomers swaps the synced customers for the remote set. Customers
// still pending creation are kept as they are.
func (s *syncer) replaceCustomers(tx store.Tx, remote []schema.Customer, now time.Time) (int, error) {
	pending, err := tx.GetByIndex(schema.Customers, store.IndexSyncStatus, string(schema.StatusPending))
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(pending))
	for _, d := range pending {
		keep[d.Key] = true
	}

	synced, err := tx.GetByIndex(schema.Customers, store.IndexSyncStatus, string(schema.StatusSynced))
	if err != nil {
		return 0, err
	}
	for _, d := range synced {
		if err := tx.Delete(schema.Customers, d.Key); err != nil {
			return 0, err
		}
	}

	n := 0
	for _, c := range remote {
		if keep[c.BusinessID] {
			continue
		}
		c.SyncStatus = schema.StatusSynced
		c.LocalUpdatedAt = now
		if err := c.Validate(); err != nil {
			s.logger.Printf("WARNING: skipping remote customer %s: %v", c.ID, err)
			continue
		}
		if err := store.PutCustomer(tx, c); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// replaceOrders swaps the synced orders for the remote set. Pending rows stay.
func (s *syncer) replaceOrders(tx store.Tx, remote []schema.Order) (int, error) {
	synced, err := tx.GetByIndex(schema.Orders, store.IndexSyncStatus, string(schema.StatusSynced))
	if err != nil {
		return 0, err
	}
	for _, d := range synced {
		if err := tx.Delete(schema.Orders, d.Key); err != nil {
			return 0, err
		}
	}

	n := 0
	for _, o := range remote {
		o.LocalID = ""
		o.SyncStatus = schema.StatusSynced
		o.LocalCreatedAt = o.CreatedAt
		if o.ID == "" {
			s.logger.Printf("WARNING: skipping remote order without id (%q)", o.Name)
			continue
		}
		if err := o.Validate(); err != nil {
			s.logger.Printf("WARNING: skipping remote order %s: %v", o.ID, err)
			continue
		}
		if err := store.PutOrder(tx, o); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// replaceMenu replaces the menu wholesale.
func (s *syncer) replaceMenu(tx store.Tx, items []schema.MenuItem) (int, error) {
	if err := tx.Clear(schema.Menu); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range items {
		m.SetDefaults()
		if err := m.Validate(); err != nil {
			s.logger.Printf("WARNING: skipping menu item %s: %v", m.ID, err)
			continue
		}
		doc, err := store.MenuDoc(m)
		if err != nil {
			return 0, err
		}
		if err := tx.Put(schema.Menu, doc); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
