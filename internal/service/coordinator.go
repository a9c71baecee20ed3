package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fjod/shop_client/internal/cache"
	"github.com/fjod/shop_client/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrLineExists = errors.New("cart line already exists for this product")
	// ErrStaleLine marks an operation against a product the server no
	// longer returns (deleted or deactivated).
	ErrStaleLine = errors.New("product no longer available for cart line")
)

// localIDPrefix marks lines created optimistically that the server has not
// confirmed yet.
const localIDPrefix = "local-"

// RemoteCart is the slice of the remote API the coordinator needs.
// Consumers define this interface, not the HTTP implementation.
type RemoteCart interface {
	GetCart(ctx context.Context) ([]domain.CartLine, error)
	GetProducts(ctx context.Context, ids []string) ([]domain.Product, error)
	AddToCart(ctx context.Context, productID string, variantID *string, quantity int) (*domain.CartLine, error)
	UpdateQuantity(ctx context.Context, lineID string, quantity int) (*domain.CartLine, error)
	RemoveItem(ctx context.Context, lineID string) error
	SyncCart(ctx context.Context, lines []domain.CartLine) ([]domain.CartLine, error)
}

// Coordinator orchestrates cart mutations across the local cache and the
// remote service. Writes are optimistic: local state changes before the
// network round trip, and a failed remote call either retains the local
// intent (add) or rolls back to server truth via a full reconciliation
// (update, remove). Reads are local-first with a background server-wins
// reconcile.
type Coordinator struct {
	cache    cache.CartCache
	products cache.ProductCache
	remote   RemoteCart
	locks    userLocks

	// reconcileTimeout bounds background reconciliation passes, which run
	// detached from the request that triggered them.
	reconcileTimeout time.Duration
}

func NewCoordinator(cartCache cache.CartCache, products cache.ProductCache, remote RemoteCart) *Coordinator {
	return &Coordinator{
		cache:            cartCache,
		products:         products,
		remote:           remote,
		reconcileTimeout: 30 * time.Second,
	}
}

// GetCart returns the local mirror immediately and reconciles against the
// server in the background. A failed background sync never surfaces as a
// read error; the stale local copy stays usable.
func (s *Coordinator) GetCart(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	unlock := s.locks.lock(userID)
	entries, err := s.cache.ByUser(ctx, userID)
	unlock()
	if err != nil {
		return nil, err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.reconcileTimeout)
		defer cancel()
		if err := s.Reconcile(ctx, userID); err != nil {
			log.Printf("background cart reconciliation failed: %v", err)
		}
	}()

	return entries, nil
}

// Reconcile replaces the local mirror with the server's cart. The server is
// authoritative for reads: local rows are cleared and re-inserted from the
// response, so repeated passes with an unchanged server cart are idempotent.
func (s *Coordinator) Reconcile(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.reconcileLocked(ctx, userID)
}

func (s *Coordinator) reconcileLocked(ctx context.Context, userID string) error {
	lines, err := s.remote.GetCart(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch server cart: %w", err)
	}

	products, err := s.snapshotsFor(ctx, lines)
	if err != nil {
		return err
	}

	return s.replaceAllLocked(ctx, userID, lines, products)
}

// AddToCart creates a new line. Duplicate (product, variant) keys are
// rejected; callers wanting more of an existing line route to
// UpdateQuantity. The line is written locally under a temporary id before
// the network call; if the server rejects or is unreachable the temporary
// line is retained and the error still reported, so the caller can show a
// pending-sync state.
func (s *Coordinator) AddToCart(ctx context.Context, userID, productID string, variantID *string, quantity int) (*domain.CartEntry, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	_, err := s.cache.ByUserAndProduct(ctx, userID, productID, variantID)
	if err == nil {
		return nil, fmt.Errorf("%w: product %s", ErrLineExists, productID)
	}
	if !errors.Is(err, cache.ErrLineNotFound) {
		return nil, err
	}

	product, err := s.snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	temp := domain.CartLine{
		ID:        localIDPrefix + uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		AddedAt:   now,
		UpdatedAt: now,
	}
	if err := s.cache.Upsert(ctx, temp, *product); err != nil {
		return nil, err
	}

	confirmed, err := s.remote.AddToCart(ctx, productID, variantID, quantity)
	if err != nil {
		// The user's intent stays local; the next sync resubmits it.
		entry := &domain.CartEntry{Line: temp, Product: *product}
		return entry, fmt.Errorf("add to cart not confirmed by server: %w", err)
	}

	if err := s.cache.Delete(ctx, temp.ID); err != nil {
		return nil, err
	}
	confirmed.UserID = userID
	if err := s.cache.Upsert(ctx, *confirmed, *product); err != nil {
		return nil, err
	}

	return &domain.CartEntry{Line: *confirmed, Product: *product}, nil
}

// UpdateQuantity applies the change locally first, then confirms with the
// server. On remote failure the local change is rolled back to server truth
// by a full reconciliation pass, and the error propagates.
func (s *Coordinator) UpdateQuantity(ctx context.Context, userID, lineID string, quantity int) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	affected, err := s.cache.UpdateQuantity(ctx, lineID, quantity)
	if err != nil {
		return err
	}
	if affected == 0 {
		// The caller is operating on a line a reconciliation already
		// removed; re-derive ground truth for them.
		if rerr := s.reconcileLocked(ctx, userID); rerr != nil {
			log.Printf("reconciliation after stale update failed: %v", rerr)
		}
		return fmt.Errorf("%w: %s", cache.ErrLineNotFound, lineID)
	}

	// A line the server never saw carries its new quantity to the next
	// sync instead of a doomed remote call.
	if strings.HasPrefix(lineID, localIDPrefix) {
		return nil
	}

	if _, err := s.remote.UpdateQuantity(ctx, lineID, quantity); err != nil {
		s.rollback(userID)
		return fmt.Errorf("quantity update not confirmed by server: %w", err)
	}
	return nil
}

// RemoveItem deletes the line locally first, then confirms with the server.
// On remote failure the deletion is rolled back to server truth by a full
// reconciliation pass, and the error propagates.
func (s *Coordinator) RemoveItem(ctx context.Context, userID, lineID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.cache.Delete(ctx, lineID); err != nil {
		return err
	}

	// A line the server never saw has nothing to remove remotely.
	if strings.HasPrefix(lineID, localIDPrefix) {
		return nil
	}

	if err := s.remote.RemoveItem(ctx, lineID); err != nil {
		s.rollback(userID)
		return fmt.Errorf("item removal not confirmed by server: %w", err)
	}
	return nil
}

// SyncCart pushes all local lines to the server and replaces the mirror with
// the server's merged, authoritative set. Used for the login-time cart
// merge. Unlike the background reconcile, failures propagate: the caller
// asked for a sync and must know it did not happen.
func (s *Coordinator) SyncCart(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	entries, err := s.cache.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line)
	}

	merged, err := s.remote.SyncCart(ctx, lines)
	if err != nil {
		return nil, fmt.Errorf("cart sync failed: %w", err)
	}

	products, err := s.snapshotsFor(ctx, merged)
	if err != nil {
		return nil, err
	}

	if err := s.replaceAllLocked(ctx, userID, merged, products); err != nil {
		return nil, err
	}
	return s.cache.ByUser(ctx, userID)
}

// ClearCart removes every line locally, then removes the server-confirmed
// ones remotely. On remote failure ground truth is re-derived and the error
// propagates.
func (s *Coordinator) ClearCart(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	entries, err := s.cache.ByUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.cache.Clear(ctx, userID); err != nil {
		return err
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Line.ID, localIDPrefix) {
			continue
		}
		if err := s.remote.RemoveItem(ctx, e.Line.ID); err != nil {
			s.rollback(userID)
			return fmt.Errorf("cart clear not confirmed by server: %w", err)
		}
	}
	return nil
}

// LocalCart reads the local mirror without touching the network. One-shot
// callers that already reconciled explicitly use this instead of GetCart to
// avoid kicking off a background pass they will never wait for.
func (s *Coordinator) LocalCart(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.cache.ByUser(ctx, userID)
}

// ClearLocal drops the local mirror only, for logout.
func (s *Coordinator) ClearLocal(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.cache.Clear(ctx, userID)
}

// rollback re-derives local state from the server after a failed optimistic
// mutation. Runs under the caller's user lock with a fresh context, so a
// cancelled mutation still leaves the cache consistent.
func (s *Coordinator) rollback(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.reconcileTimeout)
	defer cancel()
	if err := s.reconcileLocked(ctx, userID); err != nil {
		log.Printf("rollback reconciliation failed: %v", err)
	}
}

// replaceAllLocked swaps the user's rows for exactly the given server lines
// in one atomic replace, so a failing pass never leaves a partial mirror.
// Lines whose product the server no longer returns are dropped: the server
// owns the cart, and a vanished product cannot be rendered anyway. Caller
// holds the user lock.
func (s *Coordinator) replaceAllLocked(ctx context.Context, userID string, lines []domain.CartLine, products map[string]domain.Product) error {
	entries := make([]domain.CartEntry, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			log.Printf("dropping cart line %s: product %s no longer exists", line.ID, line.ProductID)
			continue
		}
		line.UserID = userID
		entries = append(entries, domain.CartEntry{Line: line, Product: product})
	}
	return s.cache.ReplaceAll(ctx, userID, entries)
}

// snapshot resolves one product, preferring the snapshot cache.
func (s *Coordinator) snapshot(ctx context.Context, productID string) (*domain.Product, error) {
	cached, err := s.products.Get(ctx, productID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrProductCacheMiss) {
		log.Printf("product cache get error: %v", err)
	}

	fetched, err := s.remote.GetProducts(ctx, []string{productID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", productID, err)
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("%w: product %s", ErrStaleLine, productID)
	}

	product := fetched[0]
	if err := s.products.Set(ctx, product); err != nil {
		log.Printf("product cache set error: %v", err)
	}
	return &product, nil
}

// snapshotsFor resolves the snapshots for every product referenced by the
// given lines. A product the server no longer returns is simply absent from
// the result; replaceAllLocked drops its lines.
func (s *Coordinator) snapshotsFor(ctx context.Context, lines []domain.CartLine) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product)
	var missing []string
	for _, line := range lines {
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		cached, err := s.products.Get(ctx, line.ProductID)
		if err == nil {
			products[line.ProductID] = *cached
			continue
		}
		if !errors.Is(err, cache.ErrProductCacheMiss) {
			log.Printf("product cache get error: %v", err)
		}
		missing = append(missing, line.ProductID)
	}

	if len(missing) > 0 {
		fetched, err := s.remote.GetProducts(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch products: %w", err)
		}
		for _, p := range fetched {
			products[p.ID] = p
			if err := s.products.Set(ctx, p); err != nil {
				log.Printf("product cache set error: %v", err)
			}
		}
	}

	return products, nil
}
