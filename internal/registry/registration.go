package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/models"
)

// Lease and refresh cadence. A node that stops heartbeating disappears
// from the registry within the lease TTL.
const (
	leaseTTLSeconds = 10
	refreshInterval = 30 * time.Second
	reRegisterDelay = 2 * time.Second
)

// NodeRegistration advertises this ingest node in etcd under a
// keep-alive lease: which tables it serves, how many committed parts it
// holds and how much disk remains.
type NodeRegistration struct {
	client  *clientv3.Client
	scanner *PartScanner
	logger  *logging.Logger

	mu      sync.Mutex
	node    models.NodeInfo
	leaseID clientv3.LeaseID
	stop    context.CancelFunc
}

// NewNodeRegistration creates a registration for the given node
// document. Register starts advertising it.
func NewNodeRegistration(
	client *clientv3.Client,
	node models.NodeInfo,
	scanner *PartScanner,
	logger *logging.Logger,
) *NodeRegistration {
	return &NodeRegistration{
		client:  client,
		scanner: scanner,
		logger:  logger,
		node:    node,
	}
}

// Register scans local state, grants the lease, publishes the node
// document and starts the keep-alive loop.
func (r *NodeRegistration) Register(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(); err != nil {
		return err
	}

	lease, err := r.client.Grant(ctx, leaseTTLSeconds)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	r.leaseID = lease.ID

	if err := r.publishLocked(ctx); err != nil {
		return err
	}

	r.logger.Info("node registered",
		"node_id", r.node.ID,
		"address", r.node.Address,
		"tables", len(r.node.Tables),
		"parts", r.node.Capacity.TotalParts,
		"lease_id", int64(lease.ID))

	// The keep-alive loop gets its own cancel so Deregister can stop it
	// before revoking the lease.
	kctx, stop := context.WithCancel(ctx)
	r.stop = stop
	go r.keepAlive(kctx)
	return nil
}

// Refresh rescans tables and disk capacity and republishes the node
// document. The keep-alive loop calls it on a fixed cadence.
func (r *NodeRegistration) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(); err != nil {
		return err
	}
	return r.publishLocked(ctx)
}

// Deregister stops the keep-alive loop, removes the node document and
// revokes the lease.
func (r *NodeRegistration) Deregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop != nil {
		r.stop()
		r.stop = nil
	}

	var errs []error
	if _, err := r.client.Delete(ctx, nodeKey(r.node.ID)); err != nil {
		errs = append(errs, fmt.Errorf("delete node key: %w", err))
	}
	if r.leaseID != 0 {
		if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
			errs = append(errs, fmt.Errorf("revoke lease: %w", err))
		}
	}

	if len(errs) == 0 {
		r.logger.Info("node deregistered", "node_id", r.node.ID)
	}
	return errors.Join(errs...)
}

// refreshLocked rescans local tables and disk capacity into the node
// document. Callers hold r.mu.
func (r *NodeRegistration) refreshLocked() error {
	tables, err := r.scanner.ScanTables()
	if err != nil {
		return fmt.Errorf("scan tables: %w", err)
	}

	capacity, err := r.scanner.GetDiskCapacity()
	if err != nil {
		return fmt.Errorf("disk capacity: %w", err)
	}

	r.node.Tables = tables
	r.node.Capacity = models.Capacity{
		TotalParts:    totalParts(tables),
		DiskTotal:     capacity.DiskTotal,
		DiskUsed:      capacity.DiskUsed,
		DiskAvailable: capacity.DiskAvailable,
	}
	r.node.UpdatedAt = time.Now()
	return nil
}

// publishLocked writes the node document under the current lease.
// Callers hold r.mu.
func (r *NodeRegistration) publishLocked(ctx context.Context) error {
	data, err := json.Marshal(r.node)
	if err != nil {
		return fmt.Errorf("marshal node info: %w", err)
	}
	_, err = r.client.Put(ctx, nodeKey(r.node.ID), string(data), clientv3.WithLease(r.leaseID))
	if err != nil {
		return fmt.Errorf("publish node info: %w", err)
	}
	return nil
}

// keepAlive holds the lease open and refreshes the advertised state. A
// closed keep-alive channel means the lease was lost; the node then
// re-registers from scratch, unless it is shutting down.
func (r *NodeRegistration) keepAlive(ctx context.Context) {
	ch, err := r.client.KeepAlive(ctx, r.leaseID)
	if err != nil {
		r.logger.Error("keep-alive start failed", "error", err)
		return
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-ch:
			if ok {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("registration lease lost, re-registering", "node_id", r.node.ID)
			time.Sleep(reRegisterDelay)
			if err := r.Register(ctx); err != nil {
				r.logger.Error("re-registration failed", "error", err)
			}
			return

		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("registration refresh failed", "error", err)
			}
		}
	}
}

// nodeKey is the etcd key the node document lives under.
func nodeKey(id string) string {
	return "/mergetree/nodes/" + id
}

func totalParts(tables []models.TableInfo) int {
	total := 0
	for _, t := range tables {
		total += t.Parts
	}
	return total
}
