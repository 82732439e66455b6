package topology

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
	"github.com/route-beacon/linkstate-ingester/internal/metrics"
)

// Event is one decoded link-state change bound for the topology tables.
type Event struct {
	RouterID string
	Action   string // "A" announce, "D" withdraw
	Key      string
	NLRI     bgpls.NLRI
	Attr     []byte // Raw BGP-LS path attribute bytes, announcements only
}

type Writer struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger) *Writer {
	return &Writer{pool: pool, logger: logger}
}

// FlushBatch applies a batch of events to ls_nodes / ls_links / ls_prefixes
// within a transaction.
func (w *Writer) FlushBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	counts := map[[2]string]int64{}

	for _, e := range events {
		var (
			table string
			n     int64
			err   error
		)
		switch v := e.NLRI.(type) {
		case *bgpls.NodeNLRI:
			table = "ls_nodes"
			if e.Action == "A" {
				n, err = w.upsertNode(ctx, tx, e, v)
			} else {
				n, err = w.deleteElement(ctx, tx, table, "node_key", e)
			}
		case *bgpls.LinkNLRI:
			table = "ls_links"
			if e.Action == "A" {
				n, err = w.upsertLink(ctx, tx, e, v)
			} else {
				n, err = w.deleteElement(ctx, tx, table, "link_key", e)
			}
		case *bgpls.PrefixNLRI:
			table = "ls_prefixes"
			if e.Action == "A" {
				n, err = w.upsertPrefix(ctx, tx, e, v)
			} else {
				n, err = w.deleteElement(ctx, tx, table, "prefix_key", e)
			}
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", actionName(e.Action), table, err)
		}

		op := "upsert"
		if e.Action == "D" {
			op = "delete"
		}
		counts[[2]string{table, op}] += n
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("topology", "batch").Observe(dur)
	for k, n := range counts {
		metrics.DBRowsAffectedTotal.WithLabelValues("topology", k[0], k[1]).Add(float64(n))
	}
	metrics.BatchSize.WithLabelValues("topology").Observe(float64(len(events)))

	return nil
}

func (w *Writer) upsertNode(ctx context.Context, tx pgx.Tx, e *Event, n *bgpls.NodeNLRI) (int64, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO ls_nodes (router_id, node_key, proto_id, identifier,
			asn, bgp_ls_id, area_id, igp_router_id, router_id_kind, ls_attr,
			first_seen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (router_id, node_key)
		DO UPDATE SET
			asn            = EXCLUDED.asn,
			bgp_ls_id      = EXCLUDED.bgp_ls_id,
			area_id        = EXCLUDED.area_id,
			igp_router_id  = EXCLUDED.igp_router_id,
			router_id_kind = EXCLUDED.router_id_kind,
			ls_attr        = EXCLUDED.ls_attr,
			updated_at     = now()`,
		e.RouterID, e.Key, int16(n.ProtoID), int64(n.Identifier),
		u32OrNil(n.Local.AutonomousSystem), u32OrNil(n.Local.BGPLSIdentifier),
		u32OrNil(n.Local.AreaID), nilIfEmptyBytes(n.Local.IGPRouterID),
		n.Local.RouterIDKind.String(), nilIfEmptyBytes(e.Attr),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (w *Writer) upsertLink(ctx context.Context, tx pgx.Tx, e *Event, n *bgpls.LinkNLRI) (int64, error) {
	var localLinkID, remoteLinkID any
	if n.Link.HasLinkIDs {
		localLinkID = int32(n.Link.LocalLinkID)
		remoteLinkID = int32(n.Link.RemoteLinkID)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO ls_links (router_id, link_key, proto_id, identifier,
			local_node_key, remote_node_key, local_link_id, remote_link_id,
			interface_addr, neighbor_addr, mt_ids, ls_attr, first_seen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (router_id, link_key)
		DO UPDATE SET
			local_link_id  = EXCLUDED.local_link_id,
			remote_link_id = EXCLUDED.remote_link_id,
			interface_addr = EXCLUDED.interface_addr,
			neighbor_addr  = EXCLUDED.neighbor_addr,
			mt_ids         = EXCLUDED.mt_ids,
			ls_attr        = EXCLUDED.ls_attr,
			updated_at     = now()`,
		e.RouterID, e.Key, int16(n.ProtoID), int64(n.Identifier),
		NodeKey(n.ExtHeader, &n.Link.Local), NodeKey(n.ExtHeader, &n.Link.Remote),
		localLinkID, remoteLinkID,
		addrOrNil(n.Link.InterfaceAddr), addrOrNil(n.Link.NeighborAddr),
		int32IDs(n.Link.MultiTopologyIDs), nilIfEmptyBytes(e.Attr),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (w *Writer) upsertPrefix(ctx context.Context, tx pgx.Tx, e *Event, n *bgpls.PrefixNLRI) (int64, error) {
	var routeType any
	if n.Prefix.HasOSPFRouteType {
		routeType = int16(n.Prefix.OSPFRouteType)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO ls_prefixes (router_id, prefix_key, proto_id, identifier,
			local_node_key, ipv6, ospf_route_type, mt_ids, prefix_len,
			reachability, ls_attr, first_seen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (router_id, prefix_key)
		DO UPDATE SET
			ospf_route_type = EXCLUDED.ospf_route_type,
			ls_attr         = EXCLUDED.ls_attr,
			updated_at      = now()`,
		e.RouterID, e.Key, int16(n.ProtoID), int64(n.Identifier),
		NodeKey(n.ExtHeader, &n.Prefix.Local), n.IPv6, routeType,
		int32IDs(n.Prefix.MultiTopologyIDs), int16(n.Prefix.ReachabilityPrefixLen),
		nilIfEmptyBytes(n.Prefix.Reachability), nilIfEmptyBytes(e.Attr),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (w *Writer) deleteElement(ctx context.Context, tx pgx.Tx, table, keyCol string, e *Event) (int64, error) {
	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE router_id = $1 AND %s = $2`, table, keyCol),
		e.RouterID, e.Key,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HandlePeerDown purges all topology rows learned from a disconnected router.
func (w *Writer) HandlePeerDown(ctx context.Context, routerID string) error {
	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, table := range []string{"ls_nodes", "ls_links", "ls_prefixes"} {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE router_id = $1`, table), routerID)
		if err != nil {
			return fmt.Errorf("purge %s for router %s: %w", table, routerID, err)
		}
		purged := tag.RowsAffected()
		total += purged
		if purged > 0 {
			metrics.TopologyPurgedTotal.WithLabelValues(table).Add(float64(purged))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit peer down tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("topology", "peer_down").Observe(dur)

	w.logger.Info("purged topology on peer down",
		zap.String("router_id", routerID),
		zap.Int64("purged", total),
	)

	return nil
}

// UpsertRouter inserts or updates router metadata from BMP Peer Up messages
// and operator-provided config (display_name, location).
func (w *Writer) UpsertRouter(ctx context.Context, routerID, sysName, sysDescr, displayName, location string) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO routers (router_id, sys_name, sys_descr, display_name, location, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (router_id) DO UPDATE SET
			sys_name     = COALESCE(EXCLUDED.sys_name, routers.sys_name),
			sys_descr    = COALESCE(EXCLUDED.sys_descr, routers.sys_descr),
			display_name = COALESCE(EXCLUDED.display_name, routers.display_name),
			location     = COALESCE(EXCLUDED.location, routers.location),
			last_seen    = now()`,
		routerID, nullableString(sysName), nullableString(sysDescr),
		nullableString(displayName), nullableString(location),
	)
	return err
}

func actionName(a string) string {
	if a == "D" {
		return "withdraw"
	}
	return "announce"
}

func u32OrNil(v *uint32) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func addrOrNil(a netip.Addr) any {
	if !a.IsValid() {
		return nil
	}
	return a.String()
}

// int32IDs widens MT-IDs for INTEGER[] storage; uint16 values above 32767
// would wrap negative in a SMALLINT[].
func int32IDs(ids []uint16) []int32 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}

func nilIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
