package topology

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/route-beacon/linkstate-ingester/internal/archive"
	"github.com/route-beacon/linkstate-ingester/internal/bgp"
	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
	"github.com/route-beacon/linkstate-ingester/internal/bmp"
	"github.com/route-beacon/linkstate-ingester/internal/config"
	"github.com/route-beacon/linkstate-ingester/internal/metrics"
)

// Pipeline consumes raw BMP records, decodes the embedded link-state
// updates and batches the resulting events for the topology writer. When an
// archive writer is attached, every event is also appended to the raw
// archive within the same flush cycle.
type Pipeline struct {
	writer        *Writer
	archive       *archive.Writer // nil disables archiving
	parser        *bgp.AttrParser
	routers       map[string]config.RouterMeta
	batchSize     int
	flushInterval time.Duration
	maxPayload    int
	logger        *zap.Logger
}

func NewPipeline(writer *Writer, arch *archive.Writer, routers map[string]config.RouterMeta,
	batchSize, flushIntervalMs, maxPayloadBytes int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		writer:        writer,
		archive:       arch,
		parser:        bgp.NewAttrParser(logger),
		routers:       routers,
		batchSize:     batchSize,
		flushInterval: time.Duration(flushIntervalMs) * time.Millisecond,
		maxPayload:    maxPayloadBytes,
		logger:        logger,
	}
}

// Run processes records from the channel until context is cancelled.
// It returns the records that were successfully flushed for offset commit.
func (p *Pipeline) Run(ctx context.Context, records <-chan []*kgo.Record, flushed chan<- []*kgo.Record) {
	var batch []*Event
	var archRows []*archive.Row
	var batchRecords []*kgo.Record
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain remaining.
			if len(batchRecords) > 0 {
				if err := p.flush(ctx, batch, archRows, batchRecords, flushed); err != nil {
					p.logger.Error("final flush failed", zap.Error(err))
				}
			}
			return

		case recs, ok := <-records:
			if !ok {
				if len(batchRecords) > 0 {
					if err := p.flush(ctx, batch, archRows, batchRecords, flushed); err != nil {
						p.logger.Error("final flush failed", zap.Error(err))
					}
				}
				return
			}

			for _, rec := range recs {
				events, rows, peerDowns := p.processRecord(ctx, rec)

				// Always track the record for offset commit, even if parsing
				// failed or the message was filtered. This prevents unparseable
				// records from stalling partition progress.
				batchRecords = append(batchRecords, rec)

				batch = append(batch, events...)
				archRows = append(archRows, rows...)

				for _, routerID := range peerDowns {
					// Flush any pending batch first so the purge cannot race
					// announcements that arrived before the peer went down.
					if len(batchRecords) > 0 {
						if err := p.flush(ctx, batch, archRows, batchRecords, flushed); err != nil {
							p.logger.Error("pre-peerdown flush failed", zap.Error(err))
						} else {
							batch, archRows, batchRecords = nil, nil, nil
						}
					}
					if err := p.writer.HandlePeerDown(ctx, routerID); err != nil {
						p.logger.Error("peer down handling failed", zap.Error(err))
					}
				}
			}

			if len(batchRecords) >= p.batchSize {
				if err := p.flush(ctx, batch, archRows, batchRecords, flushed); err != nil {
					p.logger.Error("batch flush failed", zap.Error(err))
				} else {
					batch, archRows, batchRecords = nil, nil, nil
				}
			}

			// Cap memory: if repeated flush failures cause the batch to
			// grow beyond 10x the configured size, drop it to prevent
			// unbounded memory growth during prolonged DB outages.
			if len(batchRecords) >= p.batchSize*10 {
				p.logger.Error("dropping oversized batch after repeated flush failures",
					zap.Int("dropped_records", len(batchRecords)),
					zap.Int("dropped_events", len(batch)),
				)
				batch, archRows, batchRecords = nil, nil, nil
			}

		case <-ticker.C:
			if len(batchRecords) > 0 {
				if err := p.flush(ctx, batch, archRows, batchRecords, flushed); err != nil {
					p.logger.Error("timer flush failed", zap.Error(err))
				} else {
					batch, archRows, batchRecords = nil, nil, nil
				}
			}
		}
	}
}

// processRecord decodes one OpenBMP record. A record may bundle several BMP
// messages; events and archive rows accumulate across all of them, and every
// Peer Down yields a purge for its router.
func (p *Pipeline) processRecord(ctx context.Context, rec *kgo.Record) ([]*Event, []*archive.Row, []string) {
	raw, err := bmp.DecodeOpenBMPFrame(rec.Value, p.maxPayload)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("openbmp", "frame").Inc()
		p.logger.Warn("failed to decode openbmp frame",
			zap.String("topic", rec.Topic),
			zap.Error(err),
		)
		return nil, nil, nil
	}

	msgs, err := bmp.ParseAll(raw)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("bmp", "parse").Inc()
		p.logger.Warn("failed to parse bmp payload",
			zap.String("topic", rec.Topic),
			zap.Error(err),
		)
		return nil, nil, nil
	}

	var events []*Event
	var rows []*archive.Row
	var peerDowns []string

	for _, msg := range msgs {
		metrics.KafkaMessagesTotal.WithLabelValues(rec.Topic, bmpMsgTypeName(msg.MsgType)).Inc()

		switch msg.MsgType {
		case bmp.MsgTypeRouteMonitoring:
			e, r := p.processRouteMonitoring(rec.Topic, raw, msg)
			events = append(events, e...)
			rows = append(rows, r...)

		case bmp.MsgTypePeerDown:
			if msg.RouterID != "" {
				p.logger.Info("peer down",
					zap.String("router_id", msg.RouterID),
					zap.Uint8("reason", msg.PeerDownReason),
				)
				peerDowns = append(peerDowns, msg.RouterID)
			}

		case bmp.MsgTypePeerUp:
			if msg.RouterID != "" {
				meta := p.routers[msg.RouterID]
				if err := p.writer.UpsertRouter(ctx, msg.RouterID, msg.SysName, msg.SysDescr, meta.Name, meta.Location); err != nil {
					p.logger.Error("router upsert failed",
						zap.String("router_id", msg.RouterID),
						zap.Error(err),
					)
				}
			}
		}
	}

	return events, rows, peerDowns
}

func (p *Pipeline) processRouteMonitoring(topic string, raw []byte, msg *bmp.ParsedBMP) ([]*Event, []*archive.Row) {
	if bgp.IsEOR(msg.BGPData) {
		p.logger.Info("link-state end-of-rib",
			zap.String("router_id", msg.RouterID),
		)
		return nil, nil
	}

	lsEvents, err := p.parser.ParseUpdate(msg.BGPData)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("bgp", "update").Inc()
		p.logger.Warn("failed to parse bgp update",
			zap.String("router_id", msg.RouterID),
			zap.Error(err),
		)
		return nil, nil
	}
	if len(lsEvents) == 0 {
		return nil, nil
	}

	metrics.LastMsgTimestamp.WithLabelValues("topology", msg.RouterID).SetToCurrentTime()

	var events []*Event
	var rows []*archive.Row

	for _, e := range lsEvents {
		key := EventKey(e.NLRI)
		if key == "" {
			continue
		}
		metrics.LinkStateEventsTotal.WithLabelValues(bgpls.NLRITypeName(e.NLRI.Kind()), e.Action).Inc()

		events = append(events, &Event{
			RouterID: msg.RouterID,
			Action:   e.Action,
			Key:      key,
			NLRI:     e.NLRI,
			Attr:     e.LinkStateAttr,
		})

		if p.archive != nil {
			rows = append(rows, &archive.Row{
				EventID:  archive.ComputeEventID(bmpMessageBytes(raw, msg.Offset), key, e.Action),
				RouterID: msg.RouterID,
				NLRIType: e.NLRI.Kind(),
				Action:   e.Action,
				Key:      key,
				Attr:     e.LinkStateAttr,
				BMPRaw:   bmpMessageBytes(raw, msg.Offset),
				Topic:    topic,
			})
		}
	}

	return events, rows
}

// bmpMessageBytes slices one BMP message out of the raw payload using the
// offset recorded by ParseAll. The declared length was already validated.
func bmpMessageBytes(raw []byte, offset int) []byte {
	msgLen := int(binary.BigEndian.Uint32(raw[offset+1 : offset+5]))
	return raw[offset : offset+msgLen]
}

func bmpMsgTypeName(t uint8) string {
	switch t {
	case bmp.MsgTypeRouteMonitoring:
		return "route_monitoring"
	case bmp.MsgTypeStatisticsReport:
		return "stats_report"
	case bmp.MsgTypePeerDown:
		return "peer_down"
	case bmp.MsgTypePeerUp:
		return "peer_up"
	case bmp.MsgTypeInitiation:
		return "initiation"
	case bmp.MsgTypeTermination:
		return "termination"
	default:
		return "other"
	}
}

func (p *Pipeline) flush(ctx context.Context, batch []*Event, archRows []*archive.Row,
	records []*kgo.Record, flushed chan<- []*kgo.Record) error {
	if err := p.writer.FlushBatch(ctx, batch); err != nil {
		return err
	}
	if p.archive != nil {
		if _, err := p.archive.FlushBatch(ctx, archRows); err != nil {
			return err
		}
	}

	// Signal successful flush for offset commit.
	select {
	case flushed <- records:
	case <-ctx.Done():
	}

	return nil
}
