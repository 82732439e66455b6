package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/route-beacon/linkstate-ingester/internal/bgp"
	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
	"github.com/route-beacon/linkstate-ingester/internal/bmp"
)

// lsdump renders BGP-LS content as an operator listing: either a hex blob
// given on the command line (or stdin), or live messages tailed from a raw
// BMP Kafka topic.

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "attr":
		runAttr(os.Args[2:])
	case "update":
		runUpdate(os.Args[2:])
	case "kafka":
		runKafka(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: lsdump <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  attr <hex|->              Render a BGP-LS attribute TLV blob")
	fmt.Println("  update <hex|->            Render the link-state content of a BGP UPDATE")
	fmt.Println("  kafka [broker] [topic]    Tail a raw BMP topic and render its link-state events")
	fmt.Println()
	fmt.Println("Hex input may contain spaces, colons and newlines; '-' reads from stdin.")
}

func readHexArg(args []string) []byte {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing hex argument")
		os.Exit(1)
	}
	in := args[0]
	if in == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading stdin: %v\n", err)
			os.Exit(1)
		}
		in = string(data)
	}
	cleaner := strings.NewReplacer(" ", "", "\n", "", "\t", "", ":", "")
	raw, err := hex.DecodeString(cleaner.Replace(in))
	if err != nil {
		fmt.Fprintf(os.Stderr, "decoding hex: %v\n", err)
		os.Exit(1)
	}
	return raw
}

func runAttr(args []string) {
	sink := &bgpls.TextSink{W: os.Stdout}
	bgpls.RenderAttribute(readHexArg(args), sink)
}

func runUpdate(args []string) {
	data := readHexArg(args)

	parser := bgp.NewAttrParser(zap.NewNop())
	events, err := parser.ParseUpdate(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parsing update: %v\n", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		fmt.Println("No link-state content.")
		return
	}
	renderEvents(events)
}

func runKafka(args []string) {
	broker := "localhost:29092"
	topic := "gobmp.raw"
	if len(args) > 0 {
		broker = args[0]
	}
	if len(args) > 1 {
		topic = args[1]
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.ConsumerGroup(fmt.Sprintf("lsdump-%d", time.Now().UnixNano())),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kafka client: %v\n", err)
		os.Exit(1)
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgNum := 0
	for {
		fetches := cl.PollRecords(ctx, 100)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			msgNum++
			fmt.Printf("=== Kafka msg %d (partition=%d offset=%d, %d bytes) ===\n",
				msgNum, rec.Partition, rec.Offset, len(rec.Value))

			analyzeFrame(rec.Value)
			fmt.Println()
		})

		if msgNum > 0 && len(fetches.Records()) == 0 {
			break
		}
	}

	fmt.Printf("Total Kafka messages: %d\n", msgNum)
}

func analyzeFrame(data []byte) {
	bmpBytes, err := bmp.DecodeOpenBMPFrame(data, 16*1024*1024)
	if err != nil {
		fmt.Printf("  DecodeOpenBMPFrame error: %v\n", err)
		return
	}
	fmt.Printf("  BMP payload: %d bytes\n", len(bmpBytes))

	msgs, err := bmp.ParseAll(bmpBytes)
	if err != nil {
		fmt.Printf("  ParseAll error: %v\n", err)
		return
	}
	fmt.Printf("  BMP messages in payload: %d\n", len(msgs))

	parser := bgp.NewAttrParser(zap.NewNop())

	for i, m := range msgs {
		fmt.Printf("\n  --- BMP msg %d (offset=%d, type=%d) ---\n", i, m.Offset, m.MsgType)
		if m.RouterID != "" {
			fmt.Printf("    RouterID: %s\n", m.RouterID)
		}
		if m.MsgType != bmp.MsgTypeRouteMonitoring || m.BGPData == nil {
			continue
		}

		if bgp.IsEOR(m.BGPData) {
			fmt.Println("    Link-State End-of-RIB")
			continue
		}

		events, err := parser.ParseUpdate(m.BGPData)
		if err != nil {
			fmt.Printf("    ParseUpdate error: %v\n", err)
			if len(m.BGPData) <= 80 {
				fmt.Printf("    BGPData hex: %s\n", hex.EncodeToString(m.BGPData))
			}
			continue
		}
		if len(events) == 0 {
			fmt.Println("    No link-state content.")
			continue
		}
		renderEvents(events)
	}
}

func renderEvents(events []*bgp.LinkStateEvent) {
	sink := &bgpls.TextSink{W: os.Stdout}
	for i, ev := range events {
		action := "announce"
		if ev.Action == "D" {
			action = "withdraw"
		}
		fmt.Printf("[%d] %s %s\n", i, action, bgpls.NLRITypeName(ev.NLRI.Kind()))
		bgpls.RenderNLRI(ev.NLRI, sink)
		if len(ev.LinkStateAttr) > 0 {
			bgpls.RenderAttribute(ev.LinkStateAttr, sink)
		}
	}
}
