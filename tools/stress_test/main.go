package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VanDung-dev/HieraChain-Replica/arrow"
	"github.com/VanDung-dev/HieraChain-Replica/codec"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address     string
	Concurrency int
	Window      int
	PayloadSize int
	Duration    time.Duration
	ReportFile  string
	BlocksFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalSent      int64
	Committed      int64
	Blocks         int64
	Failed         int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	TxPerSec       float64
	ReceivedBlocks []*types.Block `json:"-"`
}

type counters struct {
	sent, committed, blocks, failed int64
	totalLatency                    int64
	minLatency                      int64
	maxLatency                      int64
}

func main() {
	config := parseFlags()

	fmt.Println("=== HieraChain Replica Stress Test ===")
	fmt.Printf("Target: %s\n", config.Address)
	fmt.Printf("Clients: %d (window %d)\n", config.Concurrency, config.Window)
	fmt.Printf("Payload: %d bytes\n", config.PayloadSize)
	fmt.Printf("Duration: %v\n", config.Duration)
	fmt.Println()

	result := runStressTest(config)

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
	if config.BlocksFile != "" {
		saveBlocks(config.BlocksFile, result.ReceivedBlocks)
	}
}

func parseFlags() StressTestConfig {
	config := StressTestConfig{}

	flag.StringVar(&config.Address, "addr", "127.0.0.1:10000", "Replica client address")
	flag.IntVar(&config.Concurrency, "c", 10, "Number of concurrent clients")
	flag.IntVar(&config.Window, "w", 100, "Unconfirmed transactions allowed per client")
	flag.IntVar(&config.PayloadSize, "payload", 64, "Transaction payload size in bytes")
	flag.DurationVar(&config.Duration, "d", 30*time.Second, "Duration of test")
	flag.StringVar(&config.ReportFile, "report", "", "Output report file (JSON)")
	flag.StringVar(&config.BlocksFile, "o", "", "Write blocks seen by the first client as Arrow IPC")

	flag.Parse()

	return config
}

func runStressTest(config StressTestConfig) StressTestResult {
	c := &counters{minLatency: 1<<63 - 1}
	var (
		wg       sync.WaitGroup
		stopChan = make(chan struct{})
		blocks   = make(chan []*types.Block, 1)
	)

	startTime := time.Now()

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			collected := runWorker(workerID, config, stopChan, c)
			if workerID == 0 {
				blocks <- collected
			}
		}(i)
	}

	time.Sleep(config.Duration)
	close(stopChan)
	wg.Wait()

	var received []*types.Block
	if config.Concurrency > 0 {
		received = <-blocks
	}

	duration := time.Since(startTime)
	committed := atomic.LoadInt64(&c.committed)

	var avgLatency time.Duration
	if committed > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / committed)
	}
	minLat := atomic.LoadInt64(&c.minLatency)
	if committed == 0 {
		minLat = 0
	}

	return StressTestResult{
		TotalSent:      atomic.LoadInt64(&c.sent),
		Committed:      committed,
		Blocks:         atomic.LoadInt64(&c.blocks),
		Failed:         atomic.LoadInt64(&c.failed),
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLat),
		MaxLatency:     time.Duration(atomic.LoadInt64(&c.maxLatency)),
		TxPerSec:       float64(committed) / duration.Seconds(),
		ReceivedBlocks: received,
	}
}

// runWorker drives one client connection until stop is closed and returns
// the blocks it received.
func runWorker(id int, config StressTestConfig, stop chan struct{}, c *counters) []*types.Block {
	conn, err := net.DialTimeout("tcp", config.Address, 5*time.Second)
	if err != nil {
		atomic.AddInt64(&c.failed, 1)
		log.Printf("client %d: %v", id, err)
		return nil
	}

	var (
		pending  sync.Map // payload -> send time
		window   = make(chan struct{}, max(config.Window, 1))
		received []*types.Block
		done     = make(chan struct{})
	)

	go func() {
		defer close(done)
		reader := codec.NewReader(conn, codec.NewBlockCodec())
		for {
			block, err := reader.Next()
			if err != nil {
				return
			}
			if id == 0 {
				atomic.AddInt64(&c.blocks, 1)
				received = append(received, block)
			}
			for _, tx := range block.Body {
				sentAt, ok := pending.LoadAndDelete(string(tx.Data))
				if !ok {
					continue
				}
				recordLatency(c, time.Since(sentAt.(time.Time)))
				<-window
			}
		}
	}()

	txCodec := codec.NewTxCodec()
	for seq := uint64(0); ; seq++ {
		select {
		case <-stop:
			_ = conn.Close()
			<-done
			return received
		case window <- struct{}{}:
		}

		tx := &types.Transaction{Data: makePayload(id, seq, config.PayloadSize)}
		pending.Store(string(tx.Data), time.Now())
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := txCodec.Encode(conn, tx); err != nil {
			atomic.AddInt64(&c.failed, 1)
			_ = conn.Close()
			<-done
			return received
		}
		atomic.AddInt64(&c.sent, 1)
	}
}

func recordLatency(c *counters, latency time.Duration) {
	atomic.AddInt64(&c.committed, 1)
	atomic.AddInt64(&c.totalLatency, int64(latency))

	lat := int64(latency)
	for {
		old := atomic.LoadInt64(&c.minLatency)
		if lat >= old || atomic.CompareAndSwapInt64(&c.minLatency, old, lat) {
			break
		}
	}
	for {
		old := atomic.LoadInt64(&c.maxLatency)
		if lat <= old || atomic.CompareAndSwapInt64(&c.maxLatency, old, lat) {
			break
		}
	}
}

// makePayload returns a unique payload of at least 16 bytes: client id and
// sequence number, padded to size.
func makePayload(client int, seq uint64, size int) []byte {
	p := make([]byte, max(size, 16))
	binary.BigEndian.PutUint64(p[0:8], uint64(client))
	binary.BigEndian.PutUint64(p[8:16], seq)
	return p
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Sent:            %d\n", result.TotalSent)
	if result.TotalSent > 0 {
		fmt.Printf("Committed:       %d (%.2f%%)\n", result.Committed, float64(result.Committed)/float64(result.TotalSent)*100)
	}
	fmt.Printf("Blocks:          %d\n", result.Blocks)
	fmt.Printf("Failed clients:  %d\n", result.Failed)
	fmt.Printf("Tx/sec:          %.2f\n", result.TxPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":      config.Address,
			"concurrency":  config.Concurrency,
			"window":       config.Window,
			"payload_size": config.PayloadSize,
			"duration":     config.Duration.String(),
		},
		"results": map[string]interface{}{
			"sent":           result.TotalSent,
			"committed":      result.Committed,
			"blocks":         result.Blocks,
			"failed_clients": result.Failed,
			"tx_per_sec":     result.TxPerSec,
			"avg_latency_ms": float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms": float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms": float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, data, 0644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}

func saveBlocks(path string, blocks []*types.Block) {
	if len(blocks) == 0 {
		log.Printf("No blocks received, %s not written", path)
		return
	}

	var buf bytes.Buffer
	if err := arrow.NewIPCWriter().WriteBlocks(&buf, blocks); err != nil {
		log.Printf("Failed to encode blocks: %v", err)
		return
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		log.Printf("Failed to write blocks: %v", err)
	} else {
		fmt.Printf("%d blocks saved to: %s\n", len(blocks), path)
	}
}
