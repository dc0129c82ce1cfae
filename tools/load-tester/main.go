package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/logflow/internal/adapter/lumberjack"
)

var levels = []string{"DEBUG", "INFO", "INFO", "INFO", "WARNING", "ERROR"}

func main() {
	addr := flag.String("addr", "localhost:5044", "lumberjack listener address")
	concurrency := flag.Int("c", 10, "Number of concurrent connections")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	eps := flag.Int("eps", 10000, "Events per second limit across all connections")
	window := flag.Int("window", 100, "Events per window")
	compress := flag.Bool("compress", true, "Send zlib-compressed windows")
	flag.Parse()

	log.Printf("Starting load test on %s", *addr)
	log.Printf("Connections: %d, Duration: %s, EPS: %d, Window: %d", *concurrency, *duration, *eps, *window)

	var wg sync.WaitGroup
	var eventCount, windowCount, errorCount atomic.Int64
	var ackLatency atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// One token per event; a burst of one window per connection.
	limiter := rate.NewLimiter(rate.Limit(*eps), *window**concurrency)

	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			var client *lumberjack.Client
			defer func() {
				if client != nil {
					client.Close()
				}
			}()

			for ctx.Err() == nil {
				if err := limiter.WaitN(ctx, *window); err != nil {
					return
				}

				if client == nil {
					c, err := lumberjack.Dial(*addr, *compress, 30*time.Second)
					if err != nil {
						errorCount.Add(1)
						time.Sleep(time.Second)
						continue
					}
					client = c
				}

				events := make([]map[string]any, *window)
				for j := range events {
					events[j] = sampleEvent(workerID)
				}

				sent := time.Now()
				if err := client.SendEvents(events); err != nil {
					errorCount.Add(1)
					client.Close()
					client = nil
					continue
				}
				ackLatency.Add(int64(time.Since(sent)))
				windowCount.Add(1)
				eventCount.Add(int64(len(events)))
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	log.Println("Load test finished.")
	log.Printf("Events acked: %d", eventCount.Load())
	log.Printf("Windows acked: %d", windowCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual EPS: %.2f", float64(eventCount.Load())/elapsed.Seconds())
	if n := windowCount.Load(); n > 0 {
		log.Printf("Mean ack latency: %s", time.Duration(ackLatency.Load()/n))
	}
}

// sampleEvent builds a Beats-style event whose message matches the default
// app_trace pattern, or a container line that does not.
func sampleEvent(workerID int) map[string]any {
	host := map[string]any{"hostname": fmt.Sprintf("load-%d", workerID)}
	if rand.IntN(4) == 0 {
		return map[string]any{
			"message": fmt.Sprintf("container %s restarted", uuid.NewString()[:8]),
			"tags":    []string{"container_log"},
			"agent":   host,
		}
	}
	ts := time.Now().UTC().Format("2006-01-02 15:04:05,000")
	return map[string]any{
		"message": fmt.Sprintf("%s [%s] service=load trace_id=%s span_id=%d request handled",
			ts, levels[rand.IntN(len(levels))], uuid.NewString(), rand.IntN(1<<20)),
		"tags":  []string{"app_log"},
		"agent": host,
	}
}
