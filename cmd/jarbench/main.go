// Command jarbench drives Put/Get throughput against a jardb.Database,
// generating keys with a worker pool the same way this codebase's other
// benchmark tooling seeds fixtures. jardb.Database is not safe for
// concurrent mutation on one handle (§5 of the store's concurrency
// model), so the worker pool only prepares key/value pairs concurrently;
// a single consumer goroutine applies every Put serially.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/jarbarrel/jardb/pkg/jardb"
)

type kv struct {
	key, value []byte
}

func main() {
	var (
		path       = pflag.String("path", "/tmp/jarbench", "database directory")
		name       = pflag.String("name", "bench", "database name")
		count      = pflag.Int("count", 100_000, "number of keys to put")
		workers    = pflag.Int("workers", 8, "number of concurrent key-generation workers")
		appendOnly = pflag.Bool("append-only", false, "enable the append-only log while seeding")
	)

	pflag.Parse()

	opts := jardb.DefaultOptions(*path, *name)
	if *appendOnly {
		opts.FeatureSet = jardb.AppendOnly
	} else {
		opts.FeatureSet = 0
	}

	db, err := jardb.Open(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}

	defer func() { _ = db.Close() }()

	start := time.Now()
	seed(db, *count, *workers)
	elapsed := time.Since(start)

	fmt.Printf("put %d keys with %d generator workers in %s (%.0f puts/sec)\n",
		*count, *workers, elapsed, float64(*count)/elapsed.Seconds())

	readStart := time.Now()
	hits := readBack(db, *count)
	fmt.Printf("read back %d/%d keys in %s\n", hits, *count, time.Since(readStart))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := <-db.BackgroundSave(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "background save: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot written to %s/%s.dump\n", *path, *name)
}

func seed(db *jardb.Database, count, workers int) {
	indices := make(chan int, workers*2)
	prepared := make(chan kv, workers*2)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range indices {
				prepared <- kv{
					key:   []byte(fmt.Sprintf("bench-key-%08d", i)),
					value: []byte(fmt.Sprintf("bench-value-%08d", i)),
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(prepared)
	}()

	go func() {
		for i := 0; i < count; i++ {
			indices <- i
		}

		close(indices)
	}()

	for pair := range prepared {
		if err := db.Put(pair.key, pair.value); err != nil {
			fmt.Fprintf(os.Stderr, "put %q: %v\n", pair.key, err)
		}
	}
}

func readBack(db *jardb.Database, count int) int {
	hits := 0

	for i := 0; i < count; i++ {
		key := []byte(fmt.Sprintf("bench-key-%08d", i))
		if _, err := db.Get(key); err == nil {
			hits++
		}
	}

	return hits
}
