// Command lockbench stress-tests a lock pool across real OS processes.
// The parent maps the arena, allocates one lock and re-executes itself in
// worker mode; workers attach by path and hammer acquire/release.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-shmlock/v1/lock"
)

var (
	procs       = flag.Int("p", 4, "Number of worker processes")
	concurrency = flag.Int("c", 4, "Goroutines per worker process")
	requests    = flag.Int("n", 400000, "Total number of acquire/release pairs")
	backendName = flag.String("backend", "auto", "Lock backend (auto, spin, yieldspin, futex, futexpi, sem, sysvsem, fcntl)")
	relaxed     = flag.Bool("relax", true, "Use the relaxed acquire path")

	workerMode  = flag.Bool("worker", false, "internal: run as a worker")
	regionPath  = flag.String("region", "", "internal: arena path to attach")
	lockIndex   = flag.Uint("lock-index", 0, "internal: lock slot index")
	lockGen     = flag.Uint("lock-gen", 0, "internal: lock slot generation")
	workerIters = flag.Int("iters", 0, "internal: iterations for this worker")
)

func main() {
	flag.Parse()
	if *workerMode {
		if err := runWorker(); err != nil {
			log.Fatalf("worker: %v", err)
		}
		return
	}
	if err := runParent(); err != nil {
		log.Fatal(err)
	}
}

func runParent() error {
	kind, err := lock.ParseKind(*backendName)
	if err != nil {
		return err
	}

	log.Printf("Starting benchmark: %d processes x %d goroutines, %d total pairs, backend %s",
		*procs, *concurrency, *requests, *backendName)

	p, err := lock.Map("bench", lock.WithBackend(kind), lock.WithWorkers(*procs**concurrency))
	if err != nil {
		return err
	}
	defer p.Unmap()
	log.Printf("Arena mapped at %s, active backend %s", p.Path(), p.Kind())

	ctx := context.Background()
	h, err := p.Create(ctx, "bench")
	if err != nil {
		return err
	}
	defer p.Destroy(ctx, h)

	self, err := os.Executable()
	if err != nil {
		return err
	}

	perWorker := *requests / *procs
	start := time.Now()

	var g errgroup.Group
	for i := 0; i < *procs; i++ {
		g.Go(func() error {
			cmd := exec.Command(self,
				"-worker",
				"-region", p.Path(),
				"-lock-index", fmt.Sprint(h.Index),
				"-lock-gen", fmt.Sprint(h.Gen),
				"-iters", fmt.Sprint(perWorker),
				"-c", fmt.Sprint(*concurrency),
				fmt.Sprintf("-relax=%v", *relaxed),
			)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd.Run()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	elapsed := time.Since(start)

	pairs := int64(perWorker * *procs)
	log.Printf("Finished in %v", elapsed)
	log.Printf("Throughput: %.0f acquire/release pairs/sec", float64(pairs)/elapsed.Seconds())
	log.Printf("Avg latency: %.2f us/pair", elapsed.Seconds()/float64(pairs)*1e6)
	return nil
}

func runWorker() error {
	p, err := lock.Attach(*regionPath)
	if err != nil {
		return err
	}
	defer p.Unmap()

	h := lock.Handle{Index: uint32(*lockIndex), Gen: uint32(*lockGen)}
	ctx := context.Background()

	perG := *workerIters / *concurrency
	var errCount int64

	var g errgroup.Group
	for i := 0; i < *concurrency; i++ {
		g.Go(func() error {
			for j := 0; j < perG; j++ {
				var err error
				if *relaxed {
					err = p.AcquireRelax(ctx, h)
				} else {
					err = p.Acquire(ctx, h)
				}
				if err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				if err := p.Release(h); err != nil {
					atomic.AddInt64(&errCount, 1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := atomic.LoadInt64(&errCount); n > 0 {
		return fmt.Errorf("%d lock operations failed", n)
	}
	return nil
}
