package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/concord/internal/platform"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/oplog"
	"github.com/aretw0/concord/pkg/payload"
	"github.com/aretw0/concord/pkg/replica"
)

func main() {
	devices := flag.Int("devices", 4, "Number of devices editing concurrently")
	count := flag.Int("count", 1000, "Number of operations per device")
	keep := flag.Bool("keep", false, "Keep the generated logs after running")
	flag.Parse()

	// 1. Setup Inbox
	benchDir, err := os.MkdirTemp("", "concord_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	ctx := context.TODO()

	fmt.Printf("Generating %d x %d operations in %s...\n", *devices, *count, benchDir)
	startGen := time.Now()
	paths, err := generate(ctx, benchDir, *devices, *count)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Generation took: %v\n", time.Since(startGen))

	// 2. Replay every log into a fresh replica
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	r, err := platform.NewReplica("bench", platform.WithLogger(logger))
	if err != nil {
		panic(err)
	}
	defer r.Close()

	fmt.Println("Running Replay...")
	startReplay := time.Now()
	report, err := platform.Replay(ctx, r, paths...)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Replay Result: %v (Applied: %d, Skipped: %d, Conflicts: %d)\n",
		time.Since(startReplay), len(report.Applied), len(report.Skipped), len(report.Conflicts))

	// 3. Drain the inbox twice; the second run should hit the index
	inbox, err := platform.OpenInbox(benchDir, platform.WithLogger(logger))
	if err != nil {
		panic(err)
	}

	fmt.Println("Running Drain (Run 1 - Cold)...")
	startCold := time.Now()
	batches, err := inbox.Drain(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Run 1 Result: %v (Files: %d)\n", time.Since(startCold), len(batches))

	fmt.Println("Running Drain (Run 2 - Warm)...")
	startWarm := time.Now()
	batches, err = inbox.Drain(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Run 2 Result: %v (Files: %d)\n", time.Since(startWarm), len(batches))
}

// generate has each device edit its own statements and, every tenth
// operation, a shared argument. It returns the log written per device.
func generate(ctx context.Context, dir string, devices, count int) ([]string, error) {
	seed, err := replica.New("seed")
	if err != nil {
		return nil, err
	}
	defer seed.Close()
	shared, err := seed.Issue(ctx, core.OpCreateArgument, "/shared", payload.Value{Content: "axiom"})
	if err != nil {
		return nil, err
	}

	seedPath := filepath.Join(dir, "seed.ndjson")
	if err := oplog.WriteFile(seedPath, seed.Log()); err != nil {
		return nil, err
	}
	paths := []string{seedPath}

	for d := 0; d < devices; d++ {
		device := core.DeviceID(fmt.Sprintf("device-%d", d))
		r, err := replica.New(device)
		if err != nil {
			return nil, err
		}
		if _, err := r.Receive(ctx, shared); err != nil {
			return nil, err
		}

		for i := 0; i < count; i++ {
			var err error
			if i%10 == 0 {
				_, err = r.Issue(ctx, core.OpUpdateArgument, "/shared", payload.Value{Content: fmt.Sprintf("%s rev %d", device, i)})
			} else {
				_, err = r.Issue(ctx, core.OpCreateStatement, fmt.Sprintf("/%s/s%d", device, i), payload.Value{Content: i})
			}
			if err != nil {
				return nil, err
			}
		}

		path := filepath.Join(dir, string(device)+".ndjson")
		// the shared creation already ships in the seed log
		if err := oplog.WriteFile(path, r.Log()[1:]); err != nil {
			return nil, err
		}
		paths = append(paths, path)
		_ = r.Close()
	}
	return paths, nil
}
