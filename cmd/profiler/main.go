// Command profiler drives the codec engine and archive manager under the Go
// profilers.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strconv"
	"time"

	"github.com/meigma/klondike"
	"github.com/meigma/klondike/engine"
	"github.com/meigma/klondike/internal/testutil"
)

type config struct {
	mode       string
	files      int
	fileSize   int
	pattern    string
	password   string
	workers    int
	duration   time.Duration
	iterations int
	pprofAddr  string
	cpuProfile string
	memProfile string
	traceFile  string
	seed       uint64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkCount int
)

func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	payloads := makePayloads(cfg)
	container, err := buildContainer(cfg, payloads)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, payloads, container)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional, profiles are best-effort
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocritic // hugeParam acceptable for profiler config
func runProfile(cfg config, payloads [][]byte, container []byte) (profileStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	switch cfg.mode {
	case "encode":
		e := engine.New(engine.WithWorkers(cfg.workers))
		for shouldContinue() {
			data := payloads[ops%len(payloads)]
			blob, err := e.Encode(context.Background(), "profile.dat", data)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = blob
			byteCount += int64(len(data))
			ops++
		}

	case "save":
		for shouldContinue() {
			a, err := newArchive(cfg, payloads)
			if err != nil {
				return profileStats{}, err
			}
			var buf bytes.Buffer
			n, err := a.WriteTo(&buf)
			_ = a.Close()
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	case "open":
		for shouldContinue() {
			a, err := klondike.Load(bytes.NewReader(container), options(cfg)...)
			if err != nil {
				return profileStats{}, err
			}
			sinkCount = a.Len()
			_ = a.Close()
			byteCount += int64(len(container))
			ops++
		}

	case "extract":
		a, err := klondike.Load(bytes.NewReader(container), options(cfg)...)
		if err != nil {
			return profileStats{}, err
		}
		defer a.Close()
		start = time.Now()
		for shouldContinue() {
			err := a.ExtractAll(func(_ klondike.Entry, data []byte) error {
				sinkBytes = data
				byteCount += int64(len(data))
				return nil
			})
			if err != nil {
				return profileStats{}, err
			}
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.mode, "mode", "encode", "mode: encode, save, open, extract")
	flag.IntVar(&cfg.files, "files", 16, "number of payloads")
	flag.IntVar(&cfg.fileSize, "file-size", 256<<10, "payload size in bytes")
	flag.StringVar(&cfg.pattern, "pattern", "text", "pattern: text, dna or random")
	flag.StringVar(&cfg.password, "password", "", "encrypt the container with this password")
	flag.IntVar(&cfg.workers, "workers", 0, "encode workers: <0 serial, 0 auto, >0 fixed")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.Uint64Var(&cfg.seed, "seed", 1, "random seed")
	flag.Parse()
	return cfg
}

//nolint:gocritic // hugeParam acceptable for profiler config
func makePayloads(cfg config) [][]byte {
	payloads := make([][]byte, max(cfg.files, 1))
	for i := range payloads {
		seed := cfg.seed + uint64(i) //nolint:gosec // i is non-negative
		switch cfg.pattern {
		case "random":
			payloads[i] = testutil.Random(cfg.fileSize, seed)
		case "dna":
			payloads[i] = testutil.DNA(cfg.fileSize, seed)
		default:
			payloads[i] = testutil.Text(cfg.fileSize)
		}
	}
	return payloads
}

//nolint:gocritic // hugeParam acceptable for profiler config
func options(cfg config) []klondike.Option {
	opts := []klondike.Option{klondike.WithEngineOptions(engine.WithWorkers(cfg.workers))}
	if cfg.password != "" {
		opts = append(opts, klondike.WithPassword(cfg.password))
	}
	return opts
}

//nolint:gocritic // hugeParam acceptable for profiler config
func newArchive(cfg config, payloads [][]byte) (*klondike.Archive, error) {
	a := klondike.New(options(cfg)...)
	for i, data := range payloads {
		if _, err := a.Add("file"+strconv.Itoa(i)+".dat", data); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

//nolint:gocritic // hugeParam acceptable for profiler config
func buildContainer(cfg config, payloads [][]byte) ([]byte, error) {
	a, err := newArchive(cfg, payloads)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
