//go:build linux

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ringbahn/iou"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Ring struct {
		Entries    uint32 `yaml:"entries"`
		SQPoll     bool   `yaml:"sqpoll"`
		SQPollIdle uint32 `yaml:"sqpoll-idle-ms"`
		CQEntries  uint32 `yaml:"cq-entries"`
	} `yaml:"ring"`

	BatchSize uint32 `yaml:"batch-size"`
	Count     uint64 `yaml:"count"`
}

func loadConfig() (*Config, error) {
	fConfig := flag.String("config", "", "path to config YAML file")
	fEntries := flag.Uint("e", 0, "ring entries")
	fBatch := flag.Uint("b", 0, "submission batch size")
	fCount := flag.Uint64("n", 0, "operation count")
	fSQPoll := flag.Bool("sqpoll", false, "kernel side submission polling")

	flag.Parse()

	var conf Config
	if *fConfig != "" {
		b, err := os.ReadFile(*fConfig)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &conf); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	// Apply CLI overrides if necessary.
	if *fEntries != 0 {
		conf.Ring.Entries = uint32(*fEntries)
	}
	if *fBatch != 0 {
		conf.BatchSize = uint32(*fBatch)
	}
	if *fCount != 0 {
		conf.Count = *fCount
	}
	if *fSQPoll {
		conf.Ring.SQPoll = true
	}

	// Defaults, then validate.

	if conf.Ring.Entries == 0 {
		conf.Ring.Entries = 256
	}
	if conf.BatchSize == 0 {
		conf.BatchSize = 32
	}
	if conf.Count == 0 {
		conf.Count = 1_000_000
	}
	if conf.Ring.Entries > 4096 {
		return nil, errors.New("ring.entries must be <= 4096")
	}
	if conf.BatchSize > conf.Ring.Entries {
		return nil, errors.New("batch-size must not exceed ring.entries")
	}

	return &conf, nil
}

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func main() {
	conf, err := loadConfig()
	fatalIf(err, "reading config")

	fmt.Fprintf(os.Stderr, "FINAL CONFIG:\n")
	b, err := yaml.Marshal(conf)
	fatalIf(err, "encoding final YAML config")
	_, _ = os.Stderr.Write(b)
	fmt.Fprintln(os.Stderr)

	var options []iou.Option
	if conf.Ring.SQPoll {
		options = append(options, iou.WithSQPoll(conf.Ring.SQPollIdle))
	}
	if conf.Ring.CQEntries != 0 {
		options = append(options, iou.WithCQEntries(conf.Ring.CQEntries))
	}

	ring, err := iou.New(conf.Ring.Entries, options...)
	fatalIf(err, "ring setup")
	defer ring.Close()

	fmt.Fprintf(os.Stderr, "ring fd=%d entries=%d features=%#x\n",
		ring.Fd(), conf.Ring.Entries, ring.Features())

	runtime.LockOSThread()

	sq, cq := ring.Queues()
	batch := conf.BatchSize

	var submitted, completed uint64
	start := time.Now()

	for completed < conf.Count {
		n := batch
		if remaining := conf.Count - submitted; uint64(n) > remaining {
			n = uint32(remaining)
		}

		if n > 0 {
			sqes := sq.PrepareSQEs(n)
			for sqes == nil {
				// Ring full, drain a batch of completions first.
				it := cq.CQEs()
				for it.Next() != nil {
					completed++
				}
				_ = it.Close()
				sqes = sq.PrepareSQEs(n)
			}
			for {
				sqe := sqes.Next()
				if sqe == nil {
					break
				}
				sqe.PrepareNop()
				sqe.SetUserData(submitted)
				submitted++
			}
		}

		_, err = sq.SubmitAndWait(1)
		fatalIf(err, "submit")

		it := cq.CQEs()
		for {
			cqe := it.Next()
			if cqe == nil {
				break
			}
			if _, resErr := cqe.Result(); resErr != nil {
				fatalIf(resErr, "completion %d", cqe.UserData())
			}
			completed++
		}
		_ = it.Close()
	}

	elapsed := time.Since(start)
	opsPerSec := int64(float64(completed) / elapsed.Seconds())

	fmt.Print("\nFINAL REPORT\n")
	fmt.Printf(" Elapsed:    %.3f s\n", elapsed.Seconds())
	fmt.Printf(" Submitted:  %s\n", humanize.Comma(int64(submitted)))
	fmt.Printf(" Completed:  %s\n", humanize.Comma(int64(completed)))
	fmt.Printf(" Ops/sec:    %s\n", humanize.Comma(opsPerSec))
}
