package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/sTensor/cmd/util"
	"github.com/ValentinKolb/sTensor/lib/common"
	"github.com/ValentinKolb/sTensor/lib/storage"
	statsUtil "github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/ValentinKolb/sTensor/lib/tensor"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	config *common.Config

	// BenchCmd represents the bench command
	BenchCmd = &cobra.Command{
		Use:   "bench [file]",
		Short: "Compares the B+ tree and the hash table on one tensor file",
		Long: `Loads the tensor file into both backends, runs random lookups and contracts
each tensor with itself. The operation counts (RAM transactions and ALU
operations) of every phase are printed per backend, followed by the cost of
the B+ tree relative to the hash table.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: processBenchConfig,
		RunE:    run,
	}
	benchModes    = [2]int{0, 1}
	benchLookups  = 100000
	benchParallel = true
	benchSeed     = uint64(1)
)

func init() {
	// add flags
	key := "modes"
	BenchCmd.Flags().String(key, "0,1", util.WrapString("Modes of the self contraction (comma separated - e.g. 0,1)"))
	key = "lookups"
	BenchCmd.Flags().Int(key, 100000, util.WrapString("Number of random lookups per backend"))
	key = "parallel"
	BenchCmd.Flags().Bool(key, true, util.WrapString("Benchmark both backends concurrently"))
	key = "seed"
	BenchCmd.Flags().Uint64(key, 1, util.WrapString("Seed of the random lookup coordinates"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Print the results in the prometheus text format instead of the summary"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) (err error) {
	if config, err = util.SetupCommand(cmd); err != nil {
		return err
	}
	return readBenchFlags()
}

// readBenchFlags reads the bench configuration from the command line flags and environment variables
func readBenchFlags() (err error) {
	parts := strings.Split(viper.GetString("modes"), ",")
	if len(parts) != 2 {
		return fmt.Errorf("invalid modes %q: expected two comma separated modes", viper.GetString("modes"))
	}
	for i, part := range parts {
		if benchModes[i], err = strconv.Atoi(strings.TrimSpace(part)); err != nil {
			return fmt.Errorf("invalid mode %q: %v", part, err)
		}
	}
	benchLookups = viper.GetInt("lookups")
	if benchLookups < 0 {
		return fmt.Errorf("invalid lookups %d: must not be negative", benchLookups)
	}
	benchParallel = viper.GetBool("parallel")
	benchSeed = viper.GetUint64("seed")

	return nil
}

// --------------------------------------------------------------------------
// Benchmark
// --------------------------------------------------------------------------

// phase holds the measurements of one step of the benchmark
type phase struct {
	Ops      statsUtil.OpCounts
	Duration time.Duration
}

// result holds all measurements of one backend
type result struct {
	Backend storage.Implementation

	Input     storage.Info
	InputSize int
	Load      phase

	Lookup   phase
	LookupNs gometrics.Timer

	Contract phase
	Output   storage.Info
	OutShape []uint32
}

func run(_ *cobra.Command, args []string) error {
	if args[0] == "-" {
		return fmt.Errorf("bench reads the file once per backend and cannot use stdin")
	}

	backends := []storage.Implementation{storage.ImplBPTree, storage.ImplHashTable}
	results := xsync.NewMapOf[storage.Implementation, *result]()

	g, ctx := errgroup.WithContext(context.Background())
	if !benchParallel {
		g.SetLimit(1)
	}
	for _, backend := range backends {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res, err := benchBackend(args[0], backend)
			if err != nil {
				return fmt.Errorf("%s: %w", backend, err)
			}
			results.Store(backend, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	bpt, _ := results.Load(storage.ImplBPTree)
	ht, _ := results.Load(storage.ImplHashTable)
	defer bpt.LookupNs.Stop()
	defer ht.LookupNs.Stop()

	if viper.GetBool("metrics") {
		set := vmetrics.NewSet()
		results.Range(func(_ storage.Implementation, res *result) bool {
			publishResult(set, res)
			return true
		})
		set.WritePrometheus(os.Stdout)
	} else {
		printResult(bpt)
		printResult(ht)
		printSummary(bpt, ht)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Fprintf(os.Stderr, "\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, []*result{bpt, ht}); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Fprintln(os.Stderr, "Export complete")
	}

	return nil
}

// benchBackend runs all phases for one backend, every phase with fresh counters
func benchBackend(path string, backend storage.Implementation) (*result, error) {
	res := &result{Backend: backend, LookupNs: gometrics.NewTimer()}
	counters := statsUtil.NewCounters()

	conf := *config
	conf.Backend = backend
	opts := util.TensorOptions(&conf, counters)

	// load
	start := time.Now()
	t, err := util.ReadTensor(path, opts)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	res.Load = phase{Ops: counters.Snapshot(), Duration: time.Since(start)}
	res.Input = t.Info()
	res.InputSize = t.Len()

	// random lookups, half of them hitting stored coordinates
	rng := rand.New(rand.NewPCG(benchSeed, benchSeed))
	probes := lookupProbes(t, rng)
	counters.Reset()
	start = time.Now()
	for _, coords := range probes {
		ts := time.Now()
		t.Get(coords)
		res.LookupNs.UpdateSince(ts)
	}
	res.Lookup = phase{Ops: counters.Snapshot(), Duration: time.Since(start)}

	// self contraction
	counters.Reset()
	start = time.Now()
	c, err := tensor.Contract(t, t, benchModes[0], benchModes[1], opts)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	res.Contract = phase{Ops: counters.Snapshot(), Duration: time.Since(start)}
	res.Output = c.Info()
	res.OutShape = c.Shape()

	util.Logger.Infof("%s: finished in %v", backend, res.Load.Duration+res.Lookup.Duration+res.Contract.Duration)
	return res, nil
}

// lookupProbes draws the lookup coordinates: stored ones and uniformly random ones alternating
func lookupProbes(t *tensor.Tensor, rng *rand.Rand) [][]uint32 {
	stored := make([][]uint32, 0, t.Len())
	for coords := range t.All() {
		stored = append(stored, append([]uint32(nil), coords...))
	}

	probes := make([][]uint32, benchLookups)
	shape := t.Shape()
	for i := range probes {
		if i%2 == 0 && len(stored) > 0 {
			probes[i] = stored[rng.IntN(len(stored))]
			continue
		}
		coords := make([]uint32, len(shape))
		for mode, extent := range shape {
			coords[mode] = rng.Uint32N(extent)
		}
		probes[i] = coords
	}
	return probes
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

const separator = "--------------------------------------------------------------------------------"

// printResult prints the measurements of one backend in a formatted way
func printResult(res *result) {
	fmt.Printf("\nInput tensor (%s): %d nnz, %d bytes, loaded in %v\n", res.Backend, res.InputSize, res.Input.SizeBytes, res.Load.Duration)
	fmt.Print(res.Load.Ops.String())

	fmt.Printf("\n%d lookups (%s): mean %.0fns/op, p99 %.0fns/op\n", res.LookupNs.Count(), res.Backend, res.LookupNs.Mean(), res.LookupNs.Percentile(0.99))
	fmt.Print(res.Lookup.Ops.String())

	fmt.Printf("\nContraction on %d, %d (%s) yields shape %v: %d nnz, %d bytes, in %v\n",
		benchModes[0], benchModes[1], res.Backend, res.OutShape, res.Output.Entries, res.Output.SizeBytes, res.Contract.Duration)
	fmt.Print(res.Contract.Ops.String())
	fmt.Println(separator)
}

// printSummary compares the contraction of the B+ tree with the one of the hash table
func printSummary(bpt, ht *result) {
	fmt.Println("Configuration summary:")
	fmt.Printf("  B+ tree branching factor: %d\n", config.Order)
	fmt.Printf("  Hash table overprovision factor: %0.2f\n", config.Overprovision)
	fmt.Printf("  Input tensor size: %d nnz\n", bpt.InputSize)
	fmt.Printf("  Output tensor size: %d nnz\n\n", bpt.Output.Entries)

	fmt.Println("B+ Tree performance compared to hash table:")
	fmt.Printf("  RAM transactions: %s\n", percent(bpt.Contract.Ops.Mem, ht.Contract.Ops.Mem))
	fmt.Printf("  ALU operations:   %s\n", percent(bpt.Contract.Ops.ALU(), ht.Contract.Ops.ALU()))
	fmt.Printf("  Data structure:   %s\n", percent(uint64(bpt.Output.SizeBytes), uint64(ht.Output.SizeBytes)))
	fmt.Printf("  Lookup latency:   %s\n", percent(uint64(bpt.LookupNs.Mean()), uint64(ht.LookupNs.Mean())))
}

func percent(a, b uint64) string {
	if b == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%0.2f%%", 100*float64(a)/float64(b))
}

// publishResult adds the measurements of one backend to set
func publishResult(set *vmetrics.Set, res *result) {
	backend := string(res.Backend)
	res.Load.Ops.Publish(set, backend, "load")
	res.Lookup.Ops.Publish(set, backend, "lookup")
	res.Contract.Ops.Publish(set, backend, "contract")

	set.GetOrCreateCounter(fmt.Sprintf(`stensor_size_bytes{backend=%q,tensor="input"}`, backend)).Set(uint64(res.Input.SizeBytes))
	set.GetOrCreateCounter(fmt.Sprintf(`stensor_size_bytes{backend=%q,tensor="output"}`, backend)).Set(uint64(res.Output.SizeBytes))
	set.GetOrCreateCounter(fmt.Sprintf(`stensor_duration_ns{backend=%q,phase="load"}`, backend)).Set(uint64(res.Load.Duration))
	set.GetOrCreateCounter(fmt.Sprintf(`stensor_duration_ns{backend=%q,phase="lookup"}`, backend)).Set(uint64(res.Lookup.Duration))
	set.GetOrCreateCounter(fmt.Sprintf(`stensor_duration_ns{backend=%q,phase="contract"}`, backend)).Set(uint64(res.Contract.Duration))
}

// writeResultsToCSV writes one row per backend and phase to a CSV file
func writeResultsToCSV(csvPath string, results []*result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Backend", "Phase", "DurationNs", "Mem", "Add", "Mul", "Cmp", "ALU", "SizeBytes",
		"Order", "Overprovision", "InputNnz", "Lookups",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, res := range results {
		phases := []struct {
			name string
			p    phase
			size int
		}{
			{"load", res.Load, res.Input.SizeBytes},
			{"lookup", res.Lookup, res.Input.SizeBytes},
			{"contract", res.Contract, res.Output.SizeBytes},
		}
		for _, ph := range phases {
			row := []string{
				string(res.Backend),
				ph.name,
				strconv.FormatInt(ph.p.Duration.Nanoseconds(), 10),
				strconv.FormatUint(ph.p.Ops.Mem, 10),
				strconv.FormatUint(ph.p.Ops.Add, 10),
				strconv.FormatUint(ph.p.Ops.Mul, 10),
				strconv.FormatUint(ph.p.Ops.Cmp, 10),
				strconv.FormatUint(ph.p.Ops.ALU(), 10),
				strconv.Itoa(ph.size),
				strconv.Itoa(config.Order),
				strconv.FormatFloat(config.Overprovision, 'f', 2, 64),
				strconv.Itoa(res.InputSize),
				strconv.Itoa(benchLookups),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write row for %s/%s: %v", res.Backend, ph.name, err)
			}
		}
	}

	return writer.Error()
}
