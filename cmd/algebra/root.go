package algebra

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/sTensor/cmd/util"
	"github.com/ValentinKolb/sTensor/lib/common"
	statsUtil "github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/ValentinKolb/sTensor/lib/tensor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	config *common.Config

	// AlgebraCommands represents the algebra command group
	AlgebraCommands = &cobra.Command{
		Use:               "algebra",
		Short:             "Trace and contract tensor files",
		PersistentPreRunE: setupAlgebraCommands,
	}

	traceCmd = &cobra.Command{
		Use:   "trace [file] [modeA] [modeB]",
		Short: "Sums all entries whose coordinates agree on two modes of equal extent",
		Long: `Computes C[rest] = sum_i T[.., i, .., i, ..] over the two given modes.
The result has rank r-2 and is stored with the configured backend.`,
		Args: cobra.ExactArgs(3),
		RunE: runTrace,
	}

	contractCmd = &cobra.Command{
		Use:   "contract [file1] [file2] [modeA] [modeB]",
		Short: "Contracts modeA of the first tensor with modeB of the second",
		Long: `Computes C[restX, restY] = sum_k X[.., k, ..] * Y[.., k, ..] where k runs
along modeA of X and modeB of Y. Both files may be the same.`,
		Args: cobra.ExactArgs(4),
		RunE: runContract,
	}
)

func init() {
	// Add subcommands
	AlgebraCommands.AddCommand(traceCmd)
	AlgebraCommands.AddCommand(contractCmd)

	// Add flags
	key := "output"
	AlgebraCommands.PersistentFlags().StringP(key, "o", "-", util.WrapString("File the result is written to (- for stdout, .bin for a binary snapshot, .zst for zstd compression)"))

	key = "stats"
	AlgebraCommands.PersistentFlags().Bool(key, false, util.WrapString("Print the operation counts of the computation to stderr"))
}

// setupAlgebraCommands reads the storage configuration
func setupAlgebraCommands(cmd *cobra.Command, _ []string) (err error) {
	config, err = util.SetupCommand(cmd)
	return err
}

func runTrace(_ *cobra.Command, args []string) error {
	modes, err := parseModes(args[1:])
	if err != nil {
		return err
	}

	t, err := util.ReadTensor(args[0], util.TensorOptions(config, nil))
	if err != nil {
		return err
	}
	defer t.Close()

	counters := statsUtil.NewCounters()
	c, err := tensor.Trace(t, modes[0], modes[1], util.TensorOptions(config, counters))
	if err != nil {
		return err
	}
	defer c.Close()

	return finish(c, counters)
}

func runContract(_ *cobra.Command, args []string) error {
	modes, err := parseModes(args[2:])
	if err != nil {
		return err
	}

	x, err := util.ReadTensor(args[0], util.TensorOptions(config, nil))
	if err != nil {
		return err
	}
	defer x.Close()

	// contracting a file with itself reuses the loaded tensor
	y := x
	if args[1] != args[0] {
		if y, err = util.ReadTensor(args[1], util.TensorOptions(config, nil)); err != nil {
			return err
		}
		defer y.Close()
	}

	counters := statsUtil.NewCounters()
	c, err := tensor.Contract(x, y, modes[0], modes[1], util.TensorOptions(config, counters))
	if err != nil {
		return err
	}
	defer c.Close()

	return finish(c, counters)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseModes(args []string) ([2]int, error) {
	var modes [2]int
	for i, arg := range args {
		mode, err := strconv.Atoi(arg)
		if err != nil {
			return modes, fmt.Errorf("invalid mode %q: %v", arg, err)
		}
		modes[i] = mode
	}
	return modes, nil
}

// finish writes the result and optionally the operation counts
func finish(c *tensor.Tensor, counters *statsUtil.Counters) error {
	util.Logger.Infof("result: shape %v, %d entries, %d bytes", c.Shape(), c.Len(), c.Info().SizeBytes)

	if viper.GetBool("stats") {
		fmt.Fprintf(os.Stderr, "Result: shape %v, %d nnz\n", c.Shape(), c.Len())
		fmt.Fprint(os.Stderr, counters.Snapshot().String())
	}
	return util.WriteTensor(viper.GetString("output"), c)
}
