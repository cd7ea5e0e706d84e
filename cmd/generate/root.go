package generate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/ValentinKolb/sTensor/cmd/util"
	"github.com/ValentinKolb/sTensor/lib/common"
	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/ValentinKolb/sTensor/lib/tensor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	config *common.Config

	// GenerateCmd represents the generate command
	GenerateCmd = &cobra.Command{
		Use:   "generate [density] [extent1] [extent2]...",
		Short: "Generates a random sparse tensor",
		Long: `Generates a random sparse tensor of the given shape. int(volume * density)
coordinates are drawn uniformly, each holding an integer value in [1, 50].
Coordinates drawn twice are stored once, so the result may hold slightly
fewer entries.

Example: a 10x10 tensor with around 5 entries
    stensor generate 0.05 10 10`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			config, err = util.SetupCommand(cmd)
			return err
		},
		RunE: run,
	}
)

func init() {
	// Add flags
	key := "output"
	GenerateCmd.Flags().StringP(key, "o", "-", util.WrapString("File the tensor is written to (- for stdout, .bin for a binary snapshot, .zst for zstd compression)"))

	key = "seed"
	GenerateCmd.Flags().Uint64(key, 0, util.WrapString("Seed of the random generator, 0 picks a time based seed"))
}

func run(_ *cobra.Command, args []string) error {
	density, err := strconv.ParseFloat(args[0], 64)
	if err != nil || density < 0 || density > 1 {
		return fmt.Errorf("invalid density %q: must be a number in [0, 1]", args[0])
	}

	shape := make([]uint32, len(args)-1)
	for i, arg := range args[1:] {
		extent, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid extent %q: %v", arg, err)
		}
		shape[i] = uint32(extent)
	}

	seed := viper.GetUint64("seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	t, err := Random(shape, density, rng, util.TensorOptions(config, nil))
	if err != nil {
		return err
	}
	defer t.Close()

	util.Logger.Infof("generated tensor with seed %d: shape %v, %d entries", seed, t.Shape(), t.Len())
	return util.WriteTensor(viper.GetString("output"), t)
}

// Random creates a tensor of the given shape with int(volume * density) randomly placed entries
func Random(shape []uint32, density float64, rng *rand.Rand, opts *tensor.Options) (*tensor.Tensor, error) {
	nnz := float64(tensor.VolumeOf(shape)) * density
	if nnz > math.MaxInt32 {
		return nil, fmt.Errorf("too many entries: %.0f", nnz)
	}

	o := *opts
	o.Capacity = int(nnz)
	t, err := tensor.New(shape, &o)
	if err != nil {
		return nil, err
	}

	coords := make([]uint32, len(shape))
	for range int(nnz) {
		for mode, extent := range shape {
			coords[mode] = rng.Uint32N(extent)
		}
		if err := t.Set(coords, storage.Value(rng.IntN(50)+1)); err != nil {
			_ = t.Close()
			return nil, err
		}
	}
	return t, nil
}
