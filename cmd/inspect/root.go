package inspect

import (
	"fmt"
	"slices"

	"github.com/ValentinKolb/sTensor/cmd/util"
	"github.com/ValentinKolb/sTensor/lib/common"
	"github.com/ValentinKolb/sTensor/lib/storage"
	statsUtil "github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/ValentinKolb/sTensor/lib/tensor"
	"github.com/spf13/cobra"
)

var (
	config *common.Config

	// TensorCommands represents the tensor command group
	TensorCommands = &cobra.Command{
		Use:               "tensor",
		Short:             "Inspect and convert tensor files",
		PersistentPreRunE: setupTensorCommands,
	}

	infoCmd = &cobra.Command{
		Use:   "info [file]",
		Short: "Prints shape, density and storage statistics of a tensor file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}

	printCmd = &cobra.Command{
		Use:   "print [file]",
		Short: "Prints a tensor file in coordinate list format, ordered by coordinate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := util.ReadTensor(args[0], util.TensorOptions(config, nil))
			if err != nil {
				return err
			}
			defer t.Close()

			// the B+ tree iterates in coordinate order, the hash table does not
			if !slices.Contains(t.Info().SupportedFeatures, storage.FeatureOrderedIteration) {
				ordered, err := tensor.Copy(t, &tensor.Options{Backend: storage.ImplBPTree, Order: config.Order})
				if err != nil {
					return err
				}
				defer ordered.Close()
				t = ordered
			}
			return util.WriteTensor("-", t)
		},
	}

	convertCmd = &cobra.Command{
		Use:   "convert [in] [out]",
		Short: "Converts between the text and binary formats",
		Long: `Converts a tensor file. The input format is detected from the content,
the output format from the file extension: .bin writes a binary snapshot,
everything else the coordinate list text format. A trailing .zst enables
zstd compression (e.g. out.bin.zst). Use - for stdin or stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := util.ReadTensor(args[0], util.TensorOptions(config, nil))
			if err != nil {
				return err
			}
			defer t.Close()
			return util.WriteTensor(args[1], t)
		},
	}
)

func init() {
	// Add subcommands
	TensorCommands.AddCommand(infoCmd)
	TensorCommands.AddCommand(printCmd)
	TensorCommands.AddCommand(convertCmd)
}

// setupTensorCommands reads the storage configuration
func setupTensorCommands(cmd *cobra.Command, _ []string) (err error) {
	config, err = util.SetupCommand(cmd)
	return err
}

// tensorInfo is the JSON document printed by the info command
type tensorInfo struct {
	Path    string             `json:"path"`
	Shape   []uint32           `json:"shape"`
	Rank    int                `json:"rank"`
	Entries int                `json:"entries"`
	Volume  uint64             `json:"volume"`
	Density float64            `json:"density"`
	LoadOps statsUtil.OpCounts `json:"load_ops"`
	Storage storage.Info       `json:"storage"`
}

func runInfo(_ *cobra.Command, args []string) error {
	counters := statsUtil.NewCounters()
	t, err := util.ReadTensor(args[0], util.TensorOptions(config, counters))
	if err != nil {
		return err
	}
	defer t.Close()

	info := tensorInfo{
		Path:    args[0],
		Shape:   t.Shape(),
		Rank:    t.Rank(),
		Entries: t.Len(),
		Volume:  t.Volume(),
		Density: t.Density(),
		LoadOps: counters.Snapshot(),
		Storage: t.Info(),
	}
	if err := util.PrintJSON(info); err != nil {
		return fmt.Errorf("failed to print info: %w", err)
	}
	return nil
}
