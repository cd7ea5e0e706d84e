package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sTensor/cmd/algebra"
	"github.com/ValentinKolb/sTensor/cmd/bench"
	"github.com/ValentinKolb/sTensor/cmd/generate"
	"github.com/ValentinKolb/sTensor/cmd/inspect"
	"github.com/ValentinKolb/sTensor/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "stensor",
		Short: "sparse tensor storage and algebra",
		Long: fmt.Sprintf(`sTensor (v%s)

Stores sparse tensors in a B+ tree or an open addressing hash table
and compares both engines on trace and contraction workloads.

All storage flags can also be set via environment variables in the
format STENSOR_<flag> (e.g. STENSOR_BACKEND=hashtable).`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sTensor",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sTensor v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(inspect.TensorCommands)
	RootCmd.AddCommand(algebra.AlgebraCommands)
	RootCmd.AddCommand(generate.GenerateCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStorageFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
