package util

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ValentinKolb/sTensor/lib/common"
	"github.com/ValentinKolb/sTensor/lib/storage"
	statsUtil "github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/ValentinKolb/sTensor/lib/tensor"
	"github.com/joho/godotenv"
	"github.com/klauspost/compress/zstd"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Logger is shared by all commands
var Logger = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// zstdMagic starts every zstd frame
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStorageFlags adds the storage and logging flags shared by all commands
func SetupStorageFlags(cmd *cobra.Command) {
	key := "backend"
	cmd.PersistentFlags().String(key, string(storage.ImplBPTree), WrapString("Storage backend of all tensors (bptree, hashtable)"))

	key = "order"
	cmd.PersistentFlags().Int(key, 32, WrapString("Branching factor of the B+ tree, must be even and at least 4"))

	key = "overprovision"
	cmd.PersistentFlags().Float64(key, 2.0, WrapString("Ratio of hash table slots to expected entries, must be greater than 1"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("stensor")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the storage configuration from viper
func GetConfig() (*common.Config, error) {
	impl, err := storage.ParseImplementation(viper.GetString("backend"))
	if err != nil {
		return nil, err
	}

	conf := &common.Config{
		Backend:       impl,
		Order:         viper.GetInt("order"),
		Overprovision: viper.GetFloat64("overprovision"),
		LogLevel:      viper.GetString("log-level"),
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// TensorOptions converts the configuration to tensor options
func TensorOptions(conf *common.Config, counters *statsUtil.Counters) *tensor.Options {
	return &tensor.Options{
		Backend:       conf.Backend,
		Order:         conf.Order,
		Overprovision: conf.Overprovision,
		Counters:      counters,
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupCommand binds the flags of cmd, reads the configuration and initializes the loggers
func SetupCommand(cmd *cobra.Command) (*common.Config, error) {
	// Bind command flags to viper
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}

	conf, err := GetConfig()
	if err != nil {
		return nil, err
	}

	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return nil, err
	}
	Logger.Debugf("configuration: %s", conf)
	return conf, nil
}

// --------------------------------------------------------------------------
// Tensor files
// --------------------------------------------------------------------------

// ReadTensor reads a tensor file. The format is detected from the content:
// binary snapshots start with the snapshot magic, everything else is parsed as
// coordinate list text. Both may be zstd compressed. "-" reads from stdin.
func ReadTensor(path string, opts *tensor.Options) (*tensor.Tensor, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer dec.Close()
		br = bufio.NewReader(dec)
	}

	var (
		t   *tensor.Tensor
		err error
	)
	if head, _ := br.Peek(len(tensor.SnapshotMagic)); string(head) == tensor.SnapshotMagic {
		t, err = tensor.Load(br, opts)
	} else {
		t, err = tensor.ReadCOO(br, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	Logger.Infof("read %s: shape %v, %d entries", path, t.Shape(), t.Len())
	return t, nil
}

// WriteTensor writes t to path. Paths ending in .bin (optionally followed by
// .zst) are written as binary snapshot, everything else as coordinate list text.
// A .zst suffix enables zstd compression. "-" writes to stdout.
func WriteTensor(path string, t *tensor.Tensor) (err error) {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, ferr := os.Create(path)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	name := path
	if strings.HasSuffix(name, ".zst") {
		enc, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return zerr
		}
		defer func() {
			if cerr := enc.Close(); err == nil {
				err = cerr
			}
		}()
		w = enc
		name = strings.TrimSuffix(name, ".zst")
	}

	if strings.HasSuffix(name, ".bin") {
		err = t.Save(w)
	} else {
		err = tensor.WriteCOO(w, t)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	Logger.Infof("wrote %s: shape %v, %d entries", path, t.Shape(), t.Len())
	return nil
}

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
