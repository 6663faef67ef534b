// main.go --  This file is part of goCIDER project.
// Mirzaeva Irina, 2023
//
//	goCIDER is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//	See the GNU General Public License for more details.
//
//	You should have received a copy of the GNU General Public License
//	along with this program.  If not, see http://www.gnu.org/licenses/
//
// ------------------------------------------------

// Command gocider evaluates the PAW atomic corrections of nonlocal CIDER
// features for a set of model atoms.
//
// Usage:
//
//	gocider run input.inp
//	gocider check input.inp
//	gocider config
//
// Output goes to input.out next to the input file.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"example.com/gocider/paw"
)

var (
	configPath string
	traceFile  string
	verbose    bool
	ntrial     int
	fdStep     float64
	seed       uint64
)

var rootCmd = &cobra.Command{
	Use:   "gocider",
	Short: "PAW atomic corrections for nonlocal CIDER features",
}

var runCmd = &cobra.Command{
	Use:   "run <input>",
	Short: "Compute features, energy and potential for the atoms of an input file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJob(cmd.Context(), args[0], runJob)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <input>",
	Short: "Compare the returned potential with finite differences of the energy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJob(cmd.Context(), args[0], func(ctx context.Context, j *job) error {
			_, err := checkJob(ctx, j, ntrial, fdStep, seed)
			return err
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := paw.DefaultConfig()
		if configPath != "" {
			var err error
			if cfg, err = paw.LoadConfig(configPath); err != nil {
				return err
			}
		}
		b, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config overriding the defaults")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "write stage spans to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	checkCmd.Flags().IntVar(&ntrial, "trials", 4, "random directions per atom")
	checkCmd.Flags().Float64Var(&fdStep, "step", 1e-5, "finite difference step")
	checkCmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	rootCmd.AddCommand(runCmd, checkCmd, configCmd)
}

// withJob sets up output, tracing and the kernel for one input file.
func withJob(ctx context.Context, inpFname string, fn func(context.Context, *job) error) (err error) {
	outFname := outputName(inpFname)
	fmt.Println("Output file: ", outFname)
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	out, err := initLog(outFname, level)
	if err != nil {
		return err
	}
	defer out.Close()

	appInfo(uuid.NewString())
	printOutputDelimiter()

	if traceFile != "" {
		var w io.WriteCloser
		if w, err = os.Create(traceFile); err != nil {
			return fatalf("trace: %w", err)
		}
		defer w.Close()
		var shutdown func(context.Context) error
		if shutdown, err = initTracing(w); err != nil {
			return fatalf("trace: %w", err)
		}
		defer func() {
			if serr := shutdown(context.Background()); serr != nil && err == nil {
				err = serr
			}
		}()
	}

	data, err := ReadFileLines(inpFname)
	if err != nil {
		return fatalf("reading input: %w", err)
	}
	OutputLogger.Println("Input file " + inpFname + ":")
	for _, line := range data {
		OutputLogger.Println("    " + line)
	}
	printOutputDelimiter()
	inp, err := processInput(data)
	if err != nil {
		return fatalf("%w", err)
	}
	cfg, err := resolveConfig(inp, configPath)
	if err != nil {
		return fatalf("%w", err)
	}
	j, err := newJob(inp, cfg)
	if err != nil {
		return fatalf("%w", err)
	}
	OutputLogger.Println(describe(j))
	if err := fn(ctx, j); err != nil {
		return fatalf("%w", err)
	}
	if verbose {
		MyMemDebug()
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
