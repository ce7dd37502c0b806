package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loomhdl/loom/pkg/dump"
	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/sim"
)

var version = "0.1.0"

var (
	dataFile  string
	schedFile string
	raceCheck bool
	maxCycles uint64
	dumpState bool
	printProg bool
	verbose   bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom-sim [program.json]",
		Short: "loom-sim interprets flattened hardware programs cycle by cycle",
		Long: `loom-sim executes a flattened hardware program directly, without
generating hardware: it settles the combinational network each cycle,
commits register, memory and pipeline state at the clock edge, and
follows a schedule of group activations supplied on the command line.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			v := viper.New()
			v.SetEnvPrefix("loom")
			v.AutomaticEnv()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return simulate(args[0], v, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVar(&dataFile, "data", "", "Memory data dump to preload")
	rootCmd.Flags().StringVar(&schedFile, "schedule", "", "YAML schedule of group activations")
	rootCmd.Flags().BoolVar(&raceCheck, "race", false, "Detect hardware data races")
	rootCmd.Flags().Uint64Var(&maxCycles, "max-cycles", 10000, "Total cycle budget for the run")
	rootCmd.Flags().BoolVar(&dumpState, "dump-state", false, "Print a JSON state snapshot after the run")
	rootCmd.Flags().BoolVar(&printProg, "print-program", false, "Print the program listing before running")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Trace cycles and schedule steps")

	return rootCmd
}

func newLogger(errOut io.Writer, debug bool) log15.Logger {
	log := log15.New("module", "loom-sim")
	lvl := log15.LvlInfo
	if debug {
		lvl = log15.LvlDebug
	}
	log.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(errOut, log15.LogfmtFormat())))
	return log
}

func simulate(path string, v *viper.Viper, out, errOut io.Writer) error {
	log := newLogger(errOut, v.GetBool("verbose"))

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening program")
	}
	prog, err := flat.Load(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(errOut, "loom-sim: %v\n", err)
		return err
	}
	log.Debug("loaded program", "top_level", prog.TopLevel,
		"cells", len(prog.Cells), "groups", len(prog.Groups), "assignments", len(prog.Assigns))

	if v.GetBool("print-program") {
		flat.NewPrinter(out).PrintProgram(prog)
	}

	env, err := sim.New(prog, sim.Options{DetectRaces: v.GetBool("race")})
	if err != nil {
		fmt.Fprintf(errOut, "loom-sim: %v\n", err)
		return err
	}

	if df := v.GetString("data"); df != "" {
		if err := preload(env, df); err != nil {
			fmt.Fprintf(errOut, "loom-sim: %v\n", err)
			return err
		}
		log.Debug("preloaded memories", "file", df)
	}

	sched := &schedule{}
	if sf := v.GetString("schedule"); sf != "" {
		sched, err = loadScheduleFile(sf)
		if err != nil {
			fmt.Fprintf(errOut, "loom-sim: %v\n", err)
			return err
		}
	}

	if err := runSchedule(env, prog, sched, v.GetUint64("max-cycles"), log); err != nil {
		fmt.Fprintln(errOut, sim.FormatError(prog, err))
		return err
	}
	log.Info("run complete", "cycles", env.Clock())

	if v.GetBool("dump-state") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(env.Snapshot()); err != nil {
			return errors.Wrap(err, "encoding state snapshot")
		}
	}
	return nil
}

// preload copies every memory of a data dump into the matching cell.
func preload(env *sim.Environment, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening data dump")
	}
	defer f.Close()
	d, err := dump.Read(f)
	if err != nil {
		return err
	}
	for _, m := range d.Header.Memories {
		vs, err := d.Values(m.Name)
		if err != nil {
			return err
		}
		if err := env.InitMemory(m.Name, vs); err != nil {
			return err
		}
	}
	return nil
}

// runSchedule drives the stepper: each step's groups run in parallel on
// distinct threads until all report done, then a barrier orders the step
// before the next. An empty schedule settles the continuous assignments for
// one cycle.
func runSchedule(env *sim.Environment, prog *flat.Program, sched *schedule, budget uint64, log log15.Logger) error {
	steps := sched.Steps
	if len(steps) == 0 {
		steps = []step{{}}
	}
	for si, st := range steps {
		remaining, err := resolveGroups(prog, st.Groups)
		if err != nil {
			return err
		}
		for {
			if budget == 0 {
				return errors.Errorf("cycle budget exhausted in schedule step %d", si)
			}
			budget--
			done, err := env.Step(remaining)
			if err != nil {
				return err
			}
			log.Debug("cycle", "clock", env.Clock(), "step", si, "running", len(remaining))

			// a finished group drops out so it stops re-driving its cells
			next := remaining[:0]
			for _, a := range remaining {
				if !done[a.Group] {
					next = append(next, a)
				} else {
					log.Debug("group done", "group", prog.Group(a.Group).Name, "clock", env.Clock())
				}
			}
			remaining = next
			if len(remaining) == 0 {
				break
			}
		}
		env.Barrier()
	}
	return nil
}

func resolveGroups(prog *flat.Program, names []string) ([]sim.Active, error) {
	active := make([]sim.Active, 0, len(names))
	for i, name := range names {
		g, ok := prog.FindGroup(name)
		if !ok {
			return nil, errors.Errorf("schedule names unknown group %q", name)
		}
		active = append(active, sim.Active{Group: g, Thread: i})
	}
	return active, nil
}
