package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/node"
	"github.com/jmerrifield20/gridledger/internal/sim"
)

var (
	simSteps      int
	simAgents     int
	simShare      float64
	simSeed       uint64
	simLocal      bool
	simDifficulty int
	simDeadline   time.Duration
	simVerbose    bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Energy-market simulation on top of a node",
}

var simRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the energy-market simulation",
	Long: `run plays a synthetic energy market: every step each agent publishes
demand, supply and price, a single-sided auction clears the market, and
buyers settle with sellers through ledger transactions mined into a block.

By default it drives the node given by --node. With --local it starts an
in-process node instead:

  gridctl sim run --local --agents 20 --steps 24 --difficulty 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := zap.NewNop()
		if simVerbose {
			var err error
			if logger, err = zap.NewDevelopment(); err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
		}

		var ledger sim.Ledger
		target := nodeURL
		if simLocal {
			n, err := node.New(node.Config{Difficulty: simDifficulty}, logger)
			if err != nil {
				return err
			}
			defer n.Close()
			ledger = sim.NodeLedger{Node: n}
			target = "in-process node"
		} else {
			c, err := newClient()
			if err != nil {
				return err
			}
			ledger = sim.ClientLedger{Client: c}
		}

		runner, err := sim.NewRunner(sim.Config{
			Steps:             simSteps,
			Agents:            simAgents,
			NonGeneratorShare: simShare,
			Seed:              simSeed,
		}, ledger, logger)
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout(cmd.Context(), simDeadline)
		defer cancel()

		pterm.Info.Printfln("simulating %d agents for %d steps against %s", simAgents, simSteps, target)
		report, err := runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("simulation: %w", err)
		}
		if outputJSON {
			return printJSON(report)
		}
		return renderReport(report)
	},
}

func init() {
	simRunCmd.Flags().IntVar(&simSteps, "steps", 10, "market steps to simulate")
	simRunCmd.Flags().IntVar(&simAgents, "agents", 10, "number of agents")
	simRunCmd.Flags().Float64Var(&simShare, "non-generators", 0.3, "fraction of agents without generation")
	simRunCmd.Flags().Uint64Var(&simSeed, "seed", 0, "data seed (0 = random)")
	simRunCmd.Flags().BoolVar(&simLocal, "local", false, "run against an in-process node")
	simRunCmd.Flags().IntVar(&simDifficulty, "difficulty", 2, "proof-of-work difficulty for --local")
	simRunCmd.Flags().DurationVar(&simDeadline, "deadline", 0, "abort the run after this long (0 = no limit)")
	simRunCmd.Flags().BoolVar(&simVerbose, "verbose", false, "log simulation progress")
	simCmd.AddCommand(simRunCmd)
}

func renderReport(r sim.Report) error {
	data := pterm.TableData{{"STEP", "PRICE", "DEMAND", "PAYMENTS", "BLOCK", "TOOK"}}
	for _, s := range r.StepResults {
		block := "-"
		if s.BlockIndex > 0 {
			block = strconv.Itoa(s.BlockIndex)
		}
		data = append(data, []string{
			strconv.Itoa(s.Step),
			strconv.FormatFloat(s.ClearingPrice, 'f', 2, 64),
			strconv.FormatFloat(s.TotalDemand, 'f', 2, 64),
			strconv.Itoa(s.Payments),
			block,
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.Success.Printfln("%d transactions in %d blocks", r.Transactions, r.Blocks)
	pterm.Info.Printfln("step time mean %s, max %s, min %s",
		r.Mean.Round(time.Millisecond), r.Max.Round(time.Millisecond), r.Min.Round(time.Millisecond))
	return nil
}
