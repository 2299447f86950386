package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

// ── tx ───────────────────────────────────────────────────────────────────────

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Manage pending transactions",
}

var txContent string

var txSubmitCmd = &cobra.Command{
	Use:   "submit <author>",
	Short: "Submit a transaction to the node's pool",
	Long: `Submit queues a transaction for the next mined block.

Content is a JSON object:

  gridctl tx submit 0xabc --content '{"payment": 42.5, "seller": "0xdef"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var content map[string]any
		if err := json.Unmarshal([]byte(txContent), &content); err != nil {
			return fmt.Errorf("parse --content: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.SubmitTransaction(cmd.Context(), args[0], content); err != nil {
			return fmt.Errorf("submit transaction: %w", err)
		}
		pterm.Success.Printfln("transaction from %s queued", args[0])
		return nil
	},
}

func init() {
	txSubmitCmd.Flags().StringVar(&txContent, "content", "{}", "transaction content as a JSON object")
	txCmd.AddCommand(txSubmitCmd)
}

// ── mine ─────────────────────────────────────────────────────────────────────

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine the pending transactions into a block",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		spinner, _ := pterm.DefaultSpinner.Start("mining...")
		res, err := c.Mine(cmd.Context())
		if err != nil {
			if spinner != nil {
				spinner.Fail(err.Error())
			}
			return err
		}
		if spinner != nil {
			if res.Mined {
				spinner.Success(fmt.Sprintf("block %d mined", res.NewIndex))
			} else {
				spinner.Warning(res.Message)
			}
		}
		if outputJSON {
			return printJSON(res)
		}
		return nil
	},
}

// ── chain ────────────────────────────────────────────────────────────────────

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Show the node's chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		snap, err := c.Chain(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(snap)
		}

		data := pterm.TableData{{"INDEX", "TXS", "NONCE", "TIMESTAMP", "HASH", "PREVIOUS"}}
		for _, b := range snap.Chain {
			data = append(data, []string{
				strconv.Itoa(b.Index),
				strconv.Itoa(len(b.Transactions)),
				strconv.FormatUint(b.Nonce, 10),
				formatTimestamp(b.Timestamp),
				short(b.Hash),
				short(b.PreviousHash),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		pterm.Info.Printfln("length %d, %d peers", snap.Length, len(snap.Peers))
		return nil
	},
}

// ── pending ──────────────────────────────────────────────────────────────────

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List transactions waiting to be mined",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		txs, err := c.Pending(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(txs)
		}
		if len(txs) == 0 {
			pterm.Info.Println("pool is empty")
			return nil
		}
		return renderTransactions(txs)
	},
}

func renderTransactions(txs []chain.Transaction) error {
	data := pterm.TableData{{"AUTHOR", "TIMESTAMP", "CONTENT"}}
	for _, tx := range txs {
		content, _ := json.Marshal(tx.Content)
		data = append(data, []string{tx.Author, formatTimestamp(tx.Timestamp), string(content)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the node to re-validate its own chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Verify(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(res)
		}
		if !res.Valid {
			pterm.Error.Printfln("chain invalid: %s", res.Error)
			return fmt.Errorf("chain failed verification")
		}
		pterm.Success.Printfln("chain valid (%d blocks)", res.Length)
		return nil
	},
}

// ── consensus ────────────────────────────────────────────────────────────────

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Run the longest-chain rule against the stored peer snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Consensus(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(res)
		}
		if res.Replaced {
			pterm.Success.Printfln("chain replaced, new length %d", res.Length)
		} else {
			pterm.Info.Printfln("local chain kept, length %d", res.Length)
		}
		return nil
	},
}

func formatTimestamp(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339)
}

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "…"
}

// withTimeout is used by commands that run outside a single request.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
