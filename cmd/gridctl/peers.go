package main

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/gridledger/pkg/client"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the node's peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		list, err := c.Peers(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			pterm.Info.Println("no peers registered")
			return nil
		}
		return renderPeers(list)
	},
}

var peersRegisterCmd = &cobra.Command{
	Use:   "register <address> [address] ...",
	Short: "Register one or more peers with the node",
	Long: `Register adds peer addresses to the node's registry. HTTP peers are
polled for their chains; other addresses (such as wallet addresses) are
recorded only.

  gridctl peers register http://10.0.0.2:8000 10.0.0.3:8000`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var snap *client.Snapshot
		for _, addr := range args {
			snap, err = c.RegisterNode(cmd.Context(), addr)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("registered %s", addr)
		}
		if outputJSON {
			return printJSON(snap)
		}
		pterm.Info.Printfln("node now knows %d peers", len(snap.Peers))
		return nil
	},
}

func init() {
	peersCmd.AddCommand(peersRegisterCmd)
}

func renderPeers(list []client.Peer) error {
	data := pterm.TableData{{"ADDRESS", "STATUS", "CHAIN", "LAST SEEN"}}
	for _, p := range list {
		lastSeen := "-"
		if !p.LastSeenAt.IsZero() {
			lastSeen = p.LastSeenAt.Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{p.Address, colorStatus(p.Status), strconv.Itoa(p.ChainLength), lastSeen})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func colorStatus(status string) string {
	switch status {
	case "healthy":
		return pterm.LightGreen(status)
	case "degraded":
		return pterm.LightRed(status)
	default:
		return pterm.Gray(status)
	}
}
