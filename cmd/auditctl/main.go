// cmd/auditctl — operational CLI for the audit ledger service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auditmesh/auditmesh/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var serverURL string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "auditctl",
	Short: "Audit ledger CLI",
	Long: `auditctl is the command-line interface for the auditmesh service.

It verifies chain integrity, inspects blocks, and records events against
a running auditd instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetEnvPrefix("auditmesh")
		viper.AutomaticEnv()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "auditd base URL (env AUDITMESH_SERVER)")
	rootCmd.AddCommand(versionCmd, verifyCmd, statusCmd, blockCmd, recordCmd)

	recordCmd.Flags().String("actor-type", "user", "actor kind: user | system | scheduler")
	recordCmd.Flags().String("actor-id", "", "optional actor identifier")
	recordCmd.Flags().String("entity-type", "", "subject kind, e.g. Task")
	recordCmd.Flags().String("entity-id", "", "subject identifier")
	recordCmd.Flags().String("action", "", "action label, e.g. ASSIGN")
	recordCmd.Flags().String("before", "", "JSON state before the action")
	recordCmd.Flags().String("after", "", "JSON state after the action")
	recordCmd.Flags().String("meta", "", "JSON metadata (request id etc.)")
	_ = recordCmd.MarkFlagRequired("entity-type")
	_ = recordCmd.MarkFlagRequired("entity-id")
	_ = recordCmd.MarkFlagRequired("action")
}

func newClient() *client.Client {
	return client.New(serverURL, client.WithTimeout(30*time.Second))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the auditctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("auditctl", version)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the whole audit chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := newClient().Verify(context.Background())
		if err != nil {
			return err
		}
		if !report.OK {
			fmt.Fprintf(os.Stderr, "FAIL: %s\n", report.Where)
			os.Exit(1)
		}
		fmt.Printf("OK: %d blocks verified\n", report.Blocks)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger counts and the chain tip",
	RunE: func(cmd *cobra.Command, args []string) error {
		ov, err := newClient().Overview(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "events\t%d\n", ov.Events)
		fmt.Fprintf(w, "unsealed\t%d\n", ov.Unsealed)
		fmt.Fprintf(w, "blocks\t%d\n", ov.Blocks)
		tip := "(no blocks yet)"
		if ov.TipHash != nil {
			tip = *ov.TipHash
		}
		fmt.Fprintf(w, "tip\t%s\n", tip)
		return w.Flush()
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <index>",
	Short: "Show one block and its leaves",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var index int64
		if _, err := fmt.Sscanf(args[0], "%d", &index); err != nil {
			return fmt.Errorf("index must be an integer: %w", err)
		}

		detail, err := newClient().GetBlock(context.Background(), index)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(detail, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one audit event",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := client.RecordEventRequest{}
		req.ActorType, _ = flags.GetString("actor-type")
		req.EntityType, _ = flags.GetString("entity-type")
		req.EntityID, _ = flags.GetString("entity-id")
		req.Action, _ = flags.GetString("action")

		if actorID, _ := flags.GetString("actor-id"); actorID != "" {
			req.ActorID = &actorID
		}
		for _, p := range []struct {
			flag string
			dst  *json.RawMessage
		}{
			{"before", &req.Before},
			{"after", &req.After},
			{"meta", &req.Meta},
		} {
			raw, _ := flags.GetString(p.flag)
			if raw == "" {
				continue
			}
			if !json.Valid([]byte(raw)) {
				return fmt.Errorf("--%s must be valid JSON", p.flag)
			}
			*p.dst = json.RawMessage(raw)
		}

		event, err := newClient().RecordEvent(context.Background(), req)
		if err != nil {
			return err
		}
		fmt.Printf("recorded event %d hash=%s\n", event.ID, event.EventHash)
		return nil
	},
}
