package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"voice-bridge/internal/tenants"
)

type resolveOutput struct {
	TenantID     string   `json:"tenant_id"`
	BusinessName string   `json:"business_name"`
	Fallback     bool     `json:"fallback"`
	Voice        string   `json:"voice,omitempty"`
	Model        string   `json:"model,omitempty"`
	Timezone     string   `json:"timezone"`
	Greeting     string   `json:"greeting"`
	CustomTools  []string `json:"custom_tools"`
	Instructions string   `json:"instructions,omitempty"`
}

func newTenantCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Inspect tenant voice configuration",
	}

	var asJSON, withInstructions bool
	var tenantID string
	resolve := &cobra.Command{
		Use:   "resolve <called-number>",
		Short: "Show which configuration a call to this number would get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, release, err := a.tenantStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			cfg := tenants.NewResolver(st).Resolve(cmd.Context(), tenants.Lookup{TenantID: tenantID, CalledNumber: args[0]})
			out := resolveOutput{
				TenantID:     cfg.TenantID,
				BusinessName: cfg.BusinessName,
				Fallback:     cfg.Fallback,
				Voice:        cfg.VoiceID,
				Model:        cfg.Model,
				Timezone:     cfg.Location().String(),
				Greeting:     tenants.Greeting(cfg),
				CustomTools:  []string{},
			}
			for _, t := range cfg.CustomTools {
				out.CustomTools = append(out.CustomTools, t.Name)
			}
			if withInstructions {
				out.Instructions = tenants.BuildInstructions(cfg, "")
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintf(w, "tenant: %s (%s)\n", out.TenantID, out.BusinessName)
			fmt.Fprintf(w, "fallback: %t\n", out.Fallback)
			fmt.Fprintf(w, "voice: %s\nmodel: %s\ntimezone: %s\n", orDefault(out.Voice), orDefault(out.Model), out.Timezone)
			fmt.Fprintf(w, "greeting: %s\n", out.Greeting)
			fmt.Fprintf(w, "custom tools: %d\n", len(out.CustomTools))
			if withInstructions {
				fmt.Fprintf(w, "\n%s\n", out.Instructions)
			}
			return nil
		},
	}
	resolve.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	resolve.Flags().BoolVar(&withInstructions, "instructions", false, "include the model instructions")
	resolve.Flags().StringVar(&tenantID, "tenant", "", "explicit tenant id (as carried by outbound calls)")
	cmd.AddCommand(resolve)
	return cmd
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
