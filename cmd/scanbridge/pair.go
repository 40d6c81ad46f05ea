package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barnettlynn/scanbridge/pkg/scanner"
)

func newPairCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Establish a new pairing with an appliance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password != "" && flagIdentity != "" {
				return fmt.Errorf("--password and --identity are mutually exclusive")
			}
			if password == "" && flagIdentity == "" {
				return fmt.Errorf("one of --password or --identity is required")
			}

			ctx, stop := withSignalCancel(cmd.Context())
			defer stop()

			ip, err := targetIP()
			if err != nil {
				return err
			}

			s, identity, err := scanner.Pair(ctx, ip, password, flagIdentity, flagTimeout)
			if err != nil {
				return fmt.Errorf("pair: %w", err)
			}
			defer s.Disconnect(ctx)

			fmt.Printf("paired with %s (%s)\n", s.Descriptor().Name, s.Descriptor().IP)
			fmt.Printf("identity: %s\n", identity)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "shared-secret password to derive the pairing identity from")
	return cmd
}
