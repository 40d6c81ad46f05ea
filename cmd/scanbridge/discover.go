package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barnettlynn/scanbridge/pkg/discovery"
	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find an appliance on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignalCancel(cmd.Context())
			defer stop()

			ip, err := targetIP()
			if err != nil {
				return err
			}

			token, err := scanproto.NewToken()
			if err != nil {
				return err
			}
			svc := discovery.NewService(token)

			descr, err := svc.FindAppliance(ctx, ip, flagTimeout)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}

			fmt.Printf("name:         %s\n", descr.Name)
			fmt.Printf("serial:       %s\n", descr.Serial)
			fmt.Printf("ip:           %s\n", descr.IP)
			fmt.Printf("mac:          %s\n", descr.MAC)
			fmt.Printf("data port:    %d\n", descr.DataPort)
			fmt.Printf("control port: %d\n", descr.ControlPort)
			fmt.Printf("paired:       %t\n", descr.Paired)
			if descr.ReservingIP != nil {
				fmt.Printf("reserved by:  %s\n", descr.ReservingIP)
			}
			return nil
		},
	}
}
