package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTicketsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tickets",
		Short: "Inspect cached Golden Tickets",
	}

	inspect := &cobra.Command{
		Use:   "inspect [domain]",
		Short: "Show the cached ticket for a domain, or list all cached domains if omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					domains, err := a.tickets.GetAllDomains(ctx)
					if err != nil {
						return err
					}
					for _, d := range domains {
						fmt.Println(d)
					}
					fmt.Printf("%d domain(s) with a cached ticket\n", len(domains))
					return nil
				}

				domain := args[0]
				ticket, err := a.tickets.Get(ctx, domain)
				if err != nil {
					return err
				}
				if ticket == nil {
					fmt.Printf("no cached ticket for %s\n", domain)
					return nil
				}
				fmt.Printf("domain:         %s\n", ticket.Domain)
				fmt.Printf("source url:     %s\n", ticket.SourceURL)
				fmt.Printf("harvested at:   %s\n", ticket.HarvestedAt)
				fmt.Printf("ttl seconds:    %d\n", ticket.TTLSeconds)
				fmt.Printf("challenge type: %s\n", ticket.ChallengeType)
				fmt.Printf("cookies:        %d\n", len(ticket.Cookies))
				fmt.Printf("cf clearance:   %t\n", ticket.HasCloudflareClearance())
				return nil
			})
		},
	}

	var domain string
	invalidate := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete the cached ticket for a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.tickets.Delete(ctx, domain); err != nil {
					return err
				}
				fmt.Printf("invalidated ticket for %s\n", domain)
				return nil
			})
		},
	}
	invalidate.Flags().StringVar(&domain, "domain", "", "domain whose ticket to invalidate")
	invalidate.MarkFlagRequired("domain")

	root.AddCommand(inspect, invalidate)
	return root
}
