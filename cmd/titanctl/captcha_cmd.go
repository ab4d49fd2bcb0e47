package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/titanscrape/titan/internal/captcha"
	"github.com/titanscrape/titan/internal/model"
)

func newCaptchaCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "captcha",
		Short: "Inspect and operate on CAPTCHA tasks",
	}

	var status, domain string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List CAPTCHA tasks, optionally filtered by status/domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				tasks, err := a.captcha.List(ctx, captcha.ListFilter{
					Status: model.CaptchaStatus(status),
					Domain: domain,
					Limit:  limit,
					Offset: offset,
				})
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Printf("%s\t%-10s\t%-8s\t%s\n", t.UUID, t.Status, t.ChallengeType, t.URL)
				}
				fmt.Printf("%d task(s)\n", len(tasks))
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (pending, assigned, solving, ...)")
	list.Flags().StringVar(&domain, "domain", "", "filter by domain")
	list.Flags().IntVar(&limit, "limit", 0, "max results (0 = store default of 50)")
	list.Flags().IntVar(&offset, "offset", 0, "result offset")

	var operatorID string
	assign := &cobra.Command{
		Use:   "assign <uuid>",
		Short: "Assign a pending task to an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				task, err := a.captcha.Assign(ctx, args[0], operatorID)
				if err != nil {
					return err
				}
				fmt.Printf("assigned %s to %s (status now %s)\n", task.UUID, operatorID, task.Status)
				return nil
			})
		},
	}
	assign.Flags().StringVar(&operatorID, "operator", "", "operator id claiming the task")
	assign.MarkFlagRequired("operator")

	var cookieName, cookieValue, token string
	solve := &cobra.Command{
		Use:   "solve <uuid>",
		Short: "Submit a solved task's credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				result := model.SolverResult{}
				switch {
				case cookieName != "":
					result.Type = model.SolverResultCookie
					result.Cookies = []model.Cookie{{Name: cookieName, Value: cookieValue}}
				case token != "":
					result.Type = model.SolverResultToken
					result.Token = token
				default:
					return fmt.Errorf("captcha solve: one of --cookie-name/--cookie-value or --token is required")
				}
				task, err := a.captcha.SubmitSolution(ctx, args[0], result)
				if err != nil {
					return err
				}
				fmt.Printf("solved %s (status now %s)\n", task.UUID, task.Status)
				return nil
			})
		},
	}
	solve.Flags().StringVar(&cookieName, "cookie-name", "", "solved cookie name")
	solve.Flags().StringVar(&cookieValue, "cookie-value", "", "solved cookie value")
	solve.Flags().StringVar(&token, "token", "", "solved bearer/session token")

	root.AddCommand(list, assign, solve)
	return root
}
