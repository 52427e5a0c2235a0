package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

func cmdList(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	logs := fs.Bool("logs", false, "print the audit logs instead of users")
	limit := fs.Int("limit", 50, "newest N rows per log (0 = all)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *logs {
		for _, l := range []types.EventLog{types.UserLog, types.LaserLog} {
			evs, err := e.dir.Events(ctx, l, *limit)
			if err != nil {
				return err
			}
			if err := printEvents(e, l, evs); err != nil {
				return err
			}
		}
		return nil
	}

	users, err := e.dir.List(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CARD\tSECONDARY\tNAME\tADMIN\tEXPIRES\tSTATUS")
	for _, u := range users {
		rec := u
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			u.CardID, u.SecondaryID, u.FullName, u.IsAdmin,
			u.Expiration.Local().Format("2006-01-02 15:04"),
			service.Decide(&rec, now))
	}
	return tw.Flush()
}

func printEvents(e *env, l types.EventLog, evs []types.Event) error {
	fmt.Fprintf(e.out, "== %s ==\n", l)
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tACTION\tCARD\tSECONDARY\tSESSION\tDETAIL")
	for _, ev := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.At.Local().Format(time.DateTime), ev.Kind, ev.CardID,
			ev.SecondaryID, ev.SessionID, ev.Detail)
	}
	return tw.Flush()
}
