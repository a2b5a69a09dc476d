package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-bricks-dbcore/database"
)

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect to the group and report how long it took",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			conn, err := s.connection(cmd.Context())
			if err != nil {
				return err
			}
			if err := conn.Initialize(cmd.Context()); err != nil {
				return err
			}

			cfg := conn.Config()
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s (%s) in %s\n", group, cfg.Driver, conn.ConnectDuration())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version of the group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			conn, err := s.connection(cmd.Context())
			if err != nil {
				return err
			}
			v, err := conn.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func queryCmd() *cobra.Command {
	var (
		pretend bool
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "query <sql> [binds...]",
		Short: "Run a statement and print its rows",
		Long:  "Run a statement with positional binds. Read statements print a table, write statements the affected rows.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			conn, err := s.connection(cmd.Context())
			if err != nil {
				return err
			}
			conn.Pretend(pretend)

			binds := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				binds = append(binds, a)
			}
			res, err := conn.QueryWith(cmd.Context(), args[0], binds, !raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if pretend {
				fmt.Fprintln(out, res.Query().DebugSQL())
				return nil
			}
			if res.IsWrite() {
				fmt.Fprintf(out, "Affected rows: %d\n", res.RowsAffected())
				if id := res.LastInsertID(); id > 0 {
					fmt.Fprintf(out, "Insert ID: %d\n", id)
				}
				return nil
			}
			return printRows(cmd, res)
		},
	}

	cmd.Flags().BoolVar(&pretend, "pretend", false, "Print the compiled statement without sending it")
	cmd.Flags().BoolVar(&raw, "raw", false, "Splice binds into the statement text instead of sending them separately")

	return cmd
}

func printRows(cmd *cobra.Command, res *database.Result) error {
	rows, err := res.ResultRows()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(res.Columns(), "\t")))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "(%d rows)\n", len(rows))
	return nil
}

func groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the configured database groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			names := s.cfg.GroupNames()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No database groups configured")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDRIVER\tTARGET\tPREFIX")
			for _, name := range names {
				g, _ := s.cfg.Group(name)
				target := g.Database
				if g.Host != "" {
					target = fmt.Sprintf("%s:%d/%s", g.Host, g.Port, g.Database)
				}
				if g.DSN != "" {
					target = "(dsn)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, g.Driver, target, g.Prefix)
			}
			return w.Flush()
		},
	}
}

func driversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List the registered database drivers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range database.SupportedDrivers() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
