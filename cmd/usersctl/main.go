package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onlineshop/internal/app"
	"onlineshop/internal/domain"
)

// opener builds the services lazily so --help works without a database.
type opener func(cmd *cobra.Command) (*app.App, error)

func main() {
	var cfgPath string
	var closeApp func()
	open := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := app.LoadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
		log, cleanup := app.NewLogger(cfg)
		a, err := app.New(cfg, log.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
		if err != nil {
			cleanup()
			return nil, err
		}
		closeApp = func() { a.Close(); cleanup() }
		return a, nil
	}

	root := newRootCmd(open, os.Stdout)
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default $CONFIG_PATH or ./configs/config.local.yaml)")
	err := root.Execute()
	if closeApp != nil {
		closeApp()
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var format string
	root := &cobra.Command{
		Use:           "usersctl",
		Short:         "Manage onlineshop user accounts directly against the database",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("--out must be text or json, got %q", format)
			}
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&format, "out", "text", "output format: text|json")

	p := printer{w: out, format: &format}
	root.AddCommand(
		listCmd(open, p),
		statusCmd(open, p, true),
		statusCmd(open, p, false),
		rolesCmd(open, p),
		tokensCmd(open, p),
	)
	return root
}

type printer struct {
	w      io.Writer
	format *string
}

func (p printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) users(us []domain.User) error {
	if *p.format == "json" {
		return p.json(us)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tEMAIL\tENABLED\tROLES\tCREATED")
	for _, u := range us {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
			u.Username, u.Email, u.Enabled, strings.Join(u.Roles.Strings(), ","), u.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (p printer) line(v any, text string) error {
	if *p.format == "json" {
		return p.json(v)
	}
	_, err := fmt.Fprintln(p.w, text)
	return err
}

func listCmd(open opener, p printer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			us, err := a.Users.FindUserList(ctx(cmd))
			if err != nil {
				return err
			}
			return p.users(us)
		},
	}
}

func statusCmd(open opener, p printer, enable bool) *cobra.Command {
	use, short := "disable <username>", "Disable a user account"
	if enable {
		use, short = "enable <username>", "Enable a user account"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			if enable {
				err = a.Users.EnableUser(ctx(cmd), args[0])
			} else {
				err = a.Users.DisableUser(ctx(cmd), args[0])
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return p.line(map[string]any{"username": args[0], "enabled": enable},
				fmt.Sprintf("%s enabled=%t", args[0], enable))
		},
	}
}

func rolesCmd(open opener, p printer) *cobra.Command {
	return &cobra.Command{
		Use:   "roles <username> <role>...",
		Short: "Replace the roles of a user, e.g. roles johndoe ROLE_USER ROLE_ADMIN",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			roles := make([]domain.Role, 0, len(args)-1)
			for _, r := range args[1:] {
				roles = append(roles, domain.Role(strings.ToUpper(r)))
			}
			u, err := a.Users.ChangeRoles(ctx(cmd), args[0], roles...)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return p.line(u, fmt.Sprintf("%s roles=%s", u.Username, strings.Join(u.Roles.Strings(), ",")))
		},
	}
}

func tokensCmd(open opener, p printer) *cobra.Command {
	tokens := &cobra.Command{
		Use:   "tokens",
		Short: "Password reset token maintenance",
	}
	tokens.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired and used reset tokens older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			n, err := a.Security.PurgeExpiredTokens(ctx(cmd))
			if err != nil {
				return err
			}
			return p.line(map[string]any{"purged": n}, fmt.Sprintf("purged %d token(s)", n))
		},
	})
	return tokens
}

func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}
