// Package cli provides the command-line interface for tailnym.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tailnym/internal/appconfig"
	"tailnym/internal/doctor"
	"tailnym/internal/history"
	"tailnym/internal/mesh"
	"tailnym/internal/model"
	"tailnym/internal/probe"
	"tailnym/internal/reconcile"
	"tailnym/internal/sshclient"
	"tailnym/internal/store"
	"tailnym/internal/ui"
	"tailnym/internal/util"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

const licenseText = "MIT License. This tool wraps the system ssh and tailscale binaries."

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tailnym",
		Short:         "Pseudonym-based SSH access across a tailnet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPicker(cmd.Context())
		},
	}

	root.AddCommand(
		newAddCmd(),
		newRemoveCmd(),
		newRefreshCmd(),
		newListCmd(),
		newGetCmd(),
		newRunCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

func runPicker(ctx context.Context) error {
	s, err := store.Open()
	if err != nil {
		return err
	}
	table, err := s.Load()
	if err != nil {
		return err
	}
	lastUsed, err := history.LastUsed()
	if err != nil {
		slog.Warn("failed to load history", "error", err)
	}
	choice, ok, err := ui.Run(table, lastUsed)
	if err != nil || !ok {
		return err
	}
	return connect(ctx, choice, table[choice], "")
}

func newAddCmd() *cobra.Command {
	var (
		ip       string
		username string
		port     int
		yes      bool
	)
	cmd := &cobra.Command{
		Use:   "add <pseudonym>",
		Short: "Add or overwrite a pseudonym",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pseudonym := strings.TrimSpace(args[0])
			if pseudonym == "" {
				return fmt.Errorf("pseudonym cannot be empty")
			}
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.DefaultPort
			}
			if err := util.ValidatePort(port); err != nil {
				return err
			}
			s, err := store.Open()
			if err != nil {
				return err
			}
			table, err := s.Load()
			if err != nil {
				return err
			}
			if username == "" {
				p := probe.New(cfg.Probe.Usernames, cfg.ProbeTimeout())
				username, err = p.DetectUsername(cmd.Context(), ip, port)
				if err != nil {
					if ctxErr := cmd.Context().Err(); ctxErr != nil {
						return ctxErr
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "notice: %v, using %q\n", err, username)
				}
			}
			entry := model.Entry{Username: username, IP: ip, Port: port}
			if existing, exists := table[pseudonym]; exists && !yes {
				prompt := fmt.Sprintf("pseudonym %s already maps to %s:%d, overwrite with %s:%d?",
					pseudonym, existing.IP, existing.Port, entry.IP, entry.Port)
				if !confirmPrompt(cmd.OutOrStdout(), bufio.NewReader(cmd.InOrStdin()), prompt) {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			table[pseudonym] = entry
			if err := s.Save(table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s -> %s:%d\n", pseudonym, entry.Target(), entry.Port)
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "host address (IP or hostname)")
	cmd.Flags().StringVar(&username, "username", "", "login username (autodetected when omitted)")
	cmd.Flags().IntVar(&port, "port", 0, "ssh port (default from config)")
	cmd.Flags().BoolVar(&yes, "yes", false, "overwrite an existing pseudonym without asking")
	_ = cmd.MarkFlagRequired("ip")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <pseudonym>",
		Short: "Remove a pseudonym",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open()
			if err != nil {
				return err
			}
			table, err := s.Load()
			if err != nil {
				return err
			}
			if _, ok := table[args[0]]; !ok {
				return model.NotFound(args[0])
			}
			delete(table, args[0])
			if err := s.Save(table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var (
		file  string
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Register server-tagged tailnet peers as pseudonyms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			s, err := store.Open()
			if err != nil {
				return err
			}
			table, err := s.Load()
			if err != nil {
				return err
			}

			var sn mesh.Snapshot
			if file != "" {
				sn, err = mesh.FromFile(file)
			} else {
				sn, err = mesh.FromCommand(cmd.Context(), cfg.Refresh.StatusCommand)
			}
			if err != nil {
				return err
			}

			p := probe.New(cfg.Probe.Usernames, cfg.ProbeTimeout())
			// One shared reader across prompts: a fresh bufio.Reader per
			// prompt could swallow input buffered past the first newline.
			in := bufio.NewReader(cmd.InOrStdin())
			confirm := func(pseudonym string, existing, proposed model.Entry) bool {
				prompt := fmt.Sprintf("pseudonym %s already maps to %s:%d, overwrite with %s:%d?",
					pseudonym, existing.IP, existing.Port, proposed.IP, proposed.Port)
				return confirmPrompt(cmd.OutOrStdout(), in, prompt)
			}
			r := reconcile.New(p.DetectUsername, confirm, cfg.Refresh.Workers, cfg.DefaultPort)
			res, err := r.Refresh(cmd.Context(), sn, table, quiet)
			if err != nil {
				// Interrupted mid-refresh: drop the partial table.
				return err
			}

			if err := s.Save(table); err != nil {
				return err
			}
			for _, n := range res.Notices {
				fmt.Fprintf(cmd.ErrOrStderr(), "notice: %s\n", n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refresh complete: %d added, %d updated, %d skipped\n",
				len(res.Added), len(res.Updated), len(res.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read the peer snapshot from a saved status JSON file")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "overwrite existing pseudonyms without asking")
	return cmd
}

func newListCmd() *cobra.Command {
	var recent bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all pseudonyms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open()
			if err != nil {
				return err
			}
			table, err := s.Load()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(table))
			for name := range table {
				names = append(names, name)
			}
			sort.Strings(names)
			lastUsed := map[string]int64{}
			if lu, err := history.LastUsed(); err == nil {
				lastUsed = lu
			}
			if recent {
				names = history.SortRecent(names, lastUsed)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-24s %-16s %-24s %-8s %s\n", "PSEUDONYM", "USERNAME", "IP", "PORT", "LAST USED")
			for _, name := range names {
				e := table[name]
				fmt.Fprintf(out, "%-24s %-16s %-24s %-8d %s\n",
					name, util.EmptyDash(e.Username), e.IP, e.Port, formatLastUsed(lastUsed[name]))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&recent, "recent", false, "sort by most recently connected")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <pseudonym>...",
		Short: "Show the entries for the given pseudonyms",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pseudonyms provided")
				return nil
			}
			s, err := store.Open()
			if err != nil {
				return err
			}
			table, err := s.Load()
			if err != nil {
				return err
			}
			var missing []string
			for _, name := range args {
				e, ok := table[name]
				if !ok {
					missing = append(missing, name)
					fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", model.NotFound(name))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s:%d\n", name, e.Target(), e.Port)
			}
			if len(missing) == len(args) {
				return model.NotFound(strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var tmuxSession string
	cmd := &cobra.Command{
		Use:   "run <pseudonym>",
		Short: "Open an interactive SSH session to a pseudonym",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open()
			if err != nil {
				return err
			}
			table, err := s.Load()
			if err != nil {
				return err
			}
			entry, ok := table[args[0]]
			if !ok {
				return model.NotFound(args[0])
			}
			return connect(cmd.Context(), args[0], entry, tmuxSession)
		},
	}
	cmd.Flags().StringVar(&tmuxSession, "tmux", "", "attach to (or create) this tmux session on the remote")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the local tailnym setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (%s): %s\n  -> %s\n",
					strings.ToUpper(string(issue.Severity)), issue.Check, issue.Target, issue.Message, issue.Recommendation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and license information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "tailnym %s\n%s\n", Version, licenseText)
			return nil
		},
	}
}

func connect(ctx context.Context, pseudonym string, entry model.Entry, tmuxSession string) error {
	if err := sshclient.EnsureSSHBinary(); err != nil {
		return err
	}
	if err := sshclient.New().RunInteractive(ctx, entry, tmuxSession); err != nil {
		return err
	}
	if err := history.Touch(pseudonym); err != nil {
		slog.Warn("failed to record history", "pseudonym", pseudonym, "error", err)
	}
	return nil
}

func confirmPrompt(out io.Writer, in *bufio.Reader, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func formatLastUsed(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04")
}
