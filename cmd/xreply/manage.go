package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/xreply/internal/candidate"
	"github.com/kalambet/xreply/internal/config"
	"github.com/kalambet/xreply/internal/reply"
	"github.com/kalambet/xreply/internal/state"
	"github.com/kalambet/xreply/internal/storage"
)

func modeFlag(cmd *cobra.Command) (config.Mode, error) {
	s, _ := cmd.Flags().GetString("mode")
	return config.ParseMode(s)
}

func stateStore(cmd *cobra.Command) (*state.Store, error) {
	mode, err := modeFlag(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	retention := cfg.Thread.Retention
	if mode == config.ModeWatchList {
		retention = cfg.WatchList.Retention
	}
	return state.NewStore(cfg.StateFile(mode), retention), nil
}

// --- state ---

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or edit the handled-candidate history",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := stateStore(cmd)
		if err != nil {
			return err
		}
		st := store.Load()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		w := cmd.OutOrStdout()
		lastRun := "never"
		if st.LastRunAt != nil {
			lastRun = st.LastRunAt.Local().Format(time.DateTime)
		}
		printStatus(w, "File", "%s", store.Path())
		printStatus(w, "Last run", "%s", lastRun)
		printStatus(w, "Handled", "%d", len(st.HandledIDs))
		printStatus(w, "Replies posted", "%d", st.Stats.Total)
		printStatus(w, "Skipped", "%d", st.Stats.Skipped)
		return nil
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if confirm, _ := cmd.Flags().GetBool("confirm"); !confirm {
			printWarning(cmd.ErrOrStderr(), "This forgets every handled candidate. Use --confirm to proceed.")
			return nil
		}
		store, err := stateStore(cmd)
		if err != nil {
			return err
		}
		if err := store.Reset(); err != nil {
			return err
		}
		printSuccess(cmd.ErrOrStderr(), "State reset")
		return nil
	},
}

var stateForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Remove one id so the next run reconsiders it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := stateStore(cmd)
		if err != nil {
			return err
		}
		st := store.Load()
		if !st.Forget(args[0]) {
			printWarning(cmd.ErrOrStderr(), "%s is not in the handled set", args[0])
			return nil
		}
		if err := store.Save(st); err != nil {
			return err
		}
		printSuccess(cmd.ErrOrStderr(), "Forgot %s", args[0])
		return nil
	},
}

func init() {
	stateCmd.PersistentFlags().String("mode", string(config.ModeThread), "thread or watchlist")
	stateShowCmd.Flags().Bool("json", false, "print the raw state file")
	stateResetCmd.Flags().Bool("confirm", false, "confirm the reset")
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
	stateCmd.AddCommand(stateForgetCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recent runs, or the decisions of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		journal, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening run journal: %w", err)
		}
		defer journal.Close()

		w := cmd.OutOrStdout()
		if len(args) == 1 {
			return printDecisions(cmd, journal, args[0])
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := journal.RecentRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			kind := "live"
			if r.DryRun {
				kind = "dry"
			}
			fmt.Fprintf(w, "%s  %s  %-9s %-4s posted=%d skipped=%d failed=%d\n",
				cyan.Sprint(r.ID[:8]),
				r.StartedAt.Local().Format(time.DateTime),
				r.Mode, kind, r.Posted, r.Skipped, r.Failed,
			)
			if r.Error != "" {
				fmt.Fprintf(w, "  %s\n", red.Sprint(r.Error))
			}
		}
		return nil
	},
}

func printDecisions(cmd *cobra.Command, journal *storage.Store, id string) error {
	run, err := journal.GetRun(id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no run with id %s", id)
	}
	if err != nil {
		return err
	}
	decisions, err := journal.Decisions(run.ID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s (%s)\n", bold.Sprint("Run"), run.ID, run.Mode)
	for _, d := range decisions {
		fmt.Fprintf(w, "\n%s @%s: %s\n", outcomeLabel(d.Outcome), d.Author, candidate.Preview(d.CandidateText, 80))
		switch {
		case d.ReplyText != "":
			fmt.Fprintf(w, "  → %s\n", d.ReplyText)
		case d.Reason != "":
			fmt.Fprintf(w, "  (%s)\n", d.Reason)
		}
	}
	return nil
}

func outcomeLabel(outcome string) string {
	label := fmt.Sprintf("[%s]", outcome)
	switch outcome {
	case storage.OutcomePosted:
		return green.Sprint(label)
	case storage.OutcomeFailed:
		return red.Sprint(label)
	case storage.OutcomeSkipped:
		return yellow.Sprint(label)
	default:
		return cyan.Sprint(label)
	}
}

func init() {
	historyCmd.Flags().Int("limit", 10, "maximum number of runs to list")
}

// --- voice ---

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Inspect voice specs",
}

var voiceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the instructions a voice spec renders to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		mode, err := modeFlag(cmd)
		if err != nil {
			return err
		}

		var voice reply.VoiceSpec
		if preset, _ := cmd.Flags().GetString("preset"); preset != "" {
			voice, err = reply.Preset(preset)
		} else {
			voice, err = loadVoice(cfg, mode)
		}
		if err != nil {
			return err
		}

		handle := cfg.Account.Handle
		if handle == "" {
			handle = "you"
		}
		fmt.Fprintln(cmd.OutOrStdout(), voice.Render(handle))
		return nil
	},
}

var voiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in presets",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range reply.PresetNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	voiceShowCmd.Flags().String("mode", string(config.ModeThread), "thread or watchlist")
	voiceShowCmd.Flags().String("preset", "", "show a built-in preset instead of the configured voice")
	voiceCmd.AddCommand(voiceShowCmd)
	voiceCmd.AddCommand(voiceListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", bold.Sprint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess(cmd.ErrOrStderr(), "Set %s = %s", key, value)
		return nil
	},
}

var configSecretCmd = &cobra.Command{
	Use:   "secret <account> <value>",
	Short: "Store an API key in the secrets file",
	Long: "Store an API key in the secrets file.\n\nAccounts: " +
		strings.Join(config.SecretAccounts(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, value := args[0], args[1]
		if !slices.Contains(config.SecretAccounts(), account) {
			return fmt.Errorf("unknown secret %q: want one of %s", account, strings.Join(config.SecretAccounts(), ", "))
		}
		if err := config.SetSecret(account, value); err != nil {
			return err
		}
		printSuccess(cmd.ErrOrStderr(), "Stored %s", account)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSecretCmd)
}
