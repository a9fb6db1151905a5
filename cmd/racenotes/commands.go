package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/racenotes/internal/app"
	"github.com/kalambet/racenotes/internal/config"
	"github.com/kalambet/racenotes/internal/domain"
)

// --- races ---

func newRacesCmd() *cobra.Command {
	racesCmd := &cobra.Command{
		Use:   "races",
		Short: "Browse the race card",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List races held on a date",
		Long: `List races held on a date, optionally at one venue.

Examples:
  racenotes races list --date 2024-05-12
  racenotes races list --date 2024-05-12 --venue 東京
  racenotes races list --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			venue, _ := cmd.Flags().GetString("venue")
			offline, _ := cmd.Flags().GetBool("offline")

			return withApp(func(a *app.App) error {
				var races []domain.Race
				var err error
				if offline {
					if date == "" {
						date = a.Races.CurrentDate()
					}
					races, err = a.Races.OfflineRaces(cmd.Context(), date, venue)
				} else {
					races, err = a.Races.FetchRaces(cmd.Context(), date, venue)
				}
				if err != nil {
					return err
				}
				printRaces(cmd.OutOrStdout(), races)
				return nil
			})
		},
	}
	listCmd.Flags().String("date", "", "race date, YYYY-MM-DD (default: today)")
	listCmd.Flags().String("venue", "", "venue filter")
	listCmd.Flags().Bool("offline", false, "read the last saved snapshot instead of the gateway")

	showCmd := &cobra.Command{
		Use:   "show <race-id>",
		Short: "Show a race with its runners and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("race id", args[0])
			if err != nil {
				return err
			}
			offline, _ := cmd.Flags().GetBool("offline")

			return withApp(func(a *app.App) error {
				if offline {
					d, err := a.Races.OfflineDetail(cmd.Context(), id)
					if err != nil {
						return err
					}
					printRaceDetail(cmd.OutOrStdout(), &d, nil)
					return nil
				}
				page, err := a.LoadRacePage(cmd.Context(), id)
				if err != nil {
					return err
				}
				printRaceDetail(cmd.OutOrStdout(), page.Detail, page.Annotations)
				return nil
			})
		},
	}
	showCmd.Flags().Bool("offline", false, "read the last saved snapshot instead of the gateway")

	racesCmd.AddCommand(listCmd, showCmd)
	return racesCmd
}

func printRaces(w io.Writer, races []domain.Race) {
	if len(races) == 0 {
		fmt.Fprintln(w, "No races found.")
		return
	}
	for _, r := range races {
		fmt.Fprintf(w, "%s  %s R%-2d %s  %s %dm\n",
			colorize(colorCyan, fmt.Sprintf("%5d", r.ID)),
			r.Venue, r.Number,
			colorize(colorBold, r.Name),
			r.CourseType, r.Distance,
		)
	}
}

func printRaceDetail(w io.Writer, d *domain.RaceDetail, notes []domain.Annotation) {
	r := d.Race
	fmt.Fprintf(w, "%s  %s %s R%d\n", colorize(colorBold, r.Name), r.Date, r.Venue, r.Number)
	fmt.Fprintf(w, "  %s %dm  %s  weather %s  track %s  start %s\n",
		r.CourseType, r.Distance, r.Class, optString(r.Weather), optString(r.TrackCondition), optString(r.StartTime))

	perHorse := make(map[int64]int, len(notes))
	for _, n := range notes {
		perHorse[n.HorseID]++
	}
	for _, h := range d.Horses {
		line := fmt.Sprintf("  %2d %-18s %-10s odds %-6s weight %-6s finish %s",
			h.Number, h.Name, h.Jockey, optFloat(h.Odds), optFloat(h.Weight), optInt(h.ResultOrder))
		if n := perHorse[h.ID]; n > 0 {
			line += colorize(colorYellow, fmt.Sprintf("  [%d notes]", n))
		}
		fmt.Fprintln(w, line)
	}
}

func optString(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func optInt(i *int) string {
	if i == nil {
		return "-"
	}
	return strconv.Itoa(*i)
}

// --- sync ---

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest race data for a date and refresh the race list",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			force, _ := cmd.Flags().GetBool("force")

			return withApp(func(a *app.App) error {
				printStep("Syncing race data...")
				res, err := a.Races.SyncRaceData(cmd.Context(), date, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d races on %s\n",
					res.Status, len(a.Races.Races()), a.Races.CurrentDate())
				if res.Failed() {
					return fmt.Errorf("sync reported an error: %s", res.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("date", "", "race date, YYYY-MM-DD (default: today)")
	cmd.Flags().Bool("force", false, "re-ingest even if the date was already synced")
	return cmd
}

// --- comments ---

func newCommentsCmd() *cobra.Command {
	commentsCmd := &cobra.Command{
		Use:     "comments",
		Aliases: []string{"annotations"},
		Short:   "Manage notes on horses",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			raceID, _ := cmd.Flags().GetInt64("race")
			horseID, _ := cmd.Flags().GetInt64("horse")

			return withApp(func(a *app.App) error {
				notes, err := a.Annotations.Fetch(cmd.Context(), domain.AnnotationFilter{RaceID: raceID, HorseID: horseID})
				if err != nil {
					return err
				}
				printAnnotations(cmd.OutOrStdout(), notes)
				return nil
			})
		},
	}
	listCmd.Flags().Int64("race", 0, "race id filter")
	listCmd.Flags().Int64("horse", 0, "horse id filter")

	addCmd := &cobra.Command{
		Use:   "add <race-id> <horse-id> <text...>",
		Short: "Add a note",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			raceID, err := parseID("race id", args[0])
			if err != nil {
				return err
			}
			horseID, err := parseID("horse id", args[1])
			if err != nil {
				return err
			}
			content := strings.Join(args[2:], " ")

			return withApp(func(a *app.App) error {
				note, err := a.Annotations.Create(cmd.Context(), raceID, horseID, content)
				if err != nil {
					return err
				}
				printSuccess("Added note %d", note.ID)
				return nil
			})
		},
	}

	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note's text or visibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("annotation id", args[0])
			if err != nil {
				return err
			}
			var patch domain.AnnotationPatch
			if cmd.Flags().Changed("content") {
				content, _ := cmd.Flags().GetString("content")
				patch.Content = &content
			}
			if cmd.Flags().Changed("public") {
				public, _ := cmd.Flags().GetBool("public")
				patch.IsPublic = &public
			}
			if patch.Empty() {
				return fmt.Errorf("one of --content or --public is required")
			}

			return withApp(func(a *app.App) error {
				if _, err := a.Annotations.Fetch(cmd.Context(), domain.AnnotationFilter{}); err != nil {
					return err
				}
				note, err := a.Annotations.Update(cmd.Context(), id, patch)
				if err != nil {
					return err
				}
				printSuccess("Updated note %d", note.ID)
				return nil
			})
		},
	}
	editCmd.Flags().String("content", "", "new note text")
	editCmd.Flags().Bool("public", false, "share the note")

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("annotation id", args[0])
			if err != nil {
				return err
			}
			return withApp(func(a *app.App) error {
				if _, err := a.Annotations.Fetch(cmd.Context(), domain.AnnotationFilter{}); err != nil {
					return err
				}
				if err := a.Annotations.Delete(cmd.Context(), id); err != nil {
					return err
				}
				printSuccess("Deleted note %d", id)
				return nil
			})
		},
	}

	commentsCmd.AddCommand(listCmd, addCmd, editCmd, rmCmd)
	return commentsCmd
}

func printAnnotations(w io.Writer, notes []domain.Annotation) {
	if len(notes) == 0 {
		fmt.Fprintln(w, "No notes found.")
		return
	}
	for _, n := range notes {
		vis := ""
		if n.IsPublic {
			vis = colorize(colorGreen, " public")
		}
		fmt.Fprintf(w, "%s  race %d horse %d  %s%s\n  %s\n",
			colorize(colorCyan, fmt.Sprintf("#%d", n.ID)),
			n.RaceID, n.HorseID,
			n.UpdatedAt.Format("2006-01-02 15:04"), vis,
			n.Content,
		)
	}
}

// --- notes ---

func newNotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes <race-id> <horse-id>",
		Short: "Edit a horse's current note with autosave",
		Long: `Edit a horse's current note with autosave.

Each line read from stdin replaces the whole note. Writes go out once
input has been quiet for the autosave delay; end of input saves anything
still pending.

Examples:
  racenotes notes 42 7
  echo "quick start, fades late" | racenotes notes 42 7
  racenotes notes 42 7 --delete`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raceID, err := parseID("race id", args[0])
			if err != nil {
				return err
			}
			horseID, err := parseID("horse id", args[1])
			if err != nil {
				return err
			}
			del, _ := cmd.Flags().GetBool("delete")

			return withApp(func(a *app.App) error {
				ctx := cmd.Context()
				if _, err := a.Annotations.Fetch(ctx, domain.AnnotationFilter{RaceID: raceID}); err != nil {
					return err
				}
				ed := a.NewEditor(ctx, raceID)
				defer ed.Close()

				current := ed.Select(horseID)
				if del {
					return ed.Delete(ctx)
				}
				if current != "" {
					fmt.Fprintln(cmd.OutOrStdout(), current)
				}

				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					if err := ed.Edit(sc.Text()); err != nil {
						return err
					}
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				return ed.Flush(ctx)
			})
		},
	}
	cmd.Flags().Bool("delete", false, "delete the current note instead of editing it")
	return cmd
}

// --- bet ---

func newBetCmd() *cobra.Command {
	betCmd := &cobra.Command{
		Use:   "bet",
		Short: "Record and review betting outcomes",
	}

	types := make([]string, len(domain.BetTypes))
	for i, t := range domain.BetTypes {
		types[i] = string(t)
	}

	addCmd := &cobra.Command{
		Use:   "add <race-id> <bet-type> <numbers> <amount>",
		Short: "Record a bet",
		Long: fmt.Sprintf(`Record a bet.

Bet types: %s

Examples:
  racenotes bet add 42 win 7 500 --won --payout 1850
  racenotes bet add 42 trifecta 3-7-1 100`, strings.Join(types, ", ")),
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			raceID, err := parseID("race id", args[0])
			if err != nil {
				return err
			}
			betType, err := domain.ParseBetType(args[1])
			if err != nil {
				return err
			}
			amount, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[3], err)
			}
			won, _ := cmd.Flags().GetBool("won")
			payout, _ := cmd.Flags().GetInt("payout")

			return withApp(func(a *app.App) error {
				saved, err := a.Betting.Record(cmd.Context(), domain.BettingOutcome{
					RaceID:  raceID,
					BetType: betType,
					Numbers: args[2],
					Amount:  amount,
					IsWon:   won,
					Payout:  payout,
				})
				if err != nil {
					return err
				}
				printBets(cmd.OutOrStdout(), []domain.BettingOutcome{*saved})
				return nil
			})
		},
	}
	addCmd.Flags().Bool("won", false, "the bet won")
	addCmd.Flags().Int("payout", 0, "payout in yen (ignored unless --won)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List bets with a return summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			raceID, _ := cmd.Flags().GetInt64("race")

			return withApp(func(a *app.App) error {
				bets, err := a.Betting.List(cmd.Context(), raceID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printBets(out, bets)
				if len(bets) > 0 {
					s := a.Betting.Summary()
					fmt.Fprintf(out, "\n%s %d bets, %d won, staked ¥%d, returned ¥%d, ROI %s%%, hit rate %s%%\n",
						colorize(colorBold, "Total:"), s.Bets, s.Wins, s.Staked, s.Returned,
						s.ROI.StringFixed(2), s.HitRate.StringFixed(2))
				}
				return nil
			})
		},
	}
	listCmd.Flags().Int64("race", 0, "race id filter")

	betCmd.AddCommand(addCmd, listCmd)
	return betCmd
}

func printBets(w io.Writer, bets []domain.BettingOutcome) {
	if len(bets) == 0 {
		fmt.Fprintln(w, "No bets found.")
		return
	}
	for _, b := range bets {
		result := colorize(colorRed, "lost")
		if b.IsWon {
			result = colorize(colorGreen, fmt.Sprintf("won ¥%d", b.Payout))
		}
		fmt.Fprintf(w, "%s  race %d  %s %s  ¥%d  %s\n",
			colorize(colorCyan, fmt.Sprintf("#%d", b.ID)),
			b.RaceID, b.BetType.Label(), b.Numbers, b.Amount, result)
	}
}

// --- stats ---

func newStatsCmd() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Return statistics from the gateway",
	}

	kpiCmd := &cobra.Command{
		Use:   "kpi",
		Short: "Show overall ROI and hit rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")

			return withApp(func(a *app.App) error {
				k, err := a.Stats.KPI(cmd.Context(), from, to)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ROI       %.1f%%\n", k.ROI)
				fmt.Fprintf(out, "Hit rate  %.1f%%\n", k.WinRate)
				fmt.Fprintf(out, "Bets      %d\n", k.BetCount)
				fmt.Fprintf(out, "Staked    ¥%d\n", k.TotalBet)
				fmt.Fprintf(out, "Returned  ¥%d\n", k.TotalPayout)
				return nil
			})
		},
	}
	kpiCmd.Flags().String("from", "", "start date, YYYY-MM-DD")
	kpiCmd.Flags().String("to", "", "end date, YYYY-MM-DD")

	conditionsCmd := &cobra.Command{
		Use:   "conditions",
		Short: "Show returns broken down by race condition",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f domain.StatsFilter
			f.Category, _ = cmd.Flags().GetString("category")
			f.From, _ = cmd.Flags().GetString("from")
			f.To, _ = cmd.Flags().GetString("to")

			return withApp(func(a *app.App) error {
				rows, err := a.Stats.Stats(cmd.Context(), f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No statistics yet.")
					return nil
				}
				for _, r := range rows {
					fmt.Fprintf(out, "%-12s %-16s bets %-4d won %-4d ROI %6.1f%%\n",
						r.Category, r.Condition, r.BetCount, r.WinCount, r.ROI)
				}
				return nil
			})
		},
	}
	conditionsCmd.Flags().String("category", "", "condition category, e.g. venue or distance")
	conditionsCmd.Flags().String("from", "", "start date, YYYY-MM-DD")
	conditionsCmd.Flags().String("to", "", "end date, YYYY-MM-DD")

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Races matching historically profitable conditions",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")

			return withApp(func(a *app.App) error {
				recs, err := a.Stats.Recommendations(cmd.Context(), date)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "No recommendations.")
					return nil
				}
				for _, r := range recs {
					fmt.Fprintf(out, "%s  %s R%d %s  (%s %s, ROI %.1f%% over %d bets)\n",
						colorize(colorCyan, fmt.Sprintf("%5d", r.Race.ID)),
						r.Race.Venue, r.Race.Number, r.Race.Name,
						r.Condition.Category, r.Condition.Condition, r.Condition.ROI, r.Condition.BetCount)
				}
				return nil
			})
		},
	}
	recommendCmd.Flags().String("date", "", "race date, YYYY-MM-DD (default: today)")

	statsCmd.AddCommand(kpiCmd, conditionsCmd, recommendCmd)
	return statsCmd
}

// --- config ---

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			for _, k := range config.ShowAll(cfg) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value.\n\nKeys: " + strings.Join(config.ValidKeys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			if err := config.SetKey(key, value); err != nil {
				return err
			}

			printSuccess("Set %s = %s", key, value)
			return nil
		},
	}

	configCmd.AddCommand(showCmd, setCmd)
	return configCmd
}
