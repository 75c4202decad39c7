package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voluna/internal/app"
	"voluna/internal/config"
	"voluna/internal/db"
	"voluna/internal/domain"
	"voluna/internal/engine"
	"voluna/internal/migrate"
	"voluna/internal/repo"
	"voluna/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vl",
	Short: "Voluna CLI",
	Long: `Voluna matches volunteers with nonprofit activities and keeps score.
Core concepts:
- Workspace: your .voluna directory holding the database; org config lives in voluna.yml.
- Organization: a nonprofit running activities; its counter of new applications feeds the staff dashboard.
- Activity: an online, local or event engagement; lifecycle goes draft <-> open -> closed.
- Application: a member's interest in an activity, kept in three synchronized views (activity, member, organization).
- Validation: proof of attendance, by scanning the activity's completion token on the day, or by a staff decision.
- Rewards: points and badges, awarded exactly once no matter how many times a claim is retried.
- Event log: diary of changes, view with 'vl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VOLUNA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("org", "", "organization id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(badgeCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgListCmd())
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgShowCmd())
	org.AddCommand(orgStatusCmd())
	org.AddCommand(orgConfigCmd())
	return org
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOrganizations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "NEW APPLICATIONS", "CREATED")
				for _, o := range items {
					t.AppendRow(table.Row{o.ID, o.Name, o.TotalNewApplications, o.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
}

func orgCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrganization(ctx, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "organization id")
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func orgShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Repo.GetOrganization(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func orgStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Organization status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Repo.GetOrganization(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountActivitiesByStatus(ctx, o.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"org_id":                 o.ID,
					"total_new_applications": o.TotalNewApplications,
					"activity_counts":        counts,
				})
			})
		},
	}
}

func orgConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage organization config"}
	cfg.AddCommand(orgConfigGenerateCmd())
	cfg.AddCommand(orgConfigImportCmd())
	cfg.AddCommand(orgConfigShowCmd())
	return cfg
}

func orgConfigGenerateCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a default voluna.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				orgID = viper.GetString("org")
			}
			if orgID == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "id", "", "organization id")
	return cmd
}

func orgConfigImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertOrgConfig(ctx, cfg.Org.ID, cfg); err != nil {
					return err
				}
				fmt.Println("imported config for", cfg.Org.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config file path")
	return cmd
}

func orgConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	}
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage members"}
	member.AddCommand(memberCreateCmd())
	member.AddCommand(memberListCmd())
	member.AddCommand(memberShowCmd())
	member.AddCommand(memberHistoryCmd())
	member.AddCommand(memberBadgesCmd())
	member.AddCommand(memberPointsCmd())
	return member
}

func memberCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMember(ctx, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "member id (minted when empty)")
	cmd.Flags().StringVar(&name, "name", "", "member name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMembers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "POINTS", "CREATED")
				for _, m := range items {
					t.AppendRow(table.Row{m.ID, m.Name, m.Points, m.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
}

func memberShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <member-id>",
		Short: "Show a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				m, err := r.GetMember(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func memberHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <member-id>",
		Short: "Show a member's validated activity history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMemberHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ACTIVITY", "VIA", "ADDED")
				for _, h := range items {
					t.AppendRow(table.Row{h.ActivityID, h.Via, h.AddedAt})
				}
				t.Render()
				return nil
			})
		},
	}
}

func memberBadgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "badges <member-id>",
		Short: "Show a member's badges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMemberBadges(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func memberPointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "points <member-id>",
		Short: "Show a member's point ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPointEntries(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("AMOUNT", "SOURCE", "REASON", "AT")
				for _, p := range items {
					t.AppendRow(table.Row{p.Amount, p.SourceKind, p.Reason, p.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
}

func badgeCmd() *cobra.Command {
	badge := &cobra.Command{Use: "badge", Short: "Manage badges"}
	badge.AddCommand(badgeListCmd())
	badge.AddCommand(badgeCreateCmd())
	badge.AddCommand(badgeGrantCmd())
	badge.AddCommand(badgeSeedCmd())
	return badge
}

func badgeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List badges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBadges(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "POINTS")
				for _, b := range items {
					t.AppendRow(table.Row{b.ID, b.Name, b.Points})
				}
				t.Render()
				return nil
			})
		},
	}
}

func badgeCreateCmd() *cobra.Command {
	var id, name string
	var points int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update a badge",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || name == "" {
				return fmt.Errorf("--id and --name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.DefineBadge(ctx, id, name, points)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "badge id")
	cmd.Flags().StringVar(&name, "name", "", "badge name")
	cmd.Flags().IntVar(&points, "points", 0, "point value")
	return cmd
}

func badgeGrantCmd() *cobra.Command {
	var badgeID, memberID string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a badge to a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if badgeID == "" || memberID == "" {
				return fmt.Errorf("--badge and --member required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				granted, err := e.GrantBadge(ctx, memberID, badgeID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !granted {
					fmt.Println("already granted")
					return nil
				}
				fmt.Println("granted", badgeID, "to", memberID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&badgeID, "badge", "", "badge id")
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	return cmd
}

func badgeSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the badge catalog from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SeedBadgeCatalog(ctx); err != nil {
					return err
				}
				fmt.Println("badge catalog seeded")
				return nil
			})
		},
	}
}

func activityCmd() *cobra.Command {
	activity := &cobra.Command{Use: "activity", Short: "Manage activities"}
	activity.AddCommand(activityCreateCmd())
	activity.AddCommand(activityListCmd())
	activity.AddCommand(activityShowCmd())
	activity.AddCommand(activityStatusCmd())
	activity.AddCommand(activityDeleteCmd())
	activity.AddCommand(activityDuplicateCmd())
	activity.AddCommand(activityTokenCmd())
	activity.AddCommand(activityParticipantsCmd())
	activity.AddCommand(activityApplicationsCmd())
	return activity
}

func activityCreateCmd() *cobra.Command {
	var typ, title, desc, startDate, endDate, startTime, endTime, continent string
	var points, sdg int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create activity (draft)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if typ == "" || title == "" {
				return fmt.Errorf("--type and --title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ActivityCreateOptions{
					OrgID:        e.Config.Org.ID,
					Type:         typ,
					Title:        title,
					Description:  desc,
					RewardPoints: points,
					StartDate:    startDate,
					EndDate:      endDate,
					StartTime:    startTime,
					EndTime:      endTime,
					Continent:    continent,
				}
				if cmd.Flags().Changed("sdg") {
					opts.SDG = &sdg
				}
				a, err := e.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "activity type (online|local|event)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().IntVar(&points, "points", 0, "reward points")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&startTime, "start-time", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&endTime, "end-time", "", "end time (HH:MM)")
	cmd.Flags().IntVar(&sdg, "sdg", 0, "sustainable development goal (1-17)")
	cmd.Flags().StringVar(&continent, "continent", "", "continent")
	return cmd
}

func activityListCmd() *cobra.Command {
	var status, typ string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
					OrgID:  e.Config.Org.ID,
					Status: status,
					Type:   typ,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "TYPE", "STATUS", "TITLE", "POINTS", "START", "APPLICANTS")
				for _, a := range items {
					t.AppendRow(table.Row{a.ID, a.Type, a.Status, a.Title, a.RewardPoints, a.StartDate, a.ApplicantCount})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&typ, "type", "", "type filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <activity-id>",
		Short: "Show an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func activityStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <activity-id>",
		Short: "Change activity status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&status, "to", "", "target status (draft|open|closed)")
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <activity-id>",
		Short: "Delete activity and cascade its applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteActivity(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func activityDuplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <activity-id>",
		Short: "Clone an activity into a fresh draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.DuplicateActivity(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func activityTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <activity-id>",
		Short: "Show the completion token (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				if a.CompletionToken == "" {
					fmt.Println("activity has no completion token (online type)")
					return nil
				}
				fmt.Println(a.CompletionToken)
				return nil
			})
		},
	}
}

func activityParticipantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "participants <activity-id>",
		Short: "Effective participant count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.EffectiveParticipantCount(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"activity_id": args[0], "effective": n})
			})
		},
	}
}

func activityApplicationsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "applications <activity-id>",
		Short: "List an activity's applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActivityApplications(ctx, args[0], status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "MEMBER", "STATUS", "CREATED")
				for _, a := range items {
					t.AppendRow(table.Row{a.ID, a.MemberID, a.Status, a.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func applyCmd() *cobra.Command {
	var memberID, message string
	cmd := &cobra.Command{
		Use:   "apply <activity-id>",
		Short: "Apply a member to an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if memberID == "" {
				memberID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateApplication(ctx, args[0], memberID, message)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id (defaults to actor-id)")
	cmd.Flags().StringVar(&message, "message", "", "motivation message")
	return cmd
}

func applicationCmd() *cobra.Command {
	application := &cobra.Command{Use: "application", Short: "Manage applications"}
	application.AddCommand(applicationDecideCmd())
	return application
}

func applicationDecideCmd() *cobra.Command {
	var activityID, status, note string
	cmd := &cobra.Command{
		Use:   "decide <application-id>",
		Short: "Accept, reject or cancel a pending application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if activityID == "" || status == "" {
				return fmt.Errorf("--activity and --to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				decided, err := e.UpdateApplicationStatus(ctx, activityID, args[0], status, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(decided)
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&status, "to", "", "target status (accepted|rejected|cancelled)")
	cmd.Flags().StringVar(&note, "note", "", "staff note")
	return cmd
}

func validateCmd() *cobra.Command {
	validate := &cobra.Command{Use: "validate", Short: "Validate attendance"}
	validate.AddCommand(validateTokenCmd())
	validate.AddCommand(validateManualCmd())
	validate.AddCommand(validateRejectCmd())
	validate.AddCommand(validateAllCmd())
	validate.AddCommand(validateRejectAllCmd())
	return validate
}

func validateTokenCmd() *cobra.Command {
	var memberID, token string
	cmd := &cobra.Command{
		Use:   "token <activity-id>",
		Short: "Validate by completion token (QR scan)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token required")
			}
			if memberID == "" {
				memberID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ValidateByToken(ctx, args[0], memberID, token)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id (defaults to actor-id)")
	cmd.Flags().StringVar(&token, "token", "", "completion token")
	return cmd
}

func validateManualCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "manual <activity-id>",
		Short: "Validate a member manually (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if memberID == "" {
				return fmt.Errorf("--member required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ValidateManually(ctx, args[0], memberID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	return cmd
}

func validateRejectCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "reject <activity-id>",
		Short: "Reject a member's attendance (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if memberID == "" {
				return fmt.Errorf("--member required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.RejectApplicant(ctx, args[0], memberID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	return cmd
}

func validateAllCmd() *cobra.Command {
	var memberIDs []string
	cmd := &cobra.Command{
		Use:   "all <activity-id>",
		Short: "Validate accepted applicants in one sweep (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ValidateAll(ctx, args[0], memberIDs, viper.GetString("actor-id"))
				if err != nil {
					var pf engine.PartialFailureError
					if errors.As(err, &pf) {
						_ = printJSONOrTable(res)
						return err
					}
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringSliceVar(&memberIDs, "member", nil, "member id to validate (repeatable; default all accepted)")
	return cmd
}

func validateRejectAllCmd() *cobra.Command {
	var memberIDs []string
	cmd := &cobra.Command{
		Use:   "reject-all <activity-id>",
		Short: "Reject accepted applicants in one sweep (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RejectAll(ctx, args[0], memberIDs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringSliceVar(&memberIDs, "member", nil, "member id to reject (repeatable; default all accepted)")
	return cmd
}

func logCmd() *cobra.Command {
	logC := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: applications, validations, rewards, lifecycle changes.",
	}
	logC.AddCommand(logTailCmd())
	return logC
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Org.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				t := newTable("ID", "TS", "TYPE", "ENTITY", "ACTOR")
				for _, evt := range events {
					t.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	apikey.AddCommand(apikeyCreateCmd())
	apikey.AddCommand(apikeyListCmd())
	apikey.AddCommand(apikeyDeleteCmd())
	return apikey
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, role, orgID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if role == domain.ActorKindStaff && orgID == "" {
					orgID = e.Config.Org.ID
				}
				key, record, err := e.MintAPIKey(ctx, actorID, role, orgID, name)
				if err != nil {
					return err
				}
				fmt.Println("key (store it now, it is not retrievable):", key)
				return printJSONOrTable(record)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to actor-id)")
	cmd.Flags().StringVar(&role, "role", "member", "role (member|staff)")
	cmd.Flags().StringVar(&orgID, "org-id", "", "organization scope for staff keys")
	cmd.Flags().StringVar(&name, "name", "", "label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "ACTOR", "ROLE", "ORG", "NAME", "CREATED")
				for _, k := range items {
					t.AppendRow(table.Row{k.ID, k.ActorID, k.Role, k.OrgID, k.Name, k.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveOrgAndConfig(cmd.Context(), workspace, viper.GetString("org"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("VOLUNA_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("VOLUNA_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			server.StartApplicantCounter(cmd.Context(), e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Voluna API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveOrgAndConfig(ctx, workspace, viper.GetString("org"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row(headers))
	return t
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
