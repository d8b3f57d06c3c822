package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"budgetline/internal/app"
	"budgetline/internal/config"
	"budgetline/internal/db"
	"budgetline/internal/domain"
	"budgetline/internal/engine"
	"budgetline/internal/importer"
	"budgetline/internal/migrate"
	"budgetline/internal/repo"
	"budgetline/internal/report"
	"budgetline/internal/server"
	"budgetline/internal/wbs"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Budgetline CLI",
	Long: `Budgetline is corporate budget planning against actuals.
Core concepts:
- Workspace: your .budgetline directory with only the database; configs live in the DB and are imported explicitly.
- Company: the planning scope that owns departments, projects, and the event log.
- Structure: departments hold cost groups (cost or revenue); projects hold phases and a WBS of processes.
- Budget items: twelve monthly planned values for one year, attached to a cost group or a phase.
- Approval: items and processes flow draft -> pending -> approved (or rejected); revising an approved item archives it to history and reopens a draft.
- Revert: one undo slot back to the last approved values while a revision is still unapproved.
- Processes: WBS-keyed schedule rows; groups roll their dates up from leaves, and renaming a key cascades to the whole subtree.
- Transactions: actual postings in cents, compared against plan in 'bl report monthly'.
- Event log: diary of changes, view with 'bl log tail'.`,
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
	viper.SetEnvPrefix("BUDGETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("company", "", "company id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("company", rootCmd.PersistentFlags().Lookup("company"))
}

func registerCommands() {
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(departmentCmd())
	rootCmd.AddCommand(costGroupCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func companyCmd() *cobra.Command {
	c := &cobra.Command{Use: "company", Short: "Manage companies"}
	c.AddCommand(companyListCmd())
	c.AddCommand(companyCreateCmd())
	c.AddCommand(companyShowCmd())
	c.AddCommand(companyUseCmd())
	return c
}

func companyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCompanies(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func companyCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a company with default config and owner role",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			if name == "" {
				name = id
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			actorID := viper.GetString("actor-id")
			c, err := e.InitCompany(cmd.Context(), id, name, actorID)
			if err != nil {
				return err
			}
			if err := e.SeedRBAC(cmd.Context(), id, cfg.RBAC.Roles, actorID); err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "company id")
	cmd.Flags().StringVar(&name, "name", "", "company name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func companyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCompany(ctx, e.Config.Company.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func companyUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current company for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := strings.TrimSpace(args[0])
			if companyID == "" {
				return fmt.Errorf("company id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "BUDGETLINE_COMPANY", companyID); err != nil {
				return err
			}
			fmt.Printf("Set BUDGETLINE_COMPANY=%s in %s/.env\n", companyID, workspace)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect company config",
		Long:  "Config is the rulebook (stored in DB): company identity and currency, budget year and lock policy, and the RBAC role catalog. Import from budgetline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show company config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import company config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			companyID := cfg.Company.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if companyID == "" {
					companyID = e.Config.Company.ID
				}
				if err := e.Repo.UpsertCompanyConfig(ctx, companyID, cfg); err != nil {
					return err
				}
				if err := e.SeedRBAC(ctx, companyID, cfg.RBAC.Roles, ""); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var companyID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default budgetline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if companyID == "" {
				companyID = "my-company"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(companyID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "id", "", "company id to seed")
	return cmd
}

func departmentCmd() *cobra.Command {
	dep := &cobra.Command{Use: "department", Short: "Manage departments"}
	dep.AddCommand(departmentCreateCmd())
	dep.AddCommand(departmentListCmd())
	dep.AddCommand(departmentDeleteCmd())
	return dep
}

func departmentCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDepartment(ctx, e.Config.Company.ID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "department name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func departmentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDepartments(ctx, e.Config.Company.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func departmentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteDepartment(ctx, args[0])
			})
		},
	}
	return cmd
}

func costGroupCmd() *cobra.Command {
	cg := &cobra.Command{Use: "cost-group", Short: "Manage cost groups"}
	cg.AddCommand(costGroupCreateCmd())
	cg.AddCommand(costGroupListCmd())
	cg.AddCommand(costGroupDeleteCmd())
	return cg
}

func costGroupCreateCmd() *cobra.Command {
	var department, name, kind string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create cost group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CreateCostGroup(ctx, department, name, kind, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department id")
	cmd.Flags().StringVar(&name, "name", "", "cost group name")
	cmd.Flags().StringVar(&kind, "kind", "cost", "kind (cost, revenue)")
	_ = cmd.MarkFlagRequired("department")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func costGroupListCmd() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cost groups of a department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCostGroups(ctx, department)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department id")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func costGroupDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete cost group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteCostGroup(ctx, args[0])
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, start, end string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, e.Config.Company.ID, name, start, end, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, e.Config.Company.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteProject(ctx, args[0])
			})
		},
	}
	return cmd
}

func phaseCmd() *cobra.Command {
	ph := &cobra.Command{Use: "phase", Short: "Manage project phases"}
	ph.AddCommand(phaseCreateCmd())
	ph.AddCommand(phaseListCmd())
	ph.AddCommand(phaseDeleteCmd())
	return ph
}

func phaseCreateCmd() *cobra.Command {
	var project, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePhase(ctx, project, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "phase name")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func phaseListCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List phases of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListPhases(ctx, project)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func phaseDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeletePhase(ctx, args[0])
			})
		},
	}
	return cmd
}

func budgetCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "budget",
		Short: "Manage budget items",
		Long:  "Budget items carry twelve monthly planned values for one year and flow draft -> pending -> approved. Revising an approved item archives the approved values to history; revert undoes unapproved edits back to the last approved state.",
	}
	b.AddCommand(budgetCreateCmd())
	b.AddCommand(budgetListCmd())
	b.AddCommand(budgetGetCmd())
	b.AddCommand(budgetSaveCmd())
	b.AddCommand(budgetTransitionCmd("submit", "Submit draft for approval", engine.Engine.SubmitBudgetItem))
	b.AddCommand(budgetTransitionCmd("approve", "Approve pending item", engine.Engine.ApproveBudgetItem))
	b.AddCommand(budgetTransitionCmd("reject", "Reject pending item", engine.Engine.RejectBudgetItem))
	b.AddCommand(budgetTransitionCmd("withdraw", "Withdraw pending item back to draft", engine.Engine.WithdrawBudgetItem))
	b.AddCommand(budgetTransitionCmd("revert", "Revert to last approved values", engine.Engine.RevertBudgetItem))
	b.AddCommand(budgetReviseCmd())
	b.AddCommand(budgetDeleteCmd())
	b.AddCommand(budgetExportCmd())
	b.AddCommand(budgetImportCmd())
	return b
}

func budgetCreateCmd() *cobra.Command {
	var costGroup, phase, name string
	var year int
	var values []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a budget item",
		RunE: func(cmd *cobra.Command, args []string) error {
			monthly, err := parseMonthly(values)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.CreateBudgetItem(ctx, engine.BudgetItemCreateOptions{
					CostGroupID:   costGroup,
					PhaseID:       phase,
					Name:          name,
					Year:          year,
					MonthlyValues: monthly,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&costGroup, "cost-group", "", "cost group id")
	cmd.Flags().StringVar(&phase, "phase", "", "project phase id")
	cmd.Flags().StringVar(&name, "name", "", "item name")
	cmd.Flags().IntVar(&year, "year", 0, "budget year")
	cmd.Flags().StringArrayVar(&values, "set", []string{}, "monthly value MONTH=AMOUNT, month 0-11 (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func budgetListCmd() *cobra.Command {
	var f repo.BudgetItemFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List budget items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListBudgetItems(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Year", "Status", "Rev", "Total"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Name, it.Year, it.Status, it.CurrentRevision, it.MonthlyValues.Total()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CostGroupID, "cost-group", "", "cost group filter")
	cmd.Flags().StringVar(&f.PhaseID, "phase", "", "phase filter")
	cmd.Flags().IntVar(&f.Year, "year", 0, "year filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func budgetGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get budget item with revision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.GetBudgetItem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	return cmd
}

func budgetSaveCmd() *cobra.Command {
	var values []string
	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Save monthly values on a draft item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			monthly, err := parseMonthly(values)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.SaveBudgetItem(ctx, args[0], monthly, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringArrayVar(&values, "set", []string{}, "monthly value MONTH=AMOUNT, month 0-11 (repeatable)")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func budgetTransitionCmd(use, short string, fn func(engine.Engine, context.Context, string, string) (domain.BudgetItem, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := fn(e, ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func budgetReviseCmd() *cobra.Command {
	var editor, reason string
	cmd := &cobra.Command{
		Use:   "revise <id>",
		Short: "Revise an approved item (archives it and reopens a draft)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.ReviseBudgetItem(ctx, args[0], editor, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&editor, "editor", "", "editor name recorded in history")
	cmd.Flags().StringVar(&reason, "reason", "", "revision reason")
	return cmd
}

func budgetDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete budget item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteBudgetItem(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func budgetExportCmd() *cobra.Command {
	var f repo.BudgetItemFilters
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export budget items as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListBudgetItems(ctx, f)
				if err != nil {
					return err
				}
				w := os.Stdout
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return importer.ExportBudgetItems(w, items)
			})
		},
	}
	cmd.Flags().StringVar(&f.CostGroupID, "cost-group", "", "cost group filter")
	cmd.Flags().StringVar(&f.PhaseID, "phase", "", "phase filter")
	cmd.Flags().IntVar(&f.Year, "year", 0, "year filter")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func budgetImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import budget items from CSV (best effort, row by row)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer f.Close()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := importer.ImportBudgetItems(ctx, e, f, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to CSV file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func processCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "process",
		Short: "Manage project processes (WBS)",
		Long:  "Processes are WBS-keyed schedule rows. A process with descendants is a group and rolls its dates up from leaves. Renaming a WBS key cascades to the whole subtree.",
	}
	p.AddCommand(processCreateCmd())
	p.AddCommand(processListCmd())
	p.AddCommand(processGetCmd())
	p.AddCommand(processUpdateCmd())
	p.AddCommand(processTransitionCmd("submit", "Submit draft for approval", engine.Engine.SubmitProcess))
	p.AddCommand(processTransitionCmd("approve", "Approve pending process", engine.Engine.ApproveProcess))
	p.AddCommand(processTransitionCmd("reject", "Reject pending process", engine.Engine.RejectProcess))
	p.AddCommand(processTransitionCmd("withdraw", "Withdraw pending process back to draft", engine.Engine.WithdrawProcess))
	p.AddCommand(processTransitionCmd("start", "Record actual start", engine.Engine.StartProcess))
	p.AddCommand(processTransitionCmd("finish", "Record actual finish", engine.Engine.FinishProcess))
	p.AddCommand(processTransitionCmd("revert", "Revert to last approved dates", engine.Engine.RevertProcess))
	p.AddCommand(processReviseCmd())
	p.AddCommand(processDeleteCmd())
	p.AddCommand(processTreeCmd())
	p.AddCommand(processGanttCmd())
	p.AddCommand(processExportCmd())
	p.AddCommand(processImportCmd())
	return p
}

func processCreateCmd() *cobra.Command {
	var opts engine.ProcessCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProcess(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.WBS, "wbs", "", "WBS key, e.g. 1.2.3")
	cmd.Flags().StringVar(&opts.Name, "name", "", "process name")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "planned start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "planned end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("wbs")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func processListCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processes in WBS order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				procs, err := e.Repo.ListProcesses(ctx, project)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(procs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"WBS", "Name", "Status", "Start", "End", "ID"})
				for _, p := range procs {
					tw.AppendRow(table.Row{p.WBS, p.Name, p.Status, p.StartDate, p.EndDate, p.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func processGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get process with revision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProcess(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func processUpdateCmd() *cobra.Command {
	var name, wbsKey, start, end string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a process (WBS changes cascade to the subtree)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProcessUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("wbs") {
				opts.WBS = &wbsKey
			}
			if cmd.Flags().Changed("start") {
				opts.StartDate = &start
			}
			if cmd.Flags().Changed("end") {
				opts.EndDate = &end
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProcess(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&wbsKey, "wbs", "", "new WBS key")
	cmd.Flags().StringVar(&start, "start", "", "new planned start (draft only)")
	cmd.Flags().StringVar(&end, "end", "", "new planned end (draft only)")
	return cmd
}

func processTransitionCmd(use, short string, fn func(engine.Engine, context.Context, string, string) (domain.ProjectProcess, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := fn(e, ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func processReviseCmd() *cobra.Command {
	var editor, reason string
	cmd := &cobra.Command{
		Use:   "revise <id>",
		Short: "Revise an approved process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ReviseProcess(ctx, args[0], editor, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&editor, "editor", "", "editor name recorded in history")
	cmd.Flags().StringVar(&reason, "reason", "", "revision reason")
	return cmd
}

func processDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProcess(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func processTreeCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the WBS tree with rolled-up dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roots, err := e.ProcessTree(ctx, project)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(roots)
				}
				for i, r := range roots {
					printProcessTree(r, "", i == len(roots)-1)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func processGanttCmd() *cobra.Command {
	var project, from, to string
	var width int
	cmd := &cobra.Command{
		Use:   "gantt",
		Short: "Render a gantt chart of the WBS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.ProcessRows(ctx, project)
				if err != nil {
					return err
				}
				winStart, winEnd := from, to
				for _, row := range rows {
					if winStart == "" || (row.Start != "" && row.Start < winStart) {
						winStart = row.Start
					}
					if winEnd == "" || (row.End != "" && row.End > winEnd) {
						winEnd = row.End
					}
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"WBS", "Name", "Start", "End", "Days", winStart + " .. " + winEnd})
				for _, row := range rows {
					name := strings.Repeat("  ", row.Level) + row.Process.Name
					bar := renderBar(report.GanttSpan(row.Start, row.End, winStart, winEnd), width, row.IsGroup)
					tw.AppendRow(table.Row{row.Process.WBS, name, row.Start, row.End, row.Days, bar})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&from, "from", "", "chart window start (default: earliest row)")
	cmd.Flags().StringVar(&to, "to", "", "chart window end (default: latest row)")
	cmd.Flags().IntVar(&width, "width", 40, "bar column width in characters")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func processExportCmd() *cobra.Command {
	var project, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export processes as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				procs, err := e.Repo.ListProcesses(ctx, project)
				if err != nil {
					return err
				}
				w := os.Stdout
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return importer.ExportProcesses(w, procs)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func processImportCmd() *cobra.Command {
	var project, filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import processes from CSV (best effort, row by row)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer f.Close()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := importer.ImportProcesses(ctx, e, project, f, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&filePath, "file", "", "path to CSV file")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func txCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions (actuals)",
		Long:  "Transactions are actual postings in minor units (cents) tracked against plan. Compare with 'bl report monthly'.",
	}
	t.AddCommand(txCreateCmd())
	t.AddCommand(txListCmd())
	t.AddCommand(txDeleteCmd())
	return t
}

func txCreateCmd() *cobra.Command {
	var costGroup, phase, name, date string
	var amountCents int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t := domain.Transaction{
					CompanyID:   e.Config.Company.ID,
					CostGroupID: optionalString(costGroup),
					PhaseID:     optionalString(phase),
					Name:        name,
					AmountCents: amountCents,
					Date:        date,
				}
				res, err := e.CreateTransaction(ctx, t, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&costGroup, "cost-group", "", "cost group id")
	cmd.Flags().StringVar(&phase, "phase", "", "project phase id")
	cmd.Flags().StringVar(&name, "name", "", "description")
	cmd.Flags().Int64Var(&amountCents, "amount-cents", 0, "amount in minor units")
	cmd.Flags().StringVar(&date, "date", "", "posting date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount-cents")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func txListCmd() *cobra.Command {
	var f repo.TransactionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.CompanyID == "" {
					f.CompanyID = e.Config.Company.ID
				}
				items, err := e.Repo.ListTransactions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Date", "Name", "Amount"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Date, t.Name, formatCents(t.AmountCents)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CostGroupID, "cost-group", "", "cost group filter")
	cmd.Flags().StringVar(&f.PhaseID, "phase", "", "phase filter")
	cmd.Flags().StringVar(&f.FromDate, "from", "", "from date")
	cmd.Flags().StringVar(&f.ToDate, "to", "", "to date")
	return cmd
}

func txDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteTransaction(ctx, args[0])
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	r := &cobra.Command{Use: "report", Short: "Reports"}
	r.AddCommand(reportMonthlyCmd())
	return r
}

func reportMonthlyCmd() *cobra.Command {
	var year int
	var costGroup, phase, status string
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Planned vs actual monthly totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if year == 0 {
					year = e.Config.Budget.DefaultYear
				}
				if year == 0 {
					year = time.Now().UTC().Year()
				}
				items, err := e.Repo.ListBudgetItems(ctx, repo.BudgetItemFilters{
					CostGroupID: costGroup,
					PhaseID:     phase,
					Year:        year,
					Status:      status,
				})
				if err != nil {
					return err
				}
				txs, err := e.Repo.ListTransactions(ctx, repo.TransactionFilters{
					CompanyID:   e.Config.Company.ID,
					CostGroupID: costGroup,
					PhaseID:     phase,
				})
				if err != nil {
					return err
				}
				planned := report.MonthlyTotals(items)
				actual := report.ActualMonthlyTotals(txs, year)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"year": year, "planned": planned, "actual": actual})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Month", "Planned", "Actual"})
				for m := 0; m < 12; m++ {
					tw.AppendRow(table.Row{time.Month(m + 1).String(), planned[m], fmt.Sprintf("%.2f", actual[m])})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "budget year (default from config)")
	cmd.Flags().StringVar(&costGroup, "cost-group", "", "cost group filter")
	cmd.Flags().StringVar(&phase, "phase", "", "phase filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: structure changes, approvals, revisions, and postings.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Company.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "RBAC management",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	cmd.AddCommand(rbacBootstrapCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				who, err := e.WhoAmI(ctx, e.Config.Company.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(who)
			})
		},
	}
	return cmd
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantRole(ctx, e.Config.Company.ID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeRole(ctx, e.Config.Company.ID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacBootstrapCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap an actor role without RBAC checks (dev only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			companyID := strings.TrimSpace(viper.GetString("company"))
			if companyID == "" {
				return fmt.Errorf("company not specified; use --company or set BUDGETLINE_COMPANY (bl company use <id>)")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetCompany(ctx, companyID); err != nil {
					return err
				}
				cfg, cfgErr := r.GetCompanyConfig(ctx, companyID)
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if cfgErr == nil && cfg != nil {
					if roleDef, ok := cfg.RBAC.Roles[role]; ok {
						if err := r.InsertRole(ctx, tx, role, roleDef.Description); err != nil {
							return err
						}
						for _, perm := range roleDef.Permissions {
							if err := r.InsertPermission(ctx, tx, perm, ""); err != nil {
								return err
							}
							if err := r.AddRolePermission(ctx, tx, role, perm); err != nil {
								return err
							}
						}
					} else {
						if err := r.InsertRole(ctx, tx, role, ""); err != nil {
							return err
						}
					}
				} else {
					if err := r.InsertRole(ctx, tx, role, ""); err != nil {
						return err
					}
				}
				if err := r.EnsureActor(ctx, tx, target, target, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				if err := r.AssignRole(ctx, tx, companyID, target, role); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (plaintext shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, raw, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "name": key.Name, "key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAPIKey(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			_, cfg, err := app.ResolveCompanyAndConfig(cmd.Context(), workspace, viper.GetString("company"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("BUDGETLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BUDGETLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Budgetline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
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
	_, cfg, err := app.ResolveCompanyAndConfig(ctx, workspace, viper.GetString("company"), viper.GetString("actor-id"), r)
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
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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

// parseMonthly turns repeatable MONTH=AMOUNT pairs into monthly values.
func parseMonthly(pairs []string) (domain.MonthlyValues, error) {
	values := domain.MonthlyValues{}
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --set %q, want MONTH=AMOUNT", pair)
		}
		month, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || month < 0 || month > 11 {
			return nil, fmt.Errorf("invalid month in --set %q, want 0-11", pair)
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount in --set %q", pair)
		}
		values[month] = amount
	}
	return values, nil
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func printProcessTree(n *wbs.Node, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	start, end := n.Start, n.End
	fmt.Printf("%s%s%s %s [%s] %s..%s\n", prefix, connector, n.Process.WBS, n.Process.Name, n.Process.Status, start, end)
	for i, c := range n.Children {
		printProcessTree(c, newPrefix, i == len(n.Children)-1)
	}
}

// renderBar maps a chart span onto a fixed-width character row. Groups render
// as '=' so rolled-up envelopes read differently from leaf bars.
func renderBar(span report.Span, width int, group bool) string {
	if width <= 0 {
		width = 40
	}
	left := int(span.LeftPct / 100 * float64(width))
	barLen := int(span.WidthPct / 100 * float64(width))
	if barLen < 1 && span.WidthPct > 0 {
		barLen = 1
	}
	if left > width {
		left = width
	}
	if left+barLen > width {
		barLen = width - left
	}
	ch := "█"
	if group {
		ch = "="
	}
	return strings.Repeat(" ", left) + strings.Repeat(ch, barLen) + strings.Repeat(" ", width-left-barLen)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}
