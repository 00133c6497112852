// cmd/confvault/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"confvault/internal/config"
	"confvault/internal/logging"
	"confvault/internal/project"
	"confvault/internal/repo"
)

var (
	projectDir string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "confvault",
	Short: "Confvault is a versioned configuration repository",
	Long: `Confvault stores configuration files in repositories with a full linear
history. Every change is a commit; clients can query any revision and
watch paths for future changes.`,
}

func loadConfig() *config.Config {
	if configPath == "" {
		return config.Default()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not load config:", err)
		return config.Default()
	}
	return cfg
}

func openProject() (*project.Project, *config.Config, error) {
	cfg := loadConfig()
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	p, err := project.New(projectDir, cfg, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

func closeProject(p *project.Project, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning: close:", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "d", ".", "project directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new project directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := project.Initialize(projectDir); err != nil {
				return err
			}
			fmt.Println("Initialized project in", projectDir)
			return nil
		},
	}

	var repoCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := openProject()
			if err != nil {
				return err
			}
			defer closeProject(p, cfg)

			r, err := p.CreateRepository(args[0])
			if err != nil {
				return fmt.Errorf("creating repository: %w", err)
			}
			color.Green("Created repository %s at revision %d", r.Name(), r.Head())
			return nil
		},
	}

	var repoListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the repositories of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := openProject()
			if err != nil {
				return err
			}
			defer closeProject(p, cfg)

			names, err := p.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	var repoRemoveCmd = &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove a repository and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := openProject()
			if err != nil {
				return err
			}
			defer closeProject(p, cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GracefulShutdownTimeout)
			defer cancel()
			if err := p.RemoveRepository(ctx, args[0]); err != nil {
				return err
			}
			color.Yellow("Removed repository %s", args[0])
			return nil
		},
	}

	var repoCmd = &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
	}
	repoCmd.AddCommand(repoCreateCmd, repoListCmd, repoRemoveCmd)

	var revisionFlag int64
	var queryFlag string
	var catCmd = &cobra.Command{
		Use:   "cat [repository] [path]",
		Short: "Print an entry at a revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := openProject()
			if err != nil {
				return err
			}
			defer closeProject(p, cfg)

			r, err := p.OpenRepository(args[0])
			if err != nil {
				return err
			}
			entry, err := r.Get(cmd.Context(), repo.Revision(revisionFlag), args[1], queryFlag)
			if err != nil {
				return err
			}
			fmt.Print(entry.Content)
			if entry.Type == repo.EntryJSON {
				fmt.Println()
			}
			return nil
		},
	}
	catCmd.Flags().Int64VarP(&revisionFlag, "revision", "r", int64(repo.Head), "revision to read")
	catCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "JSON pointer or JSON path")

	var maxCommitsFlag int
	var logCmd = &cobra.Command{
		Use:   "log [repository] [pattern]",
		Short: "Show the commits touching a path pattern",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := openProject()
			if err != nil {
				return err
			}
			defer closeProject(p, cfg)

			r, err := p.OpenRepository(args[0])
			if err != nil {
				return err
			}
			pat := "/**"
			if len(args) > 1 {
				pat = args[1]
			}
			commits, err := r.History(cmd.Context(), repo.Head, repo.Init, pat, maxCommitsFlag)
			if err != nil {
				return err
			}
			for _, c := range commits {
				color.Cyan("revision %d", c.Revision)
				fmt.Printf("Author: %s <%s>\n", c.Author.Name, c.Author.Email)
				fmt.Printf("Date:   %s\n", c.When.Format(time.RFC1123))
				fmt.Printf("\n    %s\n", c.Summary)
				if c.Detail != "" {
					fmt.Printf("\n    %s\n", c.Detail)
				}
				fmt.Println()
			}
			return nil
		},
	}
	logCmd.Flags().IntVarP(&maxCommitsFlag, "max", "n", 0, "maximum number of commits")

	var timeoutFlag time.Duration
	var watchCmd = &cobra.Command{
		Use:   "watch [repository] [pattern]",
		Short: "Block until a matching path changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := openProject()
			if err != nil {
				return err
			}
			defer closeProject(p, cfg)

			r, err := p.OpenRepository(args[0])
			if err != nil {
				return err
			}
			rev, err := r.Watch(cmd.Context(), repo.Head, args[1], timeoutFlag)
			if err != nil {
				return err
			}
			if rev == 0 {
				color.Yellow("Timed out, nothing changed")
				return nil
			}
			color.Green("Changed at revision %d", rev)
			return nil
		},
	}
	watchCmd.Flags().DurationVarP(&timeoutFlag, "timeout", "t", time.Minute, "how long to wait")

	rootCmd.AddCommand(initCmd, repoCmd, catCmd, logCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
