package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	dbfs "github.com/garnizeh/staffdir/db"
	"github.com/garnizeh/staffdir/internal/config"
	"github.com/garnizeh/staffdir/internal/db"
	"github.com/garnizeh/staffdir/internal/jobs"
	"github.com/garnizeh/staffdir/internal/repository/workbook"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "staffctl",
		Usage:   "Maintenance tasks for the staff directory",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config YAML file",
				EnvVars: []string{"STAFFDIR_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			initCmd(),
			backupCmd(),
			restoreCmd(),
			jobsCmd(),
			hashPasswordCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "staffctl: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadConfig(c.String("config"))
}

func openJobs(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	d, err := db.New(ctx, cfg.Jobs.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the workbook and the jobs database",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := workbook.New(cfg.Workbook.Path).Init(c.Context); err != nil {
				return fmt.Errorf("init workbook: %w", err)
			}
			d, err := openJobs(c.Context, cfg)
			if err != nil {
				return fmt.Errorf("init jobs database: %w", err)
			}
			defer d.Close()
			applied, err := db.Applied(c.Context, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "workbook %s ready\njobs database %s at %d migrations\n", cfg.Workbook.Path, cfg.Jobs.DatabasePath, len(applied))
			return nil
		},
	}
}

func backupCmd() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Copy the workbook and the jobs database into a backup directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "Target directory (default backups/<timestamp>)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			dir := c.String("dir")
			if dir == "" {
				dir = filepath.Join("backups", time.Now().UTC().Format("20060102T150405Z"))
			}
			written, err := backup(c.Context, cfg.Workbook.Path, cfg.Jobs.DatabasePath, dir)
			if err != nil {
				return err
			}
			for _, f := range written {
				fmt.Fprintln(c.App.Writer, "saved", f)
			}
			return nil
		},
	}
}

func restoreCmd() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore the workbook and the jobs database from a backup directory; stop the server first",
		ArgsUsage: "<dir>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("restore needs the backup directory", 2)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			restored, err := restore(cfg.Workbook.Path, cfg.Jobs.DatabasePath, c.Args().First())
			if err != nil {
				return err
			}
			for _, f := range restored {
				fmt.Fprintln(c.App.Writer, "restored", f)
			}
			return nil
		},
	}
}

func jobsCmd() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect the background job queue",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Count jobs per status",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					d, err := openJobs(c.Context, cfg)
					if err != nil {
						return err
					}
					defer d.Close()
					counts, err := jobs.NewRepository(d).CountByStatus(c.Context)
					if err != nil {
						return err
					}
					statuses := make([]string, 0, len(counts))
					for s := range counts {
						statuses = append(statuses, s)
					}
					sort.Strings(statuses)
					for _, s := range statuses {
						fmt.Fprintf(c.App.Writer, "%-8s %d\n", s, counts[s])
					}
					return nil
				},
			},
			{
				Name:  "dead",
				Usage: "List dead-lettered jobs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					d, err := openJobs(c.Context, cfg)
					if err != nil {
						return err
					}
					defer d.Close()
					dead, err := jobs.NewRepository(d).ListDeadLetters(c.Context, c.Int("limit"))
					if err != nil {
						return err
					}
					for _, j := range dead {
						fmt.Fprintf(c.App.Writer, "%s %s job=%d attempts=%d %s %s\n",
							j.FailedAt.UTC().Format(time.RFC3339), j.Type, j.JobID, j.Attempts, j.Payload, j.LastError)
					}
					return nil
				},
			},
		},
	}
}

func hashPasswordCmd() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "Print a bcrypt hash for admin.password_hash",
		ArgsUsage: "<password>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("hash-password needs exactly one argument", 2)
			}
			h, err := bcrypt.GenerateFromPassword([]byte(c.Args().First()), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, string(h))
			return nil
		},
	}
}
