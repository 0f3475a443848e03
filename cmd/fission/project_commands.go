package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"fission/internal/config"
	"fission/internal/project"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Create and inspect projects",
	}
	projectCmd.AddCommand(newProjectAddCommand(ctx))
	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectCancelCommand(ctx))
	projectCmd.AddCommand(newProjectRetryCommand(ctx))
	return projectCmd
}

func newProjectAddCommand(ctx *commandContext) *cobra.Command {
	var categoryFlag string

	cmd := &cobra.Command{
		Use:   "add <video>",
		Short: "Register a source video for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			category, ok := project.ParseCategory(categoryFlag)
			if !ok {
				return fmt.Errorf("unknown category %q (testimonial, case_study, founder_story)", categoryFlag)
			}
			source, err := resolveSource(cfg, args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *project.Store) error {
				p, err := store.Create(cmd.Context(), source, category)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Project %s queued (%s)\n", p.ID, p.SourcePath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&categoryFlag, "category", string(project.CategoryTestimonial), "Content category: testimonial, case_study, founder_story")
	return cmd
}

// resolveSource returns the absolute path of a readable video file with an
// allowed extension.
func resolveSource(cfg *config.Config, arg string) (string, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !slices.Contains(cfg.Ingest.AllowedExtensions, ext) {
		return "", fmt.Errorf("unsupported file extension %q (allowed: %s)", ext, strings.Join(cfg.Ingest.AllowedExtensions, ", "))
	}
	return absPath, nil
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]project.Status, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := project.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(store *project.Store) error {
				projects, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, projectViews(projects))
				}
				out := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects")
					return nil
				}
				fmt.Fprintln(out, renderProjectTable(projects))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				p, err := store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("%w: %s", project.ErrNotFound, args[0])
				}
				assets, err := store.ListAssets(cmd.Context(), p.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case raw:
					return dumpRaw(out, shouldColorize(out), p, assets)
				case asJSON:
					return writeJSON(cmd, newProjectDetail(p, assets))
				}
				fmt.Fprint(out, renderProjectDetail(p, assets))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "Dump the stored records")
	return cmd
}

func newProjectCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Request cancellation of a project",
		Long:  "The running stage finishes; the project fails before the next stage starts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				ok, err := store.RequestCancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					p, err := store.GetByID(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if p == nil {
						return fmt.Errorf("%w: %s", project.ErrNotFound, args[0])
					}
					return fmt.Errorf("project %s is already %s", p.ID, p.Status)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
				return nil
			})
		},
	}
}

func newProjectRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a failed project to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				p, err := store.RetryFailed(cmd.Context(), args[0])
				if errors.Is(err, project.ErrNotFound) {
					return fmt.Errorf("%w: %s", project.ErrNotFound, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Project %s reset to %s\n", p.ID, p.Status)
				return nil
			})
		},
	}
}
