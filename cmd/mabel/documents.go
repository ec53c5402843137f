package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/mabelstudio/internal/logging"
	"github.com/rendis/mabelstudio/internal/studio"
	"github.com/rendis/mabelstudio/internal/yamlio"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// errLintFailed makes lint exit non-zero without printing an extra error.
var errLintFailed = errors.New("validation failed")

// fileService builds a storeless service from the layered config.
func fileService(cmd *cobra.Command) (*studio.Service, error) {
	v := newViper(configFlag)
	if err := bindServeFlags(v, cmd); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	return buildService(cfg, nil, nil, newLogger(cmd.ErrOrStderr(), level, cfg.LogFormat))
}

// readDocument parses a YAML file, or stdin when path is "-".
func readDocument(cmd *cobra.Command, svc *studio.Service, path string) (*schema.Document, error) {
	var (
		text []byte
		err  error
	)
	if path == "-" {
		text, err = io.ReadAll(cmd.InOrStdin())
	} else {
		text, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return svc.ParseYAML(text)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <workflow.yaml|->",
		Short: "Print inferred edges, execution levels and validation issues as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fileService(cmd)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, svc, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.Inspect(cmd.Context(), doc))
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		output     string
		modelsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "export <workflow.yaml|->",
		Short: "Re-level a workflow and write it back as MABEL v2.1 YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fileService(cmd)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, svc, args[0])
			if err != nil {
				return err
			}
			var text []byte
			if modelsOnly {
				text, err = yamlio.ExportModels(doc.Models)
			} else {
				text, err = svc.ExportYAML(doc)
			}
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(text)
				return err
			}
			return os.WriteFile(output, text, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&modelsOnly, "models-only", false, "export only the models section")
	return cmd
}

func lintCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lint <workflow.yaml|->",
		Short: "Validate a workflow; exits non-zero when it has errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fileService(cmd)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, svc, args[0])
			if err != nil {
				return err
			}
			result := svc.Validate(cmd.Context(), doc)
			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, result); err != nil {
					return err
				}
			} else {
				printIssues(out, "error", result.Errors)
				printIssues(out, "warning", result.Warnings)
				if result.Valid() {
					fmt.Fprintf(out, "OK: %d blocks, %d warnings\n", len(doc.Blocks), len(result.Warnings))
				}
			}
			if !result.Valid() {
				return errLintFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the validation result as JSON")
	return cmd
}

func printIssues(w io.Writer, severity string, issues []schema.ValidationIssue) {
	for _, is := range issues {
		where := is.Path
		if is.BlockID != "" {
			where = is.BlockID
		}
		fmt.Fprintf(w, "%s %s [%s] %s\n", severity, where, is.Code, is.Message)
	}
}

func diagramCmd() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "diagram <workflow.yaml|->",
		Short: "Render the inferred graph (mermaid, ascii, dot, png, svg)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fileService(cmd)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, svc, args[0])
			if err != nil {
				return err
			}
			out, err := svc.Diagram(cmd.Context(), doc, studio.DiagramFormat(format))
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				if strings.HasPrefix(out.ContentType, "image/") {
					return fmt.Errorf("%s output is binary, use --output", format)
				}
				_, err = cmd.OutOrStdout().Write(out.Body)
				return err
			}
			return os.WriteFile(output, out.Body, 0o644)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "ascii", "output format: mermaid, ascii, dot, png, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func queryCmd() *cobra.Command {
	var filter bool
	cmd := &cobra.Command{
		Use:   "query <workflow.yaml|-> <expr>",
		Short: "Run a jq program over a workflow, or filter its blocks with --filter",
		Example: `  mabel query flow.yaml '[.blocks[] | select(.type == "ai") | .model]'
  mabel query flow.yaml --filter '"Answer" in inputs'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fileService(cmd)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, svc, args[0])
			if err != nil {
				return err
			}
			if filter {
				blocks, err := svc.Filter(cmd.Context(), args[1], doc)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), blocks)
			}
			results, err := svc.Query(cmd.Context(), args[1], doc)
			if err != nil {
				return err
			}
			for _, r := range results {
				if err := printJSON(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&filter, "filter", false, "treat expr as a boolean block filter")
	return cmd
}
