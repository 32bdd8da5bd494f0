package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/assembler"
	"github.com/hyperjump/ectd/internal/backbone"
	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/cli"
	"github.com/hyperjump/ectd/internal/exporter"
	"github.com/hyperjump/ectd/internal/hyperlink"
	"github.com/hyperjump/ectd/internal/models"
)

// run wires the components, resolves the study argument and hands both to fn.
func run(cmd *cobra.Command, g *globalFlags, ref string, fn func(ctx context.Context, c *Components, st *models.Study, format cli.OutputFormat) error) error {
	format, err := g.format()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	c, err := initializeComponents(ctx, g)
	if err != nil {
		return err
	}
	defer c.Close()
	st, err := resolveStudy(ctx, c.Store, ref)
	if err != nil {
		return err
	}
	return fn(ctx, c, st, format)
}

func newReadinessCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "readiness <study>",
		Short: "Report whether a study is ready for submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, args[0], func(ctx context.Context, c *Components, st *models.Study, format cli.OutputFormat) error {
				rc, err := c.Assembler.CheckReadiness(ctx, st.ID)
				if err != nil {
					return err
				}
				return cli.WriteReadiness(cmd.OutOrStdout(), st.StudyNumber, rc, format)
			})
		},
	}
}

func newAssembleCmd(g *globalFlags) *cobra.Command {
	var includeDrafts bool
	cmd := &cobra.Command{
		Use:   "assemble <study>",
		Short: "Print the package manifest for a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, args[0], func(ctx context.Context, c *Components, st *models.Study, format cli.OutputFormat) error {
				m, err := c.Assembler.Assemble(ctx, st.ID, assembler.Options{IncludeDrafts: includeDrafts})
				if err != nil {
					return err
				}
				return cli.WriteManifest(cmd.OutOrStdout(), m, format)
			})
		},
	}
	cmd.Flags().BoolVar(&includeDrafts, "include-drafts", false, "select unapproved documents when nothing better exists")
	return cmd
}

func newBookmarksCmd(g *globalFlags) *cobra.Command {
	var includeDrafts bool
	cmd := &cobra.Command{
		Use:   "bookmarks <study>",
		Short: "Build the bookmark manifest for a study package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, args[0], func(ctx context.Context, c *Components, st *models.Study, format cli.OutputFormat) error {
				m, err := c.Assembler.Assemble(ctx, st.ID, assembler.Options{IncludeDrafts: includeDrafts})
				if err != nil {
					return err
				}
				b := bookmarks.NewBuilder(
					bookmarks.WithLogger(c.Logger),
					bookmarks.WithMaxDepth(c.Config.Bookmarks.MaxDepth),
					bookmarks.WithMaxTitleLength(c.Config.Bookmarks.MaxTitleLength),
				)
				bm, err := b.Build(ctx, m)
				if err != nil {
					return err
				}
				return cli.WriteBookmarks(cmd.OutOrStdout(), bm, format)
			})
		},
	}
	cmd.Flags().BoolVar(&includeDrafts, "include-drafts", false, "select unapproved documents when nothing better exists")
	return cmd
}

func newLinksCmd(g *globalFlags) *cobra.Command {
	var (
		includeDrafts bool
		csvPath       string
		xlsxPath      string
	)
	cmd := &cobra.Command{
		Use:   "links <study>",
		Short: "Extract and classify the hyperlinks of a study package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, args[0], func(ctx context.Context, c *Components, st *models.Study, format cli.OutputFormat) error {
				m, err := c.Assembler.Assemble(ctx, st.ID, assembler.Options{IncludeDrafts: includeDrafts})
				if err != nil {
					return err
				}
				rep, err := hyperlink.NewReporter(hyperlink.WithLogger(c.Logger)).Generate(ctx, m)
				if err != nil {
					return err
				}
				if csvPath != "" {
					if err := writeCSVReport(csvPath, rep); err != nil {
						return err
					}
				}
				if xlsxPath != "" {
					if err := rep.WriteXLSX(xlsxPath); err != nil {
						return fmt.Errorf("failed to write %s: %w", xlsxPath, err)
					}
				}
				return cli.WriteHyperlinks(cmd.OutOrStdout(), rep, format)
			})
		},
	}
	cmd.Flags().BoolVar(&includeDrafts, "include-drafts", false, "select unapproved documents when nothing better exists")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write the report as CSV to this path")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the report as a spreadsheet to this path")
	return cmd
}

func writeCSVReport(path string, rep *hyperlink.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := rep.WriteCSV(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var includeDrafts bool
	cmd := &cobra.Command{
		Use:   "validate <study>",
		Short: "Validate every file of a study package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, args[0], func(ctx context.Context, c *Components, st *models.Study, format cli.OutputFormat) error {
				m, err := c.Assembler.Assemble(ctx, st.ID, assembler.Options{IncludeDrafts: includeDrafts})
				if err != nil {
					return err
				}
				rep, err := c.Validator.ValidatePackage(ctx, m, nil)
				if err != nil {
					return err
				}
				if err := cli.WriteReport(cmd.OutOrStdout(), rep, format); err != nil {
					return err
				}
				if !rep.Valid {
					return fmt.Errorf("package has %d errors", rep.Summary.Errors)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeDrafts, "include-drafts", false, "select unapproved documents when nothing better exists")
	return cmd
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var (
		req         exporter.Request
		seqType     string
		noCover     bool
		description string
	)
	cmd := &cobra.Command{
		Use:   "export <study>",
		Short: "Build, validate and archive a submission sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Sequence.Type = backbone.SubmissionType(seqType)
			if seqType != "" && !req.Sequence.Type.Known() {
				return fmt.Errorf("unknown submission type %q", seqType)
			}
			req.Sequence.Description = description
			if noCover {
				cover := false
				req.CoverPage = &cover
			}
			if err := req.Validate(); err != nil {
				return err
			}
			return run(cmd, g, args[0], func(ctx context.Context, c *Components, st *models.Study, format cli.OutputFormat) error {
				res := c.Exporter.Export(ctx, st.ID, req)
				if err := cli.WriteExportResult(cmd.OutOrStdout(), res, format); err != nil {
					return err
				}
				if !res.Success {
					c.Logger.Debug("export failed", zap.String("study", st.StudyNumber), zap.String("error", res.Error))
					return fmt.Errorf("export failed: %s", res.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Sequence.Number, "sequence", backbone.InitialSequence, "four-digit sequence number")
	cmd.Flags().StringVar(&seqType, "type", "", "submission type (derived from the sequence when empty)")
	cmd.Flags().StringVar(&description, "description", "", "sequence description")
	cmd.Flags().StringVar(&req.Sequence.RelatedSequence, "related-sequence", "", "sequence this one amends")
	cmd.Flags().BoolVar(&req.IncludeDrafts, "drafts", false, "include unapproved documents")
	cmd.Flags().BoolVar(&noCover, "no-cover", false, "skip the generated cover page")
	cmd.Flags().BoolVar(&req.RemoveExternalLinks, "remove-external-links", false, "strip external hyperlinks from staged copies")
	cmd.Flags().BoolVar(&req.RemoveMailtoLinks, "remove-mailto-links", false, "strip mailto hyperlinks from staged copies")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ectd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ectd version %s\n", version)
		},
	}
}
