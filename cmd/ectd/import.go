package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/ectd/internal/cli"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
	"github.com/hyperjump/ectd/internal/storage"
)

// studyDefinition is the YAML document loaded by the import command.
type studyDefinition struct {
	Study     models.Study         `yaml:"study"`
	Template  templateDefinition   `yaml:"template"`
	Documents []documentDefinition `yaml:"documents"`
}

type templateDefinition struct {
	Name  string                 `yaml:"name"`
	Nodes []models.StructureNode `yaml:"nodes"`
}

type documentDefinition struct {
	Node        string                `yaml:"node"`
	SourcePath  string                `yaml:"source_path"`
	Version     int                   `yaml:"version"`
	Status      models.DocumentStatus `yaml:"status"`
	PageCount   *int                  `yaml:"page_count,omitempty"`
	Annotations []models.Annotation   `yaml:"annotations,omitempty"`
}

// Validate checks the definition before anything is written.
func (d *studyDefinition) Validate() error {
	if err := validation.ValidateStruct(&d.Study,
		validation.Field(&d.Study.StudyNumber, validation.Required),
		validation.Field(&d.Study.Title, validation.Required),
	); err != nil {
		return fmt.Errorf("study: %w", err)
	}
	if len(d.Template.Nodes) == 0 {
		return fmt.Errorf("template: at least one node is required")
	}
	codes := make(map[string]bool, len(d.Template.Nodes))
	for i, n := range d.Template.Nodes {
		if strings.TrimSpace(n.Code) == "" {
			return fmt.Errorf("template: node %d: code is required", i+1)
		}
		if codes[n.Code] {
			return fmt.Errorf("template: duplicate node code %s", n.Code)
		}
		codes[n.Code] = true
	}
	for i, doc := range d.Documents {
		err := validation.ValidateStruct(&doc,
			validation.Field(&doc.Node, validation.Required, validation.By(func(v interface{}) error {
				if !codes[v.(string)] {
					return fmt.Errorf("unknown node %s", v)
				}
				return nil
			})),
			validation.Field(&doc.SourcePath, validation.Required),
			validation.Field(&doc.Version, validation.Min(0)),
			validation.Field(&doc.Status, validation.By(func(v interface{}) error {
				if s := v.(models.DocumentStatus); s != "" && !s.Valid() {
					return fmt.Errorf("unknown status %s", s)
				}
				return nil
			})),
		)
		if err != nil {
			return fmt.Errorf("documents: %d: %w", i+1, err)
		}
	}
	return nil
}

func parseDefinition(data []byte) (*studyDefinition, error) {
	var def studyDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse study definition: %w", err)
	}
	if def.Template.Name == "" {
		def.Template.Name = "default"
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// importSummary reports what an import created.
type importSummary struct {
	StudyID     string `json:"study_id"`
	StudyNumber string `json:"study_number"`
	TemplateID  string `json:"template_id"`
	Nodes       int    `json:"nodes"`
	Documents   int    `json:"documents"`
	Annotations int    `json:"annotations"`
}

// importStudy writes def through seeder. Node parents are linked by code prefix; document
// sizes are read from files when the file store has them.
func importStudy(ctx context.Context, seeder storage.Seeder, files *storage.FileStore, def *studyDefinition) (*importSummary, error) {
	st := def.Study
	if err := seeder.CreateStudy(ctx, &st); err != nil {
		return nil, fmt.Errorf("failed to create study: %w", err)
	}
	tmpl := &models.Template{StudyID: st.ID, Name: def.Template.Name, Active: true}
	if err := seeder.CreateTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	sum := &importSummary{StudyID: st.ID, StudyNumber: st.StudyNumber, TemplateID: tmpl.ID}

	nodeIDs := make(map[string]string, len(def.Template.Nodes))
	for i := range def.Template.Nodes {
		n := def.Template.Nodes[i]
		n.ID = ""
		n.TemplateID = tmpl.ID
		if n.SortOrder == 0 {
			n.SortOrder = i + 1
		}
		n.ParentID = nil
		prefixes := naming.CodePrefixes(n.Code)
		for j := len(prefixes) - 2; j >= 0; j-- {
			if id, ok := nodeIDs[prefixes[j]]; ok {
				n.ParentID = &id
				break
			}
		}
		if err := seeder.CreateStructureNode(ctx, &n); err != nil {
			return nil, fmt.Errorf("failed to create node %s: %w", n.Code, err)
		}
		nodeIDs[n.Code] = n.ID
		sum.Nodes++
	}

	versions := make(map[string]int)
	for _, dd := range def.Documents {
		doc := &models.Document{
			StudyID:    st.ID,
			SlotID:     nodeIDs[dd.Node],
			SourcePath: dd.SourcePath,
			Version:    dd.Version,
			Status:     dd.Status,
			PageCount:  dd.PageCount,
		}
		if doc.Version == 0 {
			doc.Version = versions[dd.Node] + 1
		}
		versions[dd.Node] = max(versions[dd.Node], doc.Version)
		if files != nil {
			if info, err := files.Stat(dd.SourcePath); err == nil {
				doc.FileSize = info.Size()
			}
		}
		if err := seeder.CreateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to create document %s: %w", dd.SourcePath, err)
		}
		sum.Documents++
		for _, a := range dd.Annotations {
			a.ID = ""
			a.DocumentID = doc.ID
			if a.Type == "" {
				a.Type = models.AnnotationComment
			}
			if a.Status == "" {
				a.Status = models.AnnotationOpen
			}
			if err := seeder.CreateAnnotation(ctx, &a); err != nil {
				return nil, fmt.Errorf("failed to create annotation on %s: %w", dd.SourcePath, err)
			}
			sum.Annotations++
		}
	}
	return sum, nil
}

func newImportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <study.yaml>",
		Short: "Load a study, its template and documents from a YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			def, err := parseDefinition(data)
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer c.Close()
			sum, err := importStudy(cmd.Context(), c.Store, c.Files, def)
			if err != nil {
				return err
			}
			c.Logger.Info("study imported", zap.String("study", sum.StudyNumber), zap.Int("documents", sum.Documents))
			if format == cli.OutputJSON {
				return cli.WriteJSON(cmd.OutOrStdout(), sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported study %s (%s): %d nodes, %d documents, %d annotations\n",
				sum.StudyNumber, sum.StudyID, sum.Nodes, sum.Documents, sum.Annotations)
			return nil
		},
	}
}
