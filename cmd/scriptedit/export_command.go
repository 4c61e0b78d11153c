package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zzdxppq/shop-video-scout/internal/editor"
	"github.com/zzdxppq/shop-video-scout/internal/export"
	"github.com/zzdxppq/shop-video-scout/internal/logging"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		format  string
		outDir  string
		title   string
		toMinIO bool
	)

	cmd := &cobra.Command{
		Use:   "export <task-id>",
		Short: "Render the script with local edits to md, html, pdf or docx",
		Long: "Render the script with local edits applied. Unsaved edits are included, " +
			"so a rejected save can be exported before the draft is discarded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			outFormat, err := export.ParseFormat(format)
			if err != nil {
				return fmt.Errorf("%w: %q", err, format)
			}

			var sink export.Sink = export.FileSink{Dir: outDir}
			if toMinIO {
				cfg := ctx.config
				minioSink, err := export.NewMinIOSink(export.MinIOConfig{
					Endpoint:  cfg.MinIOEndpoint,
					AccessKey: cfg.MinIOAccessKey,
					SecretKey: cfg.MinIOSecretKey,
					Bucket:    cfg.MinIOBucket,
					UseSSL:    cfg.MinIOUseSSL,
				})
				if err != nil {
					return err
				}
				sink = minioSink
			}

			service := export.NewService(export.WithLogger(logging.NewComponentLogger(ctx.logger, "export")))
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				name := strings.TrimSpace(title)
				if name == "" {
					name = fmt.Sprintf("task-%d-v%d", taskID, coord.Controller().Version())
				}
				snap := export.NewSnapshot(coord.Document(), coord, name, time.Now())
				result, err := service.Export(cmd.Context(), snap, outFormat)
				if err != nil {
					return err
				}
				location, err := sink.Put(cmd.Context(), taskID, result)
				if err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "exported %d paragraphs (%d unsaved) to %s", len(snap.Paragraphs), snap.EditedCount(), location)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format: md, html, pdf or docx")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write the export to")
	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to task and version)")
	cmd.Flags().BoolVar(&toMinIO, "minio", false, "Upload to the configured MinIO bucket instead of a directory")
	return cmd
}

// rescueEdits writes the merged view to the draft directory as Markdown.
// The next open drops a draft written against an older version, so this
// copy is what survives a rejected save.
func (c *commandContext) rescueEdits(cmd *cobra.Command, coord *editor.Coordinator) (string, error) {
	name := fmt.Sprintf("conflict-task-%d-v%d-%s", coord.TaskID(), coord.Controller().Version(), time.Now().Format("20060102-150405"))
	snap := export.NewSnapshot(coord.Document(), coord, name, time.Now())
	service := export.NewService(export.WithLogger(logging.NewComponentLogger(c.logger, "export")))
	result, err := service.Export(cmd.Context(), snap, export.FormatMarkdown)
	if err != nil {
		return "", err
	}
	return export.FileSink{Dir: c.config.DraftDir}.Put(cmd.Context(), coord.TaskID(), result)
}
