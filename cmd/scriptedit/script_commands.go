package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zzdxppq/shop-video-scout/internal/editor"
	"github.com/zzdxppq/shop-video-scout/internal/script"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the script with local edits applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				out := cmd.OutOrStdout()
				if asJSON {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(coord.Session().Merged())
				}
				fmt.Fprintln(out, renderParagraphs(coord))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the merged {id, text} list as JSON")
	return cmd
}

func renderParagraphs(coord *editor.Coordinator) string {
	doc := coord.Document()
	rows := make([][]string, 0, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		info, _ := coord.CharCount(p.ID)
		mark := ""
		if coord.Session().IsEdited(p.ID) {
			mark = "*"
		}
		rows = append(rows, []string{
			mark,
			p.ID,
			p.Section,
			strconv.Itoa(p.ShotID),
			counterLabel(info),
			coord.CurrentText(p.ID),
		})
	}
	return renderTable(
		[]string{"", "ID", "Section", "Shot", "Chars", "Text"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show version, quota and unsaved paragraphs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				out := cmd.OutOrStdout()
				ctrl := coord.Controller()
				doc := coord.Document()
				edits := coord.Session().Edits()

				rows := [][]string{
					{"Task", strconv.FormatInt(taskID, 10)},
					{"Version", strconv.Itoa(ctrl.Version())},
					{"Paragraphs", strconv.Itoa(len(doc.Paragraphs))},
					{"Duration", fmt.Sprintf("%ds", doc.TotalDuration())},
					{"Regenerations left", strconv.Itoa(ctrl.RegenerateRemaining())},
					{"Unsaved paragraphs", strconv.Itoa(len(edits))},
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				for _, p := range doc.Paragraphs {
					if text, ok := edits[p.ID]; ok {
						fmt.Fprintf(out, "  * %s (%s): %s\n", p.ID, p.Section, preview(text, 40))
					}
				}

				if ok, problems := coord.ValidateAll(); !ok {
					for _, problem := range problems {
						printWarn(out, "invalid: %s", problem)
					}
				}
				if block, message := coord.BeforeUnload(); block {
					printWarn(out, "%s", message)
				}
				return nil
			})
		},
	}
}

func newEditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <task-id> <paragraph-id> <text|->",
		Short: "Replace a paragraph's text in the local draft",
		Long:  "Replace a paragraph's text in the local draft. Pass - to read the text from stdin. Nothing is sent to the server until save.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			text, err := readText(cmd, args[2])
			if err != nil {
				return err
			}
			if err := script.Validate(text); err != nil {
				return operationError(err)
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				if err := coord.StartEdit(args[1]); err != nil {
					return fmt.Errorf("paragraph %s: %w", args[1], err)
				}
				coord.UpdateBuffer(text)
				if err := coord.CommitEdit(); err != nil {
					return operationError(err)
				}
				info, _ := coord.CharCount(args[1])
				printOK(cmd.OutOrStdout(), "updated %s (%s), run `scriptedit save %d` to submit", args[1], counterLabel(info), taskID)
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id> <paragraph-id>",
		Short: "Restore a paragraph's server text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				if err := coord.StartEdit(args[1]); err != nil {
					return fmt.Errorf("paragraph %s: %w", args[1], err)
				}
				coord.CancelEdit()
				printOK(cmd.OutOrStdout(), "restored %s", args[1])
				return nil
			})
		},
	}
}

func newSaveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <task-id>",
		Short: "Submit local edits to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				out := cmd.OutOrStdout()
				if !coord.HasChanges() {
					fmt.Fprintln(out, "nothing to save")
					return nil
				}
				if !coord.Save(cmd.Context()) {
					err := coord.Controller().Err()
					if script.IsConflict(err) {
						if location, exportErr := ctx.rescueEdits(cmd, coord); exportErr == nil {
							printWarn(out, "your edits were written to %s; reapply them to the new version", location)
						} else {
							printWarn(out, "could not keep a copy of your edits: %v", exportErr)
						}
					}
					return operationError(err)
				}
				printOK(out, "saved version %d", coord.Controller().Version())
				return nil
			})
		},
	}
}

func newRegenerateCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "regenerate <task-id>",
		Short: "Replace the script with a newly generated one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				out := cmd.OutOrStdout()
				if coord.HasChanges() && !force {
					return fmt.Errorf("regenerating drops %d unsaved paragraphs; pass --force to continue", len(coord.Session().Edits()))
				}
				if !coord.Regenerate(cmd.Context()) {
					return operationError(coord.Controller().Err())
				}
				printOK(out, "regenerated, version %d, %d regenerations left", coord.Controller().Version(), coord.Controller().RegenerateRemaining())
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Drop unsaved edits without asking")
	return cmd
}

func newDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <task-id>",
		Short: "Drop every local edit and the draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				dropped := len(coord.Session().Edits())
				coord.Discard(cmd.Context())
				printOK(cmd.OutOrStdout(), "discarded %d unsaved paragraphs", dropped)
				return nil
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <task-id>",
		Short: "List stored versions of the script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			entries, err := ctx.client().History(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					strconv.Itoa(entry.Version),
					entry.Reason,
					entry.Author,
					strconv.Itoa(len(entry.Changed)),
					entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					entry.Hash,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Version", "Reason", "Author", "Changed", "When", "Commit"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <task-id> <paragraphs.json|->",
		Short: "Create a task's first script version from a JSON paragraph list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			var data []byte
			if args[1] == "-" {
				text, err := readText(cmd, "-")
				if err != nil {
					return err
				}
				data = []byte(text)
			} else if data, err = os.ReadFile(args[1]); err != nil {
				return fmt.Errorf("read paragraphs: %w", err)
			}

			var paragraphs []script.Paragraph
			if err := json.Unmarshal(data, &paragraphs); err != nil {
				return fmt.Errorf("decode paragraphs: %w", err)
			}
			doc, err := ctx.client().SeedScript(cmd.Context(), taskID, paragraphs)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "created script for task %d with %d paragraphs", taskID, len(doc.Paragraphs))
			return nil
		},
	}
}
