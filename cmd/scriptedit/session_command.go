package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zzdxppq/shop-video-scout/internal/editor"
	"github.com/zzdxppq/shop-video-scout/internal/script"
)

const sessionHelp = `commands:
  :edit <id>   focus a paragraph; following lines become its text
  :enter       commit the focused paragraph (Enter)
  :esc         restore the focused paragraph (Escape)
  :undo        undo the last change (Ctrl+Z)
  :show        print the script
  :status      print unsaved and invalid paragraphs
  :save        submit the script
  :regen       regenerate the script
  :reload      fetch the script again
  :quit        leave (:quit! drops unsaved edits from the prompt)`

func newSessionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "session <task-id>",
		Short: "Edit a script interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, taskID, func(coord *editor.Coordinator) error {
				s := &editSession{ctx: ctx, cmd: cmd, coord: coord, out: cmd.OutOrStdout()}
				return s.run(cmd.InOrStdin())
			})
		},
	}
}

type editSession struct {
	ctx   *commandContext
	cmd   *cobra.Command
	coord *editor.Coordinator
	out   io.Writer
	// fresh is set after :edit until the first text line replaces the buffer.
	fresh bool
}

func (s *editSession) run(in io.Reader) error {
	fmt.Fprintln(s.out, renderParagraphs(s.coord))
	fmt.Fprintln(s.out, "type :help for commands")

	scanner := bufio.NewScanner(in)
	for {
		s.prompt()
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, ":") {
			s.text(line)
			continue
		}
		if quit := s.command(strings.Fields(line[1:])); quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if block, message := s.coord.BeforeUnload(); block {
		printWarn(s.out, "%s Edits are kept in the local draft.", message)
	}
	return nil
}

func (s *editSession) prompt() {
	state, id := s.coord.State()
	if state == editor.Editing {
		info, _ := s.coord.CharCount(id)
		fmt.Fprintf(s.out, "[%s %s]> ", id, counterLabel(info))
		return
	}
	fmt.Fprint(s.out, "> ")
}

func (s *editSession) text(line string) {
	if state, _ := s.coord.State(); state != editor.Editing {
		printWarn(s.out, "not editing; use :edit <id> first")
		return
	}
	if s.fresh {
		s.coord.UpdateBuffer(line)
		s.fresh = false
		return
	}
	s.coord.InsertNewline()
	s.coord.UpdateBuffer(s.coord.Buffer() + line)
}

func (s *editSession) command(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	ctx := s.cmd.Context()
	switch fields[0] {
	case "help", "h":
		fmt.Fprintln(s.out, sessionHelp)
	case "edit", "e":
		if len(fields) != 2 {
			printWarn(s.out, "usage: :edit <id>")
			return false
		}
		if err := s.coord.StartEdit(fields[1]); err != nil {
			printError(s.out, "%s: %v", fields[1], err)
			return false
		}
		s.fresh = true
		fmt.Fprintln(s.out, s.coord.Buffer())
	case "enter":
		s.key(editor.Key{Name: editor.KeyEnter})
	case "esc":
		s.key(editor.Key{Name: editor.KeyEscape})
	case "undo":
		s.key(editor.Key{Name: editor.KeyZ, Ctrl: true})
		if state, _ := s.coord.State(); state == editor.Editing {
			fmt.Fprintln(s.out, s.coord.Buffer())
		}
	case "show":
		fmt.Fprintln(s.out, renderParagraphs(s.coord))
	case "status":
		edits := s.coord.Session().Edits()
		fmt.Fprintf(s.out, "version %d, %d unsaved, %d regenerations left\n",
			s.coord.Controller().Version(), len(edits), s.coord.Controller().RegenerateRemaining())
		if ok, problems := s.coord.ValidateAll(); !ok {
			for _, problem := range problems {
				printWarn(s.out, "invalid: %s", problem)
			}
		}
	case "save":
		if s.coord.Save(ctx) {
			printOK(s.out, "saved version %d", s.coord.Controller().Version())
		} else {
			s.reportError()
		}
	case "regen":
		if s.coord.Regenerate(ctx) {
			s.fresh = false
			printOK(s.out, "regenerated, %d left", s.coord.Controller().RegenerateRemaining())
			fmt.Fprintln(s.out, renderParagraphs(s.coord))
		} else {
			s.reportError()
		}
	case "reload":
		if err := s.coord.Reload(ctx); err != nil {
			printError(s.out, "%v", operationError(err))
			return false
		}
		s.fresh = false
		fmt.Fprintln(s.out, renderParagraphs(s.coord))
	case "quit", "q":
		if block, message := s.coord.BeforeUnload(); block {
			printWarn(s.out, "%s Use :quit! to leave, edits stay in the local draft.", message)
			return false
		}
		return true
	case "quit!", "q!":
		return true
	default:
		printWarn(s.out, "unknown command :%s", fields[0])
	}
	return false
}

func (s *editSession) key(key editor.Key) {
	handled, err := s.coord.HandleKey(key)
	switch {
	case err != nil:
		printError(s.out, "%v", operationError(err))
	case !handled:
		printWarn(s.out, "nothing to do")
	default:
		s.fresh = false
	}
}

func (s *editSession) reportError() {
	err := s.coord.Controller().Err()
	printError(s.out, "%v", operationError(err))
	if script.IsConflict(err) {
		if location, rescueErr := s.ctx.rescueEdits(s.cmd, s.coord); rescueErr == nil {
			printWarn(s.out, "your edits were written to %s; :reload to fetch the new version", location)
		}
	}
	s.coord.Controller().ClearError()
}
