package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/models"
	"github.com/pario-ai/evalview/pkg/render"
)

func newBrowseCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Interactive results browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, opts)
		},
	}
}

// browser is one interactive session's command state.
type browser struct {
	a   *app
	out io.Writer

	mu        sync.Mutex
	models    []string
	runs      []string
	questions []string
}

func runBrowse(cmd *cobra.Command, opts *globalOpts) error {
	b := &browser{}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "evalview> ",
		HistoryFile:     filepath.Join(filepath.Dir(opts.configPath), ".evalview_history"),
		AutoComplete:    b.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// Background renders go through readline so the prompt is redrawn.
	b.out = rl.Stdout()
	b.a, err = openApp(cmd, opts, b.out)
	if err != nil {
		return err
	}
	defer b.a.Close()

	ctx := cmd.Context()
	fmt.Fprintf(b.out, "evalview %s (backend: %s)\n", version, b.a.cfg.API.BaseURL)
	fmt.Fprintln(b.out, "Type help for commands, quit to exit")
	fmt.Fprintln(b.out)

	_ = b.a.session.Home(ctx)
	b.loadSelectors(ctx)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := b.handle(ctx, line); quit {
			break
		}
	}
	return nil
}

func (b *browser) loadSelectors(ctx context.Context) {
	runs, questions, err := b.a.session.Selectors(ctx)
	if err != nil {
		b.a.logger.Warn("load selectors", "error", err)
		return
	}
	entries, err := b.a.session.Leaderboard(ctx)
	if err != nil {
		b.a.logger.Warn("load model names", "error", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs = b.runs[:0]
	for _, r := range runs {
		b.runs = append(b.runs, r.ID)
	}
	b.questions = b.questions[:0]
	for _, q := range questions {
		b.questions = append(b.questions, q.ID)
	}
	b.models = b.models[:0]
	for _, e := range entries {
		b.models = append(b.models, e.Model)
	}
	sort.Strings(b.models)
}

func (b *browser) names(pick func() []string) func(string) []string {
	return func(string) []string {
		b.mu.Lock()
		defer b.mu.Unlock()
		return append([]string(nil), pick()...)
	}
}

func (b *browser) completer() *readline.PrefixCompleter {
	modelsFn := b.names(func() []string { return b.models })
	runsFn := b.names(func() []string { return b.runs })
	questionsFn := b.names(func() []string { return b.questions })

	return readline.NewPrefixCompleter(
		readline.PcItem("home"),
		readline.PcItem("open", readline.PcItemDynamic(modelsFn, readline.PcItemDynamic(runsFn))),
		readline.PcItem("q", readline.PcItemDynamic(questionsFn)),
		readline.PcItem("back"),
		readline.PcItem("refresh"),
		readline.PcItem("regen", readline.PcItemDynamic(questionsFn)),
		readline.PcItem("fix", readline.PcItemDynamic(questionsFn)),
		readline.PcItem("reeval", readline.PcItemDynamic(questionsFn)),
		readline.PcItem("exec", readline.PcItemDynamic(questionsFn)),
		readline.PcItem("pin", readline.PcItemDynamic(modelsFn, readline.PcItemDynamic(runsFn))),
		readline.PcItem("unpin", readline.PcItemDynamic(modelsFn)),
		readline.PcItem("compare", readline.PcItemDynamic(runsFn)),
		readline.PcItem("cancel"),
		readline.PcItem("ops"),
		readline.PcItem("jobs"),
		readline.PcItem("history"),
		readline.PcItem("cache"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// handle runs one REPL command and reports whether to exit.
func (b *browser) handle(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command, args := strings.ToLower(parts[0]), parts[1:]
	s := b.a.session

	var err error
	switch command {
	case "quit", "exit":
		return true

	case "help":
		printBrowseHelp(b.out)

	case "home":
		_ = s.Home(ctx)

	case "open":
		if len(args) == 0 {
			err = errors.New("usage: open <model> [run]")
			break
		}
		run := ""
		if len(args) > 1 {
			run = args[1]
		}
		if run, err = b.a.resolveRun(ctx, args[0], run); err == nil {
			_ = s.Show(ctx, models.ModelDetails(args[0], run))
		}

	case "q":
		if len(args) == 0 {
			err = errors.New("usage: q <question-id> [version]")
			break
		}
		var key models.CacheKey
		if key, err = b.currentKey(); err == nil {
			view := models.ResponseView(key.ModelName, args[0], key.RunID)
			if len(args) > 1 {
				view = view.WithVersion(args[1])
			}
			_ = s.Show(ctx, view)
		}

	case "back":
		var ok bool
		if ok, err = s.Back(ctx); err == nil && !ok {
			b.a.term.Println("Already at the first view.")
		}

	case "refresh":
		_ = s.Refresh(ctx)

	case "regen", "fix", "reeval", "exec":
		err = b.mutate(ctx, command, args)

	case "pin":
		if len(args) < 2 {
			err = errors.New("usage: pin <model> <run>")
			break
		}
		s.Pin(ctx, args[0], args[1])

	case "unpin":
		if len(args) == 0 {
			err = errors.New("usage: unpin <model>")
			break
		}
		s.Unpin(ctx, args[0])

	case "compare":
		if len(args) < 2 {
			err = errors.New("usage: compare <run> <run>...")
			break
		}
		s.StartComparison(ctx, args, nil)

	case "cancel":
		if len(args) == 0 {
			err = errors.New("usage: cancel <job-id>")
			break
		}
		err = s.CancelJob(ctx, args[0])

	case "ops":
		b.a.term.OperationsPanel(s.Operations())

	case "jobs":
		var buf bytes.Buffer
		render.WriteJobs(&buf, s.Jobs(), time.Now())
		b.a.term.Println(strings.TrimRight(buf.String(), "\n"))

	case "history":
		b.printHistory()

	case "cache":
		var buf bytes.Buffer
		render.WriteCacheStats(&buf, s.CacheStats(), -1)
		b.a.term.Println(strings.TrimRight(buf.String(), "\n"))

	default:
		err = fmt.Errorf("unknown command: %s (type help for commands)", command)
	}

	if err != nil {
		b.a.term.Println("Error:", err)
	}
	return false
}

// mutate starts a tracked mutation. The question defaults to the one on
// screen.
func (b *browser) mutate(ctx context.Context, command string, args []string) error {
	key, err := b.currentKey()
	if err != nil {
		return err
	}
	qid := ""
	if len(args) > 0 {
		qid = args[0]
	} else if cur := b.a.session.Current(); cur.Kind == models.ViewResponse {
		qid = cur.QuestionID
	}
	if qid == "" {
		return fmt.Errorf("usage: %s <question-id>", command)
	}

	kinds := map[string]models.OperationKind{
		"regen":  models.OpRegenerate,
		"fix":    models.OpFix,
		"reeval": models.OpReevaluate,
		"exec":   models.OpExecute,
	}
	b.a.startMutation(ctx, kinds[command], key.RunID, key.ModelName, qid)
	return nil
}

func (b *browser) currentKey() (models.CacheKey, error) {
	key, ok := b.a.session.Current().CacheKey()
	if !ok {
		return models.CacheKey{}, errors.New("open a model first")
	}
	return key, nil
}

func (b *browser) printHistory() {
	hist := b.a.session.History()
	var sb strings.Builder
	for i, v := range hist {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, v)
	}
	fmt.Fprintf(&sb, "> %s", b.a.session.Current())
	b.a.term.Println(sb.String())
}

func printBrowseHelp(w io.Writer) {
	help := `
Commands:
  home                     Show the leaderboard and clear history
  open <model> [run]       Show a model's results
  q <question> [version]   Show a response for the open model
  back                     Return to the previous view
  refresh                  Reload the current view from the backend
  regen|fix|reeval [q]     Regenerate, fix or re-evaluate a response
  exec [q]                 Run the code in a response
  pin <model> <run>        Pin a model's leaderboard run
  unpin <model>            Clear a model's pinned run
  compare <run> <run>...   Start a comparative job
  cancel <job>             Cancel a comparative job
  ops                      Show running and recent operations
  jobs                     Show watched comparative jobs
  history                  Show navigation history
  cache                    Show cache statistics
  quit                     Exit

Tips:
  - Mutations run in the background; results appear when they finish
  - Tab completion works for models, runs and questions
`
	_, _ = fmt.Fprintln(w, help)
}
