package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/nexidian/gocliselect"
	"go.uber.org/zap"
)

// WeekChooser asks the user to pick one of weeks.
type WeekChooser func(weeks []string, current string) (string, error)

type App struct {
	opts    Options
	verbose bool

	cfg        *Config
	fetcher    ProjectFetcher
	repo       *Repo
	logger     *zap.Logger
	out        io.Writer
	now        func() time.Time
	getenv     func(string) string
	chooseWeek WeekChooser
}

func NewApp() *App {
	return &App{
		out:        os.Stdout,
		now:        time.Now,
		getenv:     os.Getenv,
		chooseWeek: menuWeekChooser,
	}
}

// loads config and builds what the commands need. needAPI also validates
// the board settings and creates the GraphQL client.
func (a *App) init(needAPI bool) error {
	if a.logger == nil {
		logger, err := newLogger(a.verbose)
		if err != nil {
			return err
		}
		a.logger = logger
	}

	if a.cfg == nil {
		cfg, err := LoadConfig(a.opts, a.getenv)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	if !needAPI {
		return nil
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if a.fetcher == nil {
		a.fetcher = NewAPIClient(a.cfg.Endpoint, a.cfg.Token)
	}
	return nil
}

// opens the history database if one is configured
func (a *App) openRepo() error {
	if a.repo != nil || a.cfg.HistoryDB == "" {
		return nil
	}
	repo, err := NewRepo(a.cfg.HistoryDB)
	if err != nil {
		return err
	}
	a.repo = repo
	return nil
}

func (a *App) Close() {
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("error closing history database", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// fetches every item of the board
func (a *App) fetchItems(ctx context.Context) ([]*BoardItem, error) {
	a.logger.Debug("fetching project",
		zap.String("owner", a.cfg.Owner),
		zap.String("owner_type", a.cfg.OwnerType),
		zap.Int("number", a.cfg.Number),
	)

	project, err := a.fetcher.FetchProject(ctx, a.cfg.Owner, a.cfg.OwnerType, a.cfg.Number)
	if err != nil {
		return nil, fmt.Errorf("error fetching project %s/%d: %w", a.cfg.Owner, a.cfg.Number, err)
	}

	a.logger.Info("fetched project",
		zap.String("title", project.Title),
		zap.Int("items", len(project.Items.Nodes)),
	)
	return project.Items.Nodes, nil
}

// Sync rewrites the README schedule block for the target week. It returns
// whether the file changed.
func (a *App) Sync(ctx context.Context) (bool, error) {
	startedAt := a.now()
	week := TargetWeek(a.cfg.Week, startedAt)

	items, err := a.fetchItems(ctx)
	if err != nil {
		return false, err
	}

	rows := BuildRows(items, week, a.cfg.Fields)
	block := RenderBlock(rows, a.cfg.Note)
	a.logger.Debug("rendered schedule", zap.String("week", week), zap.Int("rows", len(rows)))

	changed, err := PatchFile(a.cfg.ReadmePath, a.cfg.StartMarker, a.cfg.EndMarker, block)
	if err != nil {
		return false, err
	}

	if changed {
		fmt.Fprintf(a.out, "Updated %s for week %s\n", a.cfg.ReadmePath, week)
	} else {
		fmt.Fprintln(a.out, "No changes")
	}

	a.recordRun(&Run{
		Week:      week,
		Owner:     a.cfg.Owner,
		Number:    a.cfg.Number,
		Rows:      len(rows),
		Changed:   changed,
		StartedAt: startedAt,
		Duration:  a.now().Sub(startedAt),
	})

	return changed, nil
}

// history is best effort, a broken database never fails a sync
func (a *App) recordRun(run *Run) {
	if a.cfg.HistoryDB == "" {
		return
	}
	if err := a.openRepo(); err != nil {
		a.logger.Warn("history disabled", zap.String("path", a.cfg.HistoryDB), zap.Error(err))
		return
	}
	if err := a.repo.RecordRun(run); err != nil {
		a.logger.Warn("error recording run", zap.Error(err))
		return
	}
	a.logger.Debug("recorded run", zap.String("id", run.ID))
}

// Preview prints the block a sync would write, without touching the README.
func (a *App) Preview(ctx context.Context, pretty bool) error {
	week := TargetWeek(a.cfg.Week, a.now())

	items, err := a.fetchItems(ctx)
	if err != nil {
		return err
	}

	return a.printBlock(BuildRows(items, week, a.cfg.Fields), pretty)
}

// PickWeek lets the user choose one of the weeks on the board and previews it.
func (a *App) PickWeek(ctx context.Context, pretty bool) error {
	items, err := a.fetchItems(ctx)
	if err != nil {
		return err
	}

	weeks := Weeks(items, a.cfg.Fields)
	if len(weeks) == 0 {
		return errors.New("no item on the board has a week or a date")
	}

	week, err := a.chooseWeek(weeks, TargetWeek(a.cfg.Week, a.now()))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Week %s\n\n", week)
	return a.printBlock(BuildRows(items, week, a.cfg.Fields), pretty)
}

func (a *App) printBlock(rows []Row, pretty bool) error {
	block := RenderBlock(rows, a.cfg.Note)
	if !pretty {
		_, err := io.WriteString(a.out, block)
		return err
	}

	rendered, err := glamour.Render(block, "dark")
	if err != nil {
		return fmt.Errorf("error rendering preview: %w", err)
	}
	_, err = io.WriteString(a.out, rendered)
	return err
}

// History prints the latest recorded runs.
func (a *App) History(limit int) error {
	if a.cfg.HistoryDB == "" {
		return &ConfigError{Field: "history_db", Msg: "set --history-db or COURSESYNC_HISTORY_DB"}
	}
	if err := a.openRepo(); err != nil {
		return err
	}

	runs, err := a.repo.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("error listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "No runs recorded")
		return nil
	}

	headers := []string{"Started", "Week", "Project", "Rows", "Changed", "Duration"}

	var rows [][]string
	changedCount := 0
	for _, run := range runs {
		changed := "no"
		if run.Changed {
			changed = "yes"
			changedCount++
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format("Jan 02, 2006 15:04:05"),
			run.Week,
			fmt.Sprintf("%s/%d", run.Owner, run.Number),
			fmt.Sprintf("%d", run.Rows),
			changed,
			FormatDuration(run.Duration),
		})
	}

	footers := []string{"", "", "", "Updated:", fmt.Sprintf("%d/%d", changedCount, len(runs)), ""}
	PrintTable(a.out, headers, rows, footers)
	return nil
}

type weekMenuItem struct {
	label string
	week  string
}

// menu entries for weeks, the current week is listed first
func weekMenuItems(weeks []string, current string) []weekMenuItem {
	items := make([]weekMenuItem, 0, len(weeks))
	for _, w := range weeks {
		if w == current {
			items = append(items, weekMenuItem{label: w + " (current)", week: w})
		}
	}
	for _, w := range weeks {
		if w != current {
			items = append(items, weekMenuItem{label: w, week: w})
		}
	}
	return items
}

// choiceWeek turns the menu result into a week. Escape yields an empty choice.
func choiceWeek(choice any, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("error choosing week: %w", err)
	}
	week, _ := choice.(string)
	if week == "" {
		return "", errors.New("no week selected")
	}
	return week, nil
}

func menuWeekChooser(weeks []string, current string) (string, error) {
	menu := gocliselect.NewMenu("Choose a week")
	for _, item := range weekMenuItems(weeks, current) {
		menu.AddItem(item.label, item.week)
	}
	return choiceWeek(menu.Display())
}
