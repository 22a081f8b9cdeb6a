package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive project dashboard",
	Long: `Interactive project dashboard.

Keys:
  j/k      move             n  new project
  u        replace file     d  delete
  enter/a  analysis         r  refresh
  q        quit

Logs are discarded unless logging.file is set, since the dashboard owns the
terminal.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, io.Discard)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := notify.NewBus()
	nav := tui.NewNavigator()
	a, err := newApp(ctx, cfg, logger, bus, nav)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.NewModel(ctx, tui.Deps{
		ServerURL: cfg.Server.BaseURL,
		Gate:      a.gate,
		Store:     a.store,
		Wizard:    a.wizard,
		Replace:   a.replace,
		Deletion:  a.deletion,
		Analyzer:  a.client,
		Bus:       bus,
		Navigator: nav,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
