package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/1broseidon/sashd/internal/event"
	"github.com/1broseidon/sashd/internal/ipc"
)

var focusCmd = &cobra.Command{
	Use:   "focus <app>",
	Short: "Focus an application's window",
	Long: `Focuses the window of the application matching the given name. The name
may be approximate: exact matches win, then prefix matches, then close
misspellings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := ipc.NewClient().Focus(args[0])
		if err != nil {
			return err
		}
		printMatch(result)
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <app> <x> <y>",
	Short: "Move an application's window",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid x: %s", args[1])
		}
		y, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid y: %s", args[2])
		}

		result, err := ipc.NewClient().Move(args[0], x, y)
		if err != nil {
			return err
		}
		printMatch(result)
		printGeometry(result)
		return nil
	},
}

var resizeCmd = &cobra.Command{
	Use:   "resize <app> <width> <height>",
	Short: "Resize an application's window",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		width, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid width: %s", args[1])
		}
		height, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid height: %s", args[2])
		}

		result, err := ipc.NewClient().Resize(args[0], width, height)
		if err != nil {
			return err
		}
		printMatch(result)
		printGeometry(result)
		return nil
	},
}

var maximizeCmd = &cobra.Command{
	Use:   "maximize <app>",
	Short: "Maximize an application's window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := ipc.NewClient().Maximize(args[0])
		if err != nil {
			return err
		}
		printMatch(result)
		return nil
	},
}

var moveDisplayCmd = &cobra.Command{
	Use:   "move-display <app> <display>",
	Short: "Move an application's window to another display",
	Long: `Moves the application's window to the named display. The display may be
given as an output name (e.g. HDMI-1) or an index.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := ipc.NewClient().MoveDisplay(args[0], args[1])
		if err != nil {
			return err
		}
		printMatch(result)
		printGeometry(result)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <app>",
	Short: "Show an application's window geometry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := ipc.NewClient().GetState(args[0])
		if err != nil {
			return err
		}
		printMatch(result)
		printGeometry(result)
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the most recent window action",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := ipc.NewClient().Undo()
		if err != nil {
			return err
		}
		fmt.Printf("undone: %s %q\n", data.Action, data.App)
		return nil
	},
}

var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Redo the most recently undone action",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := ipc.NewClient().Redo()
		if err != nil {
			return err
		}
		fmt.Printf("redone: %s %q\n", data.Action, data.App)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the action history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := ipc.NewClient().HistoryList()
		if err != nil {
			return err
		}
		if len(data.Records) == 0 {
			fmt.Println("history is empty")
			return nil
		}
		for i, rec := range data.Records {
			marker := " "
			if i == data.Cursor-1 {
				marker = "*" // next undo target
			}
			fmt.Printf("%s %s  %-12s %q\n", marker, rec.Ts.Local().Format("15:04:05"), rec.Kind, rec.App)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all recorded actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ipc.NewClient().HistoryClear(); err != nil {
			return err
		}
		fmt.Println("history cleared")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := ipc.NewClient().GetStatus()
		if err != nil {
			return err
		}
		fmt.Printf("daemon_running:  %v\n", status.DaemonRunning)
		fmt.Printf("uptime_seconds:  %d\n", status.UptimeSeconds)
		fmt.Printf("app_count:       %d\n", status.AppCount)
		fmt.Printf("subscribers:     %d\n", status.Subscribers)
		fmt.Printf("last_seq:        %d\n", status.LastSeq)
		fmt.Printf("history_enabled: %v\n", status.HistoryEnabled)
		fmt.Printf("undo_depth:      %d\n", status.UndoDepth)
		fmt.Printf("redo_depth:      %d\n", status.RedoDepth)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events [filter...]",
	Short: "Stream daemon events",
	Long: `Subscribes to the daemon event stream and prints each event as a JSON
line. Filters may be exact kinds (app.focused), dotted prefixes (app.*)
or "*"; no filter means all events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, f := range args {
			if len(event.ExpandFilters([]string{f})) == 0 {
				return fmt.Errorf("unknown event filter: %s", f)
			}
		}

		return ipc.NewClient().Subscribe(args, func(ev ipc.StreamEvent) error {
			if len(ev.Data) > 0 {
				fmt.Printf("%d %s %s %s\n", ev.Seq, ev.Ts.Local().Format("15:04:05"), ev.Kind, string(ev.Data))
			} else {
				fmt.Printf("%d %s %s\n", ev.Seq, ev.Ts.Local().Format("15:04:05"), ev.Kind)
			}
			return nil
		})
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func printMatch(data *ipc.ActionData) {
	switch data.MatchType {
	case "exact":
		fmt.Printf("%s (pid %d)\n", data.App, data.PID)
	case "prefix":
		fmt.Printf("%s (pid %d, prefix match)\n", data.App, data.PID)
	case "fuzzy":
		fmt.Printf("%s (pid %d, fuzzy match, distance %d)\n", data.App, data.PID, data.Distance)
	}
}

func printGeometry(data *ipc.ActionData) {
	g := data.Geometry
	if g == nil {
		return
	}
	if g.Display != "" {
		fmt.Printf("%dx%d at %d,%d on %s\n", g.Width, g.Height, g.X, g.Y, g.Display)
	} else {
		fmt.Printf("%dx%d at %d,%d\n", g.Width, g.Height, g.X, g.Y)
	}
}
