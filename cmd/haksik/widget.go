package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/haksik/internal/app/widget"
	"github.com/John-Robertt/haksik/internal/domain"
)

// newWidgetCmd 以一次性进程模拟小组件宿主：先投递 update，再按需投递 click 切换食堂。
func (a *cli) newWidgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "widget [restaurant]",
		Short: "输出小组件视图（stdout 非 TTY 时输出一个 JSON View）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target domain.RestaurantID
			if len(args) == 1 {
				id, err := domain.ParseRestaurantID(args[0])
				if err != nil {
					return err
				}
				target = id
			}

			e, err := a.loadEnv(true)
			if err != nil {
				return err
			}
			repo, err := e.repository(nil)
			if err != nil {
				return runtimeErr(err)
			}
			h := widget.New(repo, e.catalog, e.cache, e.log)

			view, _, err := h.Handle(cmd.Context(), widget.Event{Action: widget.ActionUpdate})
			if err != nil {
				return runtimeErr(err)
			}
			if target != "" {
				if view, _, err = h.Handle(cmd.Context(), widget.Event{Action: widget.ActionClick, ClickData: string(target)}); err != nil {
					return runtimeErr(err)
				}
			}

			if a.isTTY(a.stdout) {
				printView(a, view)
				return nil
			}
			if err := json.NewEncoder(a.stdout).Encode(view); err != nil {
				return runtimeErr(err)
			}
			return nil
		},
	}
}

func printView(a *cli, v widget.View) {
	head := v.Title
	if v.Date != "" {
		head += " · " + v.Date
	}
	fmt.Fprintf(a.stdout, "%s [%s]\n", head, v.Theme)
	fmt.Fprintln(a.stdout, strings.Repeat("-", 24))
	for _, l := range v.Lines {
		fmt.Fprintln(a.stdout, l)
	}
}
