package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/haksik/internal/app/menurepo"
	"github.com/John-Robertt/haksik/internal/app/widget"
	"github.com/John-Robertt/haksik/internal/domain"
)

func (a *cli) newShowCmd() *cobra.Command {
	var (
		refresh   bool
		noPersist bool
	)
	cmd := &cobra.Command{
		Use:   "show [restaurant]",
		Short: "输出今天的菜单（stdout 非 TTY 时输出一个 JSON 快照）",
		Long: `输出今天的菜单。

restaurant 可选：student | professor | dining27 | dorm1（省略则输出全部）。
同一天内重复执行直接读缓存；--refresh 强制重新抓取。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := domain.AllRestaurants()
			if len(args) == 1 {
				id, err := domain.ParseRestaurantID(args[0])
				if err != nil {
					return err
				}
				ids = []domain.RestaurantID{id}
			}
			return a.show(cmd, ids, refresh, !noPersist)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "忽略今天的缓存，强制重新抓取")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "不读写磁盘缓存（仅本次进程内）")
	return cmd
}

func (a *cli) show(cmd *cobra.Command, ids []domain.RestaurantID, refresh, persist bool) error {
	e, err := a.loadEnv(persist)
	if err != nil {
		return err
	}

	var obs menurepo.Observer
	if w, interactive := a.pickProgressWriter(); interactive {
		obs = newProgressUI(w, e.catalog)
	}
	repo, err := e.repository(obs)
	if err != nil {
		return runtimeErr(err)
	}

	snap, err := repo.GetSnapshot(cmd.Context(), refresh)
	stale := false
	if err != nil {
		if !menurepo.IsRefreshError(err) {
			return runtimeErr(err)
		}
		fb, ok := repo.Fallback()
		if !ok {
			return runtimeErr(err)
		}
		e.log.Warn("menu refresh failed, showing last snapshot", "date", fb.CapturedDate, "err", err)
		snap, stale = fb, true
	}

	if a.isTTY(a.stdout) {
		printHuman(a.stdout, snap, ids, stale, repo.Today())
		return nil
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 JSON（日志/摘要走 stderr）。
	// 全部食堂输出完整 MenuSnapshot；指定单个食堂时输出该食堂的 RestaurantMenu。
	var out any = snap
	if len(ids) == 1 {
		out = snap.Menu(ids[0])
	}
	if err := json.NewEncoder(a.stdout).Encode(out); err != nil {
		return runtimeErr(err)
	}
	fmt.Fprintf(a.stderr, "完成：date=%s restaurants=%d stale=%v\n", snap.CapturedDate, len(ids), stale)
	return nil
}

func printHuman(w io.Writer, s domain.MenuSnapshot, ids []domain.RestaurantID, stale bool, today string) {
	if stale {
		fmt.Fprintf(w, "%s（今天 %s 抓取失败，显示最近一次结果）\n\n", s.CapturedDate, today)
	} else {
		fmt.Fprintf(w, "%s\n\n", s.CapturedDate)
	}
	for i, id := range ids {
		m := s.Menu(id)
		name := m.Name
		if name == "" {
			name = string(id)
		}
		fmt.Fprintf(w, "[%s]\n", name)
		for _, line := range widget.Lines(m.Meals) {
			fmt.Fprintf(w, "  %s\n", line)
		}
		if i < len(ids)-1 {
			fmt.Fprintln(w)
		}
	}
}
