package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/haksik/internal/infra/cache"
)

func (a *cli) newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "theme [light|dark]",
		Short: "查看或设置主题偏好",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var want cache.Theme
			if len(args) == 1 {
				t, err := cache.ParseTheme(args[0])
				if err != nil {
					return err
				}
				want = t
			}

			e, err := a.loadEnv(true)
			if err != nil {
				return err
			}
			if want != "" {
				if err := e.cache.SetTheme(want); err != nil {
					return runtimeErr(err)
				}
				fmt.Fprintln(a.stdout, want)
				return nil
			}

			t, err := e.cache.Theme()
			if err != nil {
				e.log.Warn("theme read failed, using default", "err", err)
			}
			fmt.Fprintln(a.stdout, t)
			return nil
		},
	}
}
