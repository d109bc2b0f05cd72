/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/config"
)

var twilight struct {
	observatory string
	date        string
}

var twilightCmd = &cobra.Command{
	Use:   "twilight",
	Short: "Print sunset, twilight and sunrise times for a night",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.ObservatoryFile
		if twilight.observatory != "" {
			path = twilight.observatory
		}
		obs, err := config.LoadObservatory(path)
		if err != nil {
			return err
		}
		date, err := nightDate(twilight.date, obs.Site)
		if err != nil {
			return err
		}

		eph := astro.NewAlmanac()
		loc := obs.Site.Location()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s, night of %s\n", obs.Site.Name, date.Format("2006-01-02"))

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tSUN ALT\tEVENING\tMORNING")
		for _, kind := range []astro.TwilightKind{astro.TwilightSunset, astro.TwilightCivil, astro.TwilightNautical, astro.TwilightAstronomical} {
			t, err := eph.TwilightTimes(date, obs.Site, kind)
			if err != nil {
				fmt.Fprintf(tw, "%s\t%.3f\t-\t-\n", kind, kind.SunAltitude())
				continue
			}
			fmt.Fprintf(tw, "%s\t%.3f\t%s\t%s\n", kind, kind.SunAltitude(),
				t.Evening.In(loc).Format("15:04:05"), t.Morning.In(loc).Format("15:04:05 MST"))
		}
		tw.Flush()

		midnight := astro.LocalNoon(date, obs.Site).Add(12 * time.Hour)
		if illum, err := eph.MoonIllumination(midnight); err == nil {
			fmt.Fprintf(out, "moon illumination at local midnight: %.0f%%\n", illum*100)
		}
		return nil
	},
}

func init() {
	twilightCmd.Flags().StringVar(&twilight.observatory, "observatory", "", "observatory YAML file (default $TELRUN_OBSERVATORY)")
	twilightCmd.Flags().StringVar(&twilight.date, "date", "", "local date, YYYY-MM-DD (default today)")
	rootCmd.AddCommand(twilightCmd)
}
