/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/telrun/internal/analytics"
	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/catalog"
	"github.com/friendsincode/telrun/internal/condition"
	"github.com/friendsincode/telrun/internal/config"
	"github.com/friendsincode/telrun/internal/db"
	"github.com/friendsincode/telrun/internal/eventbus"
	"github.com/friendsincode/telrun/internal/models"
	"github.com/friendsincode/telrun/internal/optimizer"
	"github.com/friendsincode/telrun/internal/priority"
	"github.com/friendsincode/telrun/internal/queue"
	"github.com/friendsincode/telrun/internal/schedule"
	"github.com/friendsincode/telrun/internal/scheduler"
	"github.com/friendsincode/telrun/internal/scheduling"
)

var plan struct {
	catalog     string
	observatory string
	date        string
	output      string
	execute     string
	optimizer   string
	persist     bool
	publish     bool
	fullNight   bool
	ignoreOrder bool

	maxSunAltitude float64
	elevation      float64
	airmass        float64
	moonSeparation float64
	resolution     time.Duration
	gapTime        time.Duration
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build tonight's schedule from a catalog",
	Long: `Build a schedule for one night and export it.

The window runs from local noon to the next local noon at the site, clipped
to the evening and morning twilight of the configured maximum Sun altitude.

Block groups declared in the catalog are scheduled one after another, each
continuing where the previous one stopped. --ignore-order merges them.

Examples:
  schedtel plan --catalog blocks.yaml --observatory observatory.yaml
  schedtel plan --catalog blocks.yaml --date 2024-10-02 --output tonight.ecsv
  schedtel plan --catalog blocks.yaml --persist --publish`,
	RunE: runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVarP(&plan.catalog, "catalog", "c", "", "YAML catalog of observers, projects and blocks")
	f.StringVar(&plan.observatory, "observatory", "", "observatory YAML file (default $TELRUN_OBSERVATORY)")
	f.StringVar(&plan.date, "date", "", "local date of the night, YYYY-MM-DD (default today at the site)")
	f.StringVarP(&plan.output, "output", "o", "", "also write the schedule to this file (.ecsv or .json)")
	f.StringVar(&plan.execute, "telrun-execute", "", "directory receiving exported schedules (default $TELRUN_OUTPUT_DIR)")
	f.StringVar(&plan.optimizer, "optimizer", "", "priority or firstfit (default $TELRUN_OPTIMIZER)")
	f.BoolVar(&plan.persist, "persist", false, "save the run to the database")
	f.BoolVar(&plan.publish, "publish", false, "forward events to the configured event bus")
	f.BoolVar(&plan.fullNight, "full-night", false, "schedule noon to noon without clipping to twilight")
	f.BoolVar(&plan.ignoreOrder, "ignore-order", false, "schedule all block groups as a single group")
	f.Float64Var(&plan.maxSunAltitude, "max-sun-altitude", 0, "maximum Sun altitude in degrees")
	f.Float64Var(&plan.elevation, "elevation", 0, "minimum target elevation in degrees")
	f.Float64Var(&plan.airmass, "airmass", 0, "maximum airmass")
	f.Float64Var(&plan.moonSeparation, "moon-separation", 0, "minimum Moon separation in degrees")
	f.DurationVar(&plan.resolution, "resolution", 0, "optimizer time resolution")
	f.DurationVar(&plan.gapTime, "gap-time", 0, "maximum time a single transition may take")
	_ = planCmd.MarkFlagRequired("catalog")
	rootCmd.AddCommand(planCmd)
}

// groupQueues builds one queue per non-empty catalog group, or a single
// queue of every block when ignoreOrder is set.
func groupQueues(cat *catalog.Catalog, ignoreOrder bool) []*queue.Queue {
	groups := cat.Groups
	if ignoreOrder {
		groups = []catalog.Group{{Blocks: cat.Blocks}}
	}
	var out []*queue.Queue
	for _, g := range groups {
		if len(g.Blocks) == 0 {
			continue
		}
		q := queue.New()
		for _, r := range q.AddAll(g.Blocks) {
			logger.Warn().Str("block_id", r.BlockID).Str("group", g.Name).Err(r.Err).Msg("block not queued")
		}
		out = append(out, q)
	}
	return out
}

// applyPlanFlags lets explicit flags override environment configuration.
func applyPlanFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("max-sun-altitude") {
		cfg.MaxSunAltitude = plan.maxSunAltitude
	}
	if f.Changed("elevation") {
		cfg.MinElevation = plan.elevation
	}
	if f.Changed("airmass") {
		cfg.MaxAirmass = plan.airmass
	}
	if f.Changed("moon-separation") {
		cfg.MinMoonSeparation = plan.moonSeparation
	}
	if f.Changed("resolution") {
		cfg.Resolution = plan.resolution
	}
	if f.Changed("gap-time") {
		cfg.GapTime = plan.gapTime
	}
	if plan.observatory != "" {
		cfg.ObservatoryFile = plan.observatory
	}
	if plan.execute != "" {
		cfg.OutputDir = plan.execute
	}
	if plan.optimizer != "" {
		cfg.Optimizer = plan.optimizer
	}
	return cfg.Validate()
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := applyPlanFlags(cmd); err != nil {
		return err
	}

	obs, err := config.LoadObservatory(cfg.ObservatoryFile)
	if err != nil {
		return err
	}
	site := obs.Site

	cat, err := catalog.LoadFile(plan.catalog)
	if err != nil {
		return err
	}
	for _, r := range cat.Rejected {
		logger.Warn().Str("section", r.Section).Int("index", r.Index).Str("id", r.ID).Err(r.Err).Msg("catalog entry rejected")
	}

	groups := groupQueues(cat, plan.ignoreOrder)

	date, err := nightDate(plan.date, site)
	if err != nil {
		return err
	}
	eph := astro.NewAlmanac()
	window := nightWindow(eph, date, site, cfg.MaxSunAltitude, !plan.fullNight)

	opt, err := optimizer.New(cfg.Optimizer, optimizer.Env{
		Ephemeris:   eph,
		Site:        site,
		Transitions: obs.CostModel(cfg.GapTime),
	})
	if err != nil {
		return err
	}

	var bus *eventbus.Bus
	if plan.publish {
		if bus, err = eventbus.New(cfg, logger); err != nil {
			return err
		}
	} else {
		bus = eventbus.Local(logger)
	}
	defer bus.Close()

	sched := scheduler.New(scheduler.Config{
		SiteName:      site.Name,
		Step:          cfg.Resolution,
		MaxIterations: cfg.MaxIterations,
		Global:        condition.Global(cfg.Limits()),
	}, opt, priority.NewFairShare(), cat.Directory, logger)
	sched.SetPublisher(bus)

	res, runErr := sched.RunGroups(ctx, window, groups)
	if res == nil {
		return runErr
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("scheduling aborted; exporting partial schedule")
	}

	result := scheduling.NewValidator(logger).Validate(res.Schedule)
	for _, v := range result.Errors {
		logger.Error().Str("rule", string(v.Rule)).Msg(v.Message)
	}

	if err := exportRun(ctx, site.Name, res, bus); err != nil {
		return err
	}
	if plan.output != "" {
		if err := writeScheduleFile(plan.output, schedule.NewRun(site.Name, res), res.Schedule); err != nil {
			return err
		}
	}

	printSummary(cmd.OutOrStdout(), analytics.Summarize(res.Schedule, cat.Directory), res, site)
	if runErr != nil {
		return runErr
	}
	if !result.Valid {
		return errors.New("schedule failed validation")
	}
	return nil
}

// nightDate parses a local date at the site; empty means today.
func nightDate(s string, site astro.Site) (time.Time, error) {
	loc := site.Location()
	if s == "" {
		return time.Now().In(loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// twilightFor picks the deepest standard twilight not darker than maxSunAlt.
func twilightFor(maxSunAlt float64) astro.TwilightKind {
	for _, k := range []astro.TwilightKind{astro.TwilightAstronomical, astro.TwilightNautical, astro.TwilightCivil} {
		if maxSunAlt <= k.SunAltitude() {
			return k
		}
	}
	return astro.TwilightSunset
}

// nightWindow spans local noon to the next local noon, optionally clipped to
// twilight. Polar days and nights keep the full span.
func nightWindow(eph astro.Ephemeris, date time.Time, site astro.Site, maxSunAlt float64, clip bool) models.Window {
	noon := astro.LocalNoon(date, site)
	w := models.Window{Start: noon, End: noon.Add(24 * time.Hour)}
	if !clip {
		return w
	}
	tw, err := eph.TwilightTimes(date, site, twilightFor(maxSunAlt))
	if err != nil {
		logger.Warn().Err(err).Msg("no twilight crossing; scheduling noon to noon")
		return w
	}
	return models.Window{Start: tw.Evening.Truncate(time.Second), End: tw.Morning.Truncate(time.Second)}
}

func exportRun(ctx context.Context, siteName string, res *scheduler.Result, bus *eventbus.Bus) error {
	objects, err := openObjectStore(ctx)
	if err != nil {
		return err
	}
	var store *schedule.Store
	if plan.persist {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close(database)
		store = schedule.NewStore(database, logger)
	}

	exporter := schedule.NewExporter(store, objects, logger)
	exporter.SetPublisher(bus)
	if err := exporter.Export(ctx, schedule.NewRun(siteName, res), res.Schedule); err != nil {
		return err
	}
	if store != nil {
		if rc := openCache(); rc != nil {
			defer rc.Close()
			if err := rc.InvalidateRun(ctx, res.RunID); err != nil {
				logger.Warn().Err(err).Msg("stale cached views may remain")
			}
		}
	}
	return nil
}

func writeScheduleFile(path string, run *models.ScheduleRun, s *models.Schedule) error {
	var buf bytes.Buffer
	rows := schedule.Rows(s)
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = schedule.WriteJSON(&buf, schedule.MetaFor(run), rows)
	} else {
		err = schedule.WriteECSV(&buf, schedule.MetaFor(run), rows)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info().Str("path", path).Int("rows", len(rows)).Msg("schedule written")
	return nil
}

func printSummary(out io.Writer, sum *analytics.Summary, res *scheduler.Result, site astro.Site) {
	loc := site.Location()
	fmt.Fprintf(out, "run %s (%s)\n", res.RunID, res.State)
	fmt.Fprintf(out, "window %s - %s\n", sum.Window.Start.In(loc).Format("2006-01-02 15:04"), sum.Window.End.In(loc).Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(out, "placed %d, rejected %d, expired %d; utilization %.0f%%, idle %.0f%%, transitions %.0f%%\n",
		len(res.Placed), len(res.Rejected), len(res.Expired), sum.Utilization*100, sum.IdleFraction*100, sum.TransitionOverhead*100)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tKIND\tBLOCK\tTARGET")
	for _, e := range res.Schedule.Entries {
		target := ""
		if t := e.Block.Target(); t != nil {
			target = t.Name
		}
		label := e.Block.Name
		if label == "" {
			label = e.Block.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Start.In(loc).Format("15:04:05"), e.End.In(loc).Format("15:04:05"), e.Block.Kind, label, target)
	}
	tw.Flush()

	if len(sum.Projects) > 0 {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PROJECT\tBLOCKS\tALLOCATED\tSHARE")
		for _, p := range sum.Projects {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f%%\n", p.ProjectID, p.Blocks, p.Allocated.Round(time.Second), p.Share*100)
		}
		tw.Flush()
	}
}
