package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/polgov/polgov/core/directory"
	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/infra/bus"
	"github.com/polgov/polgov/core/infra/config"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/metrics"
	"github.com/polgov/polgov/core/policy"
	"github.com/polgov/polgov/core/teams"
	"github.com/polgov/polgov/core/template"
	sdk "github.com/polgov/polgov/sdk/client"
)

const component = "polgov-teams"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "analyze":
		runAnalyze(args)
	case "coverage":
		runCoverage(args)
	case "suggest":
		runSuggest(args)
	case "distribution":
		runDistribution(args)
	case "generate":
		runGenerate(args)
	case "apply":
		runApply(args)
	default:
		usage()
		os.Exit(1)
	}
}

func runAnalyze(args []string) {
	fs := newFlagSet("analyze")
	templateFiles := multiFlag(fs, "template", "template role file (repeatable)")
	remoteKeys := multiFlag(fs, "remote", "remote template role key (repeatable)")
	fs.ParseArgs(args)
	cfg := config.Load()

	templates := loadTemplates(fs, cfg, *templateFiles, *remoteKeys)
	if len(templates) == 0 {
		fail("at least one --template or --remote is required")
	}

	analysis := map[string]map[string][]string{}
	for _, tmpl := range templates {
		patterns, err := template.Discover(tmpl)
		check(err)
		byKey := map[string][]string{}
		for key, matchers := range patterns {
			for _, m := range matchers {
				byKey[key] = append(byKey[key], m.String())
			}
		}
		analysis[tmpl.Key] = byKey
	}
	printJSON(analysis)
}

func runCoverage(args []string) {
	fs := newFlagSet("coverage")
	templateFiles := multiFlag(fs, "template", "template role file (repeatable)")
	remoteKeys := multiFlag(fs, "remote", "remote template role key (repeatable)")
	refresh := fs.Bool("refresh", false, "refetch the directory snapshot")
	export := fs.Bool("export", false, "write the report to the output directory")
	fs.ParseArgs(args)
	cfg := config.Load()

	snap := loadSnapshot(fs, cfg, *refresh)
	now := time.Now().UTC()

	report := map[string]any{
		"coverage_report":   teams.BuildCoverageReport(snap, now),
		"role_distribution": teams.RoleDistribution(snap),
		"suggestions":       teams.SuggestRoleAssignments(snap),
	}
	templates := loadTemplates(fs, cfg, *templateFiles, *remoteKeys)
	if len(templates) > 0 {
		cov, err := teams.AnalyzeCoverage(snap, templates)
		check(err)
		report["template_coverage"] = cov
	}

	if *export {
		store, err := artifacts.NewFileStore(cfg.OutputDir)
		check(err)
		name := fmt.Sprintf("team_coverage_report_%s.json", artifacts.Timestamp(now))
		check(store.Put(context.Background(), name, report, artifacts.Metadata{Kind: "team-coverage-report", CreatedAt: now}))
		logging.Info(component, "coverage report exported", "artifact", name)
	}
	printJSON(report)
}

func runSuggest(args []string) {
	fs := newFlagSet("suggest")
	refresh := fs.Bool("refresh", false, "refetch the directory snapshot")
	fs.ParseArgs(args)
	cfg := config.Load()

	snap := loadSnapshot(fs, cfg, *refresh)
	printJSON(teams.SuggestRoleAssignments(snap))
}

func runDistribution(args []string) {
	fs := newFlagSet("distribution")
	refresh := fs.Bool("refresh", false, "refetch the directory snapshot")
	fs.ParseArgs(args)
	cfg := config.Load()

	snap := loadSnapshot(fs, cfg, *refresh)
	printJSON(teams.RoleDistribution(snap))
}

func runGenerate(args []string) {
	fs := newFlagSet("generate")
	templateFiles := multiFlag(fs, "template", "template role file (repeatable)")
	remoteKeys := multiFlag(fs, "remote", "remote template role key (repeatable)")
	teamKeys := multiFlag(fs, "team", "team key (repeatable, default all teams)")
	refresh := fs.Bool("refresh", false, "refetch the directory snapshot")
	fs.ParseArgs(args)
	cfg := config.Load()

	templates := loadTemplates(fs, cfg, *templateFiles, *remoteKeys)
	if len(templates) == 0 {
		fail("at least one --template or --remote is required")
	}
	snap := loadSnapshot(fs, cfg, *refresh)

	store, err := artifacts.NewFileStore(cfg.OutputDir)
	check(err)
	composer := teams.NewComposer(store).WithMetrics(metrics.NewProm("polgov"))
	outcomes := composer.ComposeAll(context.Background(), snap, *teamKeys, templates)

	publisher := newPublisher(cfg)
	defer publisher.Close()
	failed := 0
	for _, out := range outcomes {
		if out.Status == teams.StatusComposed {
			_ = publisher.Publish(bus.NewEvent(bus.SubjectTeamPatch, "teampatch.composed", map[string]any{
				"team": out.TeamKey, "artifact": out.Artifact,
			}))
		}
		if out.Status == teams.StatusFailed {
			failed++
		}
	}
	printJSON(outcomes)
	if failed > 0 {
		os.Exit(2)
	}
}

func runApply(args []string) {
	fs := newFlagSet("apply")
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("team key required")
	}
	teamKey := fs.Arg(0)
	cfg := config.Load()

	store, err := artifacts.NewFileStore(cfg.OutputDir)
	check(err)
	name, err := teams.Latest(context.Background(), store, teamKey)
	check(err)
	fmt.Printf("about to apply %s to team %s\n", name, teamKey)
	if !confirm("apply to the live team?", *yes) {
		fail("aborted")
	}

	client := newClient(fs, cfg)
	applied, err := teams.Apply(context.Background(), store, client, teamKey)
	check(err)

	publisher := newPublisher(cfg)
	defer publisher.Close()
	_ = publisher.Publish(bus.NewEvent(bus.SubjectTeamPatch, "teampatch.applied", map[string]any{
		"team": teamKey, "instructions": len(applied.Instructions),
	}))
	fmt.Println("done")
}

// loadSnapshot serves the cached directory snapshot when fresh, refetching
// through the API otherwise. A missing Redis is not fatal; the snapshot is
// just fetched every run.
func loadSnapshot(fs *flagSet, cfg *config.Config, refresh bool) *directory.Snapshot {
	store, err := directory.NewSnapshotStore(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		logging.Warn(component, "snapshot cache unavailable", "err", err)
		store = nil
	} else {
		defer store.Close()
	}

	ctx := context.Background()
	if store != nil && !refresh {
		snap, err := store.Load(ctx)
		if err == nil {
			logging.Info(component, "using cached snapshot", "age", snap.Age(time.Now().UTC()).Round(time.Minute))
			return snap
		}
		if !errors.Is(err, directory.ErrNoSnapshot) {
			check(err)
		}
	}

	client := newClient(fs, cfg)
	snap, err := client.FetchSnapshot(ctx)
	check(err)
	if store != nil {
		if err := store.Save(ctx, snap); err != nil {
			logging.Warn(component, "snapshot cache write failed", "err", err)
		}
	}
	return snap
}

// loadTemplates reads template roles from local files and fetches remote
// ones by key, caching remote fetches under the template directory.
func loadTemplates(fs *flagSet, cfg *config.Config, files, remoteKeys []string) []*policy.Role {
	var templates []*policy.Role
	for _, file := range files {
		// #nosec G304 -- CLI explicitly reads local files provided by the operator.
		data, err := os.ReadFile(file)
		check(err)
		tmpl, err := policy.ParseRole(data)
		check(err)
		templates = append(templates, tmpl)
	}
	if len(remoteKeys) == 0 {
		return templates
	}

	client := newClient(fs, cfg)
	cache, err := artifacts.NewFileStore(cfg.TemplateDir())
	check(err)
	for _, key := range remoteKeys {
		tmpl, err := client.GetRole(context.Background(), key)
		check(err)
		name := fmt.Sprintf("%s_%s.json", key, artifacts.Timestamp(time.Now().UTC()))
		if err := cache.Put(context.Background(), name, tmpl, artifacts.Metadata{Kind: "template"}); err != nil {
			logging.Warn(component, "template cache write failed", "template", key, "err", err)
		}
		templates = append(templates, tmpl)
	}
	return templates
}

type flagSet struct {
	*flag.FlagSet
	apiURL *string
	apiKey *string
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	apiURL := fs.String("api-url", "", "account API base url (default from POLGOV_API_URL)")
	apiKey := fs.String("api-key", "", "account API key (default from POLGOV_API_KEY)")
	return &flagSet{FlagSet: fs, apiURL: apiURL, apiKey: apiKey}
}

func (fs *flagSet) ParseArgs(args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
}

func multiFlag(fs *flagSet, name, help string) *[]string {
	var values []string
	fs.Func(name, help, func(v string) error {
		values = append(values, v)
		return nil
	})
	return &values
}

func newClient(fs *flagSet, cfg *config.Config) *sdk.Client {
	apiURL := cfg.APIBaseURL
	if *fs.apiURL != "" {
		apiURL = *fs.apiURL
	}
	apiKey := cfg.APIKey
	if *fs.apiKey != "" {
		apiKey = *fs.apiKey
	}
	return sdk.New(strings.TrimRight(apiURL, "/"), apiKey)
}

func newPublisher(cfg *config.Config) bus.Publisher {
	nb, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		logging.Warn(component, "nats unavailable, events disabled", "err", err)
		return bus.Noop{}
	}
	return nb
}

func confirm(prompt string, yes bool) bool {
	if yes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	check(err)
	fmt.Println(string(data))
}

func usage() {
	fmt.Print(`polgov-teams - team patch composition and application

Usage:
  polgov-teams analyze (--template file | --remote key)...
  polgov-teams coverage [--template file]... [--remote key]... [--refresh] [--export]
  polgov-teams suggest [--refresh]
  polgov-teams distribution [--refresh]
  polgov-teams generate (--template file | --remote key)... [--team key]... [--refresh]
  polgov-teams apply <team-key> [--yes]

Global flags:
  --api-url   Account API base URL (default from POLGOV_API_URL)
  --api-key   Account API key (default from POLGOV_API_KEY)
`)
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
