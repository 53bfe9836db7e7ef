package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/polgov/polgov/core/catalog"
	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/infra/bus"
	"github.com/polgov/polgov/core/infra/config"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/metrics"
	"github.com/polgov/polgov/core/linter"
	"github.com/polgov/polgov/core/patch"
	"github.com/polgov/polgov/core/policy"
	sdk "github.com/polgov/polgov/sdk/client"
)

const component = "polgov-linter"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "export":
		runExport(args)
	case "validate":
		runValidate(args)
	case "fix":
		runFix(args)
	case "apply-patch":
		runApplyPatch(args, false)
	case "apply-reverse-patch":
		runApplyPatch(args, true)
	default:
		usage()
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export")
	fs.ParseArgs(args)
	cfg := config.Load()

	client := newClient(fs, cfg)
	roles, err := client.ListRoles(context.Background())
	check(err)

	store, err := artifacts.NewFileStore(cfg.ExportDir())
	check(err)
	for _, role := range roles {
		check(store.Put(context.Background(), role.Key+".json", role, artifacts.Metadata{Kind: "custom-role"}))
	}
	logging.Info(component, "roles exported", "count", len(roles), "dir", cfg.ExportDir())
}

func runValidate(args []string) {
	fs := newFlagSet("validate")
	local := fs.String("local", "", "validate exported role files from a directory instead of the API")
	catalogPath := fs.String("catalog", "", "resource catalog path (default from CATALOG_PATH)")
	fs.ParseArgs(args)
	cfg := config.Load()

	cat := loadCatalog(cfg, *catalogPath)
	roles := loadRoles(fs, cfg, *local)

	report, err := linter.New(cat).WithMetrics(metrics.NewProm("polgov")).Validate(roles)
	check(err)

	store, err := artifacts.NewFileStore(cfg.OutputDir)
	check(err)
	check(store.Put(context.Background(), linter.ReportArtifact, report, artifacts.Metadata{Kind: "validation-report"}))

	publisher := newPublisher(cfg)
	defer publisher.Close()
	_ = publisher.Publish(bus.NewEvent(bus.SubjectValidation, "validation.run", map[string]any{
		"roles":         len(roles),
		"invalid_roles": len(report),
	}))

	printJSON(report)
	if len(report) > 0 {
		os.Exit(2)
	}
}

func runFix(args []string) {
	fs := newFlagSet("fix")
	local := fs.String("local", "", "validate exported role files from a directory instead of the API")
	catalogPath := fs.String("catalog", "", "resource catalog path (default from CATALOG_PATH)")
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.ParseArgs(args)
	cfg := config.Load()

	cat := loadCatalog(cfg, *catalogPath)
	roles := loadRoles(fs, cfg, *local)

	report, err := linter.New(cat).Validate(roles)
	check(err)
	if len(report) == 0 {
		fmt.Println("all role policies are valid, nothing to fix")
		return
	}
	fmt.Printf("%d role(s) carry invalid actions\n", len(report))
	if !confirm("generate patch artifacts?", *yes) {
		fail("aborted")
	}

	store, err := artifacts.NewFileStore(cfg.OutputDir)
	check(err)
	engine := patch.NewEngine(store).WithMetrics(metrics.NewProm("polgov"))
	result, err := engine.Fix(context.Background(), roles, report)
	check(err)

	publisher := newPublisher(cfg)
	defer publisher.Close()
	for _, key := range result.Fixed {
		_ = publisher.Publish(bus.NewEvent(bus.SubjectPatch, "patch.generated", map[string]any{"role": key}))
	}
	printJSON(result)
	if len(result.Failed) > 0 {
		os.Exit(2)
	}
}

func runApplyPatch(args []string, reverse bool) {
	name := "apply-patch"
	suffix := ".patch"
	wantType := patch.KindPolicyPatch
	if reverse {
		name = "apply-reverse-patch"
		suffix = ".reverse-patch"
		wantType = patch.KindReversePatch
	}
	fs := newFlagSet(name)
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("role key required")
	}
	roleKey := fs.Arg(0)
	cfg := config.Load()

	store, err := artifacts.NewFileStore(cfg.OutputDir)
	check(err)
	var doc patch.Document
	_, err = store.Get(context.Background(), roleKey+suffix, &doc)
	check(err)
	if doc.Type != wantType {
		fail(fmt.Sprintf("artifact %s%s is %q, expected %q", roleKey, suffix, doc.Type, wantType))
	}
	if doc.Key != roleKey {
		fail(fmt.Sprintf("artifact belongs to role %s", doc.Key))
	}

	fmt.Printf("about to apply %d operation(s) to role %s\n", len(doc.Patch), roleKey)
	if !confirm("apply to the live role?", *yes) {
		fail("aborted")
	}

	client := newClient(fs, cfg)
	check(client.UpdateRolePolicy(context.Background(), roleKey, doc.Patch))

	publisher := newPublisher(cfg)
	defer publisher.Close()
	eventType := "patch.applied"
	if reverse {
		eventType = "patch.reverted"
	}
	_ = publisher.Publish(bus.NewEvent(bus.SubjectPatch, eventType, map[string]any{"role": roleKey}))
	fmt.Println("done")
}

func loadCatalog(cfg *config.Config, override string) *catalog.Catalog {
	path := cfg.CatalogPath
	if override != "" {
		path = override
	}
	if _, err := os.Stat(path); err != nil {
		logging.Warn(component, "catalog file not found, using built-in defaults", "path", path)
		path = ""
	}
	cat, err := catalog.Load(path)
	check(err)
	return cat
}

func loadRoles(fs *flagSet, cfg *config.Config, localDir string) []*policy.Role {
	if localDir == "" {
		client := newClient(fs, cfg)
		roles, err := client.ListRoles(context.Background())
		check(err)
		return roles
	}
	entries, err := os.ReadDir(localDir)
	check(err)
	var roles []*policy.Role
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		// #nosec G304 -- CLI explicitly reads local files provided by the operator.
		data, err := os.ReadFile(filepath.Join(localDir, e.Name()))
		check(err)
		role, err := policy.ParseRole(data)
		check(err)
		roles = append(roles, role)
	}
	return roles
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
	fmt.Print(`polgov-linter - custom role policy validation and repair

Usage:
  polgov-linter export
  polgov-linter validate [--catalog path] [--local dir]
  polgov-linter fix [--catalog path] [--local dir] [--yes]
  polgov-linter apply-patch <role-key> [--yes]
  polgov-linter apply-reverse-patch <role-key> [--yes]

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
