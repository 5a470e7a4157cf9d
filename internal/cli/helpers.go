package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/caisson-io/caisson/internal/decl"
	"github.com/caisson-io/caisson/internal/engine"
	"github.com/caisson-io/caisson/internal/ir"
	"github.com/caisson-io/caisson/internal/provider"
	"github.com/caisson-io/caisson/internal/state"
	"github.com/caisson-io/caisson/providers/aws"
	"github.com/caisson-io/caisson/providers/docker"
	"github.com/caisson-io/caisson/providers/null"
)

// builtinProviders maps provider names to their factories. The registry
// instantiates and configures them on first use.
func builtinProviders() map[string]provider.Factory {
	return map[string]provider.Factory{
		"null":   null.New,
		"docker": docker.New,
		"aws":    aws.New,
	}
}

// workspace bundles everything a command needs against one declaration
// directory.
type workspace struct {
	dir        string
	cfg        *ir.Config
	configHash string
	registry   *provider.Registry
	engine     *engine.Engine
	store      state.Store
}

// openWorkspace resolves the optional [dir] argument, decodes the
// declaration, and wires up the registry, engine, and state store.
func openWorkspace(ctx context.Context, args []string) (*workspace, error) {
	dir, err := resolveDir(args)
	if err != nil {
		return nil, err
	}

	cfg, configHash, err := decl.Load(dir)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(builtinProviders())
	for name, settings := range cfg.Providers {
		registry.SetSettings(name, settings)
	}

	store, err := state.NewStore(ctx, cfg.Backend, dir)
	if err != nil {
		return nil, err
	}

	return &workspace{
		dir:        dir,
		cfg:        cfg,
		configHash: configHash,
		registry:   registry,
		engine:     engine.New(registry),
		store:      store,
	}, nil
}

func resolveDir(args []string) (string, error) {
	if len(args) == 0 {
		return ".", nil
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", args[0])
	}
	return abs, nil
}

// loadRequiredProviders loads every provider the declaration references.
func loadRequiredProviders(ctx context.Context, registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, r := range cfg.Resources {
		if r.Provider != "" && !seen[r.Provider] {
			seen[r.Provider] = true
			if err := registry.Load(ctx, r.Provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadStateProviders loads providers referenced only by snapshot entries,
// which deletes and refreshes still need.
func loadStateProviders(ctx context.Context, registry *provider.Registry, snap *ir.Snapshot) error {
	seen := make(map[string]bool)
	for _, rs := range snap.Resources {
		if rs.Provider != "" && !seen[rs.Provider] {
			seen[rs.Provider] = true
			if err := registry.Load(ctx, rs.Provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// Plan rendering

func renderPlan(plan *ir.Plan) {
	if plan.Empty() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return
	}

	fmt.Println("Caisson will perform the following actions:")
	for _, a := range plan.Actions {
		// The delete half of a replace renders with its create half.
		if a.Replace && a.Op == ir.OpDelete {
			continue
		}
		renderAction(a)
	}

	s := plan.Summary()
	fmt.Printf("\nPlan: %d to add, %d to change, %d to destroy.\n",
		s.Create+s.Replace, s.Update, s.Delete+s.Replace)
}

func renderAction(a *ir.Action) {
	c, symbol, verb := actionStyle(a)
	resourceType, resourceName := splitAddress(a.Address)

	fmt.Println()
	c.Printf("  # %s will be %s\n", a.Address, verb)
	c.Printf("  %s resource %q %q {\n", symbol, resourceType, resourceName)
	for _, key := range decl.SortedKeys(a.Diff) {
		renderAttribute(key, a.Diff[key])
	}
	c.Println("    }")
}

func actionStyle(a *ir.Action) (*color.Color, string, string) {
	switch {
	case a.Replace:
		return color.New(color.FgYellow), "-/+", "replaced"
	case a.Op == ir.OpCreate:
		return color.New(color.FgGreen), "+", "created"
	case a.Op == ir.OpUpdate:
		return color.New(color.FgYellow), "~", "updated in-place"
	default:
		return color.New(color.FgRed), "-", "destroyed"
	}
}

func renderAttribute(key string, d *ir.AttributeDiff) {
	switch {
	case d.Before == nil && (d.After != nil || d.Unknown):
		color.Green("      + %s = %s", key, formatAfter(d))
	case d.After == nil && !d.Unknown:
		color.Red("      - %s = %s", key, formatBefore(d))
	default:
		suffix := ""
		if d.ForcesReplacement {
			suffix = " (forces replacement)"
		}
		color.Yellow("      ~ %s = %s -> %s%s", key, formatBefore(d), formatAfter(d), suffix)
	}
}

func formatAfter(d *ir.AttributeDiff) string {
	if d.Sensitive {
		return "(sensitive value)"
	}
	if d.Unknown {
		return "(known after apply)"
	}
	return formatValue(d.After)
}

func formatBefore(d *ir.AttributeDiff) string {
	if d.Sensitive {
		return "(sensitive value)"
	}
	return formatValue(d.Before)
}

// formatValue renders a value the way it would appear in a declaration.
// JSON keeps map keys sorted, which keeps the rendering stable.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func splitAddress(addr string) (resourceType, resourceName string) {
	for i := 0; i < len(addr); i++ {
		if addr[i] == '.' {
			return addr[:i], addr[i+1:]
		}
	}
	return addr, ""
}

// Apply rendering

func renderApplyEvent(ev engine.ApplyEvent) {
	progress, noun := opLabel(ev.Op)
	switch ev.Status {
	case "started":
		fmt.Printf("%s: %s...\n", ev.Address, progress)
	case "applied":
		color.Green("%s: %s complete after %s", ev.Address, noun, fmtDuration(ev.Duration))
	case "failed":
		color.Red("%s: %s failed after %s: %v", ev.Address, noun, fmtDuration(ev.Duration), ev.Err)
	case "skipped":
		color.Yellow("%s: Skipped (%s)", ev.Address, ev.Reason)
	}
}

func opLabel(op ir.Op) (progress, noun string) {
	switch op {
	case ir.OpCreate:
		return "Creating", "Creation"
	case ir.OpUpdate:
		return "Modifying", "Modification"
	default:
		return "Destroying", "Destruction"
	}
}

func fmtDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func renderOutputs(cfg *ir.Config, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	fmt.Println("\nOutputs:")
	for _, name := range decl.SortedKeys(outputs) {
		if outputIsSensitive(cfg, name) {
			fmt.Printf("  %s = (sensitive)\n", name)
			continue
		}
		fmt.Printf("  %s = %s\n", name, formatValue(outputs[name]))
	}
}

func outputIsSensitive(cfg *ir.Config, name string) bool {
	for _, o := range cfg.Outputs {
		if o.Name == name {
			return o.Sensitive
		}
	}
	return false
}

func confirm(prompt string) bool {
	fmt.Printf("%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}

// Plan files

func savePlanFile(path string, plan *ir.Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}

func loadPlanFile(path string) (*ir.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan ir.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%s is not a valid plan file: %w", path, err)
	}
	return &plan, nil
}
