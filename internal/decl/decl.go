// Package decl loads HCL declaration files and decodes them into the ir
// model. References between resources are extracted here, once, from the
// expression traversals; downstream components consume the typed edges and
// never re-scan attribute values.
package decl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/caisson-io/caisson/internal/ir"
)

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "resource", LabelNames: []string{"type", "name"}},
		{Type: "provider", LabelNames: []string{"name"}},
		{Type: "backend", LabelNames: []string{"type"}},
		{Type: "output", LabelNames: []string{"name"}},
	},
}

var resourceSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "lifecycle"},
	},
}

type lifecycleBlock struct {
	CreateBeforeDestroy bool     `hcl:"create_before_destroy,optional"`
	PreventDestroy      bool     `hcl:"prevent_destroy,optional"`
	IgnoreChanges       []string `hcl:"ignore_changes,optional"`
}

type outputBlock struct {
	Value     hcl.Expression `hcl:"value"`
	Sensitive bool           `hcl:"sensitive,optional"`
}

// Load reads the declaration at path. A directory loads every *.hcl file in
// lexical order; a file loads just that file. The returned hash covers the
// raw bytes of everything loaded, for plan staleness checks.
func Load(path string) (*ir.Config, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read declaration: %w", err)
	}

	var files []string
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.hcl"))
		if err != nil {
			return nil, "", err
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, "", fmt.Errorf("no .hcl files in %s", path)
		}
	} else {
		files = []string{path}
	}

	parser := hclparse.NewParser()
	hash := sha256.New()
	var bodies []hcl.Body
	for _, name := range files {
		src, err := os.ReadFile(name)
		if err != nil {
			return nil, "", err
		}
		hash.Write([]byte(filepath.Base(name)))
		hash.Write(src)
		f, diags := parser.ParseHCL(src, name)
		if diags.HasErrors() {
			return nil, "", diags
		}
		bodies = append(bodies, f.Body)
	}

	cfg, err := decode(bodies)
	if err != nil {
		return nil, "", err
	}
	return cfg, hex.EncodeToString(hash.Sum(nil)), nil
}

func decode(bodies []hcl.Body) (*ir.Config, error) {
	cfg := &ir.Config{
		Providers: map[string]map[string]string{},
	}
	seen := map[string]hcl.Range{}
	var diags hcl.Diagnostics

	index := 0
	for _, body := range bodies {
		content, contentDiags := body.Content(rootSchema)
		diags = append(diags, contentDiags...)

		for _, block := range content.Blocks {
			switch block.Type {
			case "resource":
				res, resDiags := decodeResource(block, index)
				diags = append(diags, resDiags...)
				if res == nil {
					continue
				}
				if prev, dup := seen[res.Addr()]; dup {
					diags = append(diags, &hcl.Diagnostic{
						Severity: hcl.DiagError,
						Summary:  "Duplicate resource",
						Detail:   fmt.Sprintf("%s was already declared at %s.", res.Addr(), prev),
						Subject:  &block.DefRange,
					})
					continue
				}
				seen[res.Addr()] = block.DefRange
				cfg.Resources = append(cfg.Resources, res)
				index++

			case "provider":
				settings, setDiags := decodeSettings(block.Body)
				diags = append(diags, setDiags...)
				cfg.Providers[block.Labels[0]] = settings

			case "backend":
				if cfg.Backend != nil {
					diags = append(diags, &hcl.Diagnostic{
						Severity: hcl.DiagError,
						Summary:  "Duplicate backend block",
						Detail:   "Only one backend block is allowed.",
						Subject:  &block.DefRange,
					})
					continue
				}
				settings, setDiags := decodeSettings(block.Body)
				diags = append(diags, setDiags...)
				cfg.Backend = &ir.Backend{Type: block.Labels[0], Settings: settings}

			case "output":
				var out outputBlock
				diags = append(diags, gohcl.DecodeBody(block.Body, nil, &out)...)
				cfg.Outputs = append(cfg.Outputs, &ir.Output{
					Name:      block.Labels[0],
					Value:     out.Value,
					Sensitive: out.Sensitive,
					DeclRange: block.DefRange,
				})
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}
	return cfg, nil
}

func decodeResource(block *hcl.Block, index int) (*ir.Resource, hcl.Diagnostics) {
	res := &ir.Resource{
		Type:      block.Labels[0],
		Name:      block.Labels[1],
		Provider:  ir.ProviderForType(block.Labels[0]),
		Attrs:     map[string]hcl.Expression{},
		DeclRange: block.DefRange,
		Index:     index,
	}

	content, remain, diags := block.Body.PartialContent(resourceSchema)
	for _, lc := range content.Blocks {
		var lb lifecycleBlock
		diags = append(diags, gohcl.DecodeBody(lc.Body, nil, &lb)...)
		res.Lifecycle = ir.Lifecycle{
			CreateBeforeDestroy: lb.CreateBeforeDestroy,
			PreventDestroy:      lb.PreventDestroy,
			IgnoreChanges:       lb.IgnoreChanges,
		}
	}

	attrs, attrDiags := remain.JustAttributes()
	diags = append(diags, attrDiags...)

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := attrs[name]
		if name == "depends_on" {
			deps, depDiags := decodeDependsOn(attr)
			diags = append(diags, depDiags...)
			res.DependsOn = deps
			continue
		}
		res.Attrs[name] = attr.Expr
		for _, trav := range attr.Expr.Variables() {
			ref, refDiags := referenceFromTraversal(trav, name)
			diags = append(diags, refDiags...)
			if ref != nil {
				res.References = append(res.References, *ref)
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}
	return res, diags
}

// decodeDependsOn accepts a list of bare resource addresses, e.g.
// depends_on = [aws_vpc.main].
func decodeDependsOn(attr *hcl.Attribute) ([]string, hcl.Diagnostics) {
	exprs, diags := hcl.ExprList(attr.Expr)
	if diags.HasErrors() {
		return nil, diags
	}
	var deps []string
	for _, expr := range exprs {
		trav, travDiags := hcl.AbsTraversalForExpr(expr)
		diags = append(diags, travDiags...)
		if travDiags.HasErrors() {
			continue
		}
		addr, ok := traversalAddr(trav)
		if !ok {
			rng := expr.Range()
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid depends_on entry",
				Detail:   "Entries must be resource addresses of the form type.name.",
				Subject:  &rng,
			})
			continue
		}
		deps = append(deps, addr)
	}
	return deps, diags
}

// referenceFromTraversal turns aws_vpc.main.id into a typed reference edge.
// Single-step traversals are rejected; there is no variable scope besides
// resources.
func referenceFromTraversal(trav hcl.Traversal, sourceAttr string) (*ir.Reference, hcl.Diagnostics) {
	rng := trav.SourceRange()
	addr, ok := traversalAddr(trav)
	if !ok {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid reference",
			Detail:   fmt.Sprintf("%q does not name a resource output; expected type.name.attribute.", trav.RootName()),
			Subject:  &rng,
		}}
	}
	ref := &ir.Reference{
		TargetAddr: addr,
		SourceAttr: sourceAttr,
		Range:      rng,
	}
	if len(trav) > 2 {
		if step, isAttr := trav[2].(hcl.TraverseAttr); isAttr {
			ref.Attr = step.Name
		}
	}
	return ref, nil
}

func traversalAddr(trav hcl.Traversal) (string, bool) {
	if len(trav) < 2 {
		return "", false
	}
	step, ok := trav[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return trav.RootName() + "." + step.Name, true
}

func decodeSettings(body hcl.Body) (map[string]string, hcl.Diagnostics) {
	attrs, diags := body.JustAttributes()
	settings := map[string]string{}
	for name, attr := range attrs {
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if valDiags.HasErrors() {
			continue
		}
		s, err := settingString(val)
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid setting value",
				Detail:   fmt.Sprintf("%s: %s.", name, err),
				Subject:  &attr.Range,
			})
			continue
		}
		settings[name] = s
	}
	return settings, diags
}
