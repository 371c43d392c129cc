package dispatcher

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/refactor"
	"github.com/codescalpel/scalpel/symbolic"
	"github.com/codescalpel/scalpel/symbols"
)

// registerProjectTools wires the remaining navigation, extraction,
// mutation, synthesis, and dependency tool families from §4.9's
// registered-tool-family table that tools.go's initial seven don't cover.
func (ts *Toolset) registerProjectTools(reg *Registry) {
	reg.Register(ts.extractCodeSpec())
	reg.Register(ts.getFileContextSpec())
	reg.Register(ts.crawlProjectSpec())
	reg.Register(ts.getProjectMapSpec())
	reg.Register(ts.getCallGraphSpec())
	reg.Register(ts.getGraphNeighborhoodSpec())
	reg.Register(ts.getCrossFileDependenciesSpec())
	reg.Register(ts.scanDependenciesSpec())
	reg.Register(ts.renameSymbolSpec())
	reg.Register(ts.updateSymbolSpec())
	reg.Register(ts.generateUnitTestsSpec())
}

// findByName locates the first Declaration node (FunctionDef/ClassDef)
// named target within mod, returning InvalidNodeID if absent.
func findByName(mod *ir.Module, target string) ir.NodeID {
	found := ir.InvalidNodeID
	root := mod.Arena.Root()
	if root == ir.InvalidNodeID {
		return found
	}
	ir.Walk(mod.Arena, root, func(a *ir.Arena, id ir.NodeID) {
		if found != ir.InvalidNodeID {
			return
		}
		n := a.Node(id)
		if (n.Kind == ir.KindFunctionDef || n.Kind == ir.KindClassDef) && n.Name == target {
			found = id
		}
	})
	return found
}

// --- extract_code --------------------------------------------------------

func (ts *Toolset) extractCodeSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "extract_code",
		Description:    "Returns the source text and span of one named function or class, without paying for the rest of the file.",
		RequiredParams: []string{"file", "code", "target_name"},
		Handler:        ts.extractCode,
	}
}

func (ts *Toolset) extractCode(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	file, _ := stringParam(params, "file")
	code := bytesParam(params, "code")
	target, _ := stringParam(params, "target_name")

	fe, ok := ts.Frontends.Lookup(file)
	if !ok {
		return nil, NewError(ErrInvalidInput, fmt.Sprintf("no frontend registered for %q", file))
	}
	mod := fe.Lower(file, code)
	id := findByName(mod, target)
	if id == ir.InvalidNodeID {
		return nil, NewError(ErrNotFound, fmt.Sprintf("symbol %q not found in %q", target, file)).
			WithDetails(map[string]interface{}{"target": target})
	}
	n := mod.Arena.Node(id)
	text := ""
	if int(n.Span.ByteEnd) <= len(code) {
		text = string(code[n.Span.ByteStart:n.Span.ByteEnd])
	}
	return map[string]interface{}{
		"name": n.Name, "kind": n.Kind.String(), "span": n.Span, "text": text,
	}, nil
}

// --- get_file_context -----------------------------------------------------

func (ts *Toolset) getFileContextSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "get_file_context",
		Description:    "Returns a named symbol plus its direct callers and callees, a token-budgeted neighborhood rather than the whole file.",
		RequiredParams: []string{"file", "code", "target_name", "project_root"},
		Handler:        ts.getFileContext,
	}
}

func (ts *Toolset) getFileContext(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	file, _ := stringParam(params, "file")
	code := bytesParam(params, "code")
	target, _ := stringParam(params, "target_name")

	fe, ok := ts.Frontends.Lookup(file)
	if !ok {
		return nil, NewError(ErrInvalidInput, fmt.Sprintf("no frontend registered for %q", file))
	}
	mod := fe.Lower(file, code)
	id := findByName(mod, target)
	if id == ir.InvalidNodeID {
		return nil, NewError(ErrNotFound, fmt.Sprintf("symbol %q not found in %q", target, file)).
			WithDetails(map[string]interface{}{"target": target})
	}

	files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	if files == nil {
		files = map[string][]byte{}
	}
	files[file] = code
	proj := buildProjectIndex(files, ts.Frontends)
	cg := proj.BuildCallGraph()

	qualified := qualifiedNameFor(proj, file, target)
	budget := 8192
	if n, ok := ctx.Limits.LimitApplied("max_output_bytes"); ok && n > 0 {
		budget = n
	}
	n := mod.Arena.Node(id)
	text := ""
	if int(n.Span.ByteEnd) <= len(code) {
		text = string(code[n.Span.ByteStart:n.Span.ByteEnd])
	}
	out := map[string]interface{}{
		"target":  target,
		"span":    n.Span,
		"text":    truncateToBudget(text, budget),
		"callers": cg.GetCallers(qualified),
		"callees": cg.GetCallees(qualified),
	}
	return out, nil
}

func truncateToBudget(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	return s[:budget]
}

// qualifiedNameFor finds the symbols.Record qualified ID whose Name
// matches target within modulePath, falling back to a bare "module.name"
// guess when the table lookup misses.
func qualifiedNameFor(proj *symbols.Project, modulePath, target string) string {
	if table, ok := proj.Tables[modulePath]; ok {
		for id, rec := range table.Records {
			if rec.Name == target {
				return id
			}
		}
	}
	return modulePath + "." + target
}

// --- crawl_project ---------------------------------------------------------

func (ts *Toolset) crawlProjectSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "crawl_project",
		Description:    "Lists every source file under project_root recognized by a registered frontend.",
		RequiredParams: []string{"project_root"},
		Handler:        ts.crawlProject,
	}
}

func (ts *Toolset) crawlProject(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return map[string]interface{}{"files": names}, nil
}

// --- get_project_map ---------------------------------------------------------

func (ts *Toolset) getProjectMapSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "get_project_map",
		Description:    "Returns every module's top-level symbols, a project-wide table of contents.",
		RequiredParams: []string{"project_root"},
		Handler:        ts.getProjectMap,
	}
}

type symbolEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

func (ts *Toolset) getProjectMap(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	proj := buildProjectIndex(files, ts.Frontends)

	out := map[string][]symbolEntry{}
	for modPath, table := range proj.Tables {
		entries := make([]symbolEntry, 0, len(table.Records))
		for _, rec := range table.Records {
			entries = append(entries, symbolEntry{Name: rec.Name, Kind: rec.Kind.String(), Line: rec.Span.StartLine})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Line != entries[j].Line {
				return entries[i].Line < entries[j].Line
			}
			return entries[i].Name < entries[j].Name
		})
		out[modPath] = entries
	}
	return map[string]interface{}{"modules": out}, nil
}

// --- get_call_graph / get_graph_neighborhood --------------------------------

func (ts *Toolset) getCallGraphSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "get_call_graph",
		Description:    "Returns the whole project-wide call graph: every edge with its confidence and resolution kind.",
		RequiredParams: []string{"project_root"},
		Handler:        ts.getCallGraph,
	}
}

type edgeEntry struct {
	Caller         string        `json:"caller"`
	Callee         string        `json:"callee"`
	CallSiteSpan   ir.SourceSpan `json:"call_site_span"`
	Confidence     float64       `json:"confidence"`
	ResolutionKind string        `json:"resolution_kind"`
}

func (ts *Toolset) getCallGraph(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	proj := buildProjectIndex(files, ts.Frontends)
	cg := proj.BuildCallGraph()

	var edges []edgeEntry
	for caller, calls := range cg.CallSites {
		for _, c := range calls {
			edges = append(edges, edgeEntry{
				Caller: caller, Callee: c.Callee, CallSiteSpan: c.CallSiteSpan,
				Confidence: c.Confidence, ResolutionKind: c.ResolutionKind.String(),
			})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})
	return map[string]interface{}{"edges": edges}, nil
}

func (ts *Toolset) getGraphNeighborhoodSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "get_graph_neighborhood",
		Description:    "Returns the k-hop call-graph neighborhood (callers and callees) around a named symbol.",
		RequiredParams: []string{"project_root", "target_name"},
		Handler:        ts.getGraphNeighborhood,
	}
}

func (ts *Toolset) getGraphNeighborhood(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	target, _ := stringParam(params, "target_name")
	depth := 1
	if d, ok := params["depth"].(float64); ok && d > 0 {
		depth = int(d)
	}

	files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	proj := buildProjectIndex(files, ts.Frontends)
	cg := proj.BuildCallGraph()

	root := matchQualifiedName(proj, target)
	if root == "" {
		return nil, NewError(ErrNotFound, fmt.Sprintf("no symbol named %q found in project", target)).
			WithDetails(map[string]interface{}{"target": target})
	}

	visited := map[string]bool{root: true}
	frontier := []string{root}
	for i := 0; i < depth; i++ {
		var next []string
		for _, name := range frontier {
			for _, c := range cg.GetCallers(name) {
				if !visited[c] {
					visited[c] = true
					next = append(next, c)
				}
			}
			for _, c := range cg.GetCallees(name) {
				if !visited[c] {
					visited[c] = true
					next = append(next, c)
				}
			}
		}
		frontier = next
	}
	delete(visited, root)
	names := make([]string, 0, len(visited))
	for n := range visited {
		names = append(names, n)
	}
	sort.Strings(names)
	return map[string]interface{}{"target": root, "neighborhood": names, "depth": depth}, nil
}

func matchQualifiedName(proj *symbols.Project, target string) string {
	if recs, ok := proj.ByName[target]; ok && len(recs) > 0 {
		return recs[0].ID
	}
	for _, table := range proj.Tables {
		for id, rec := range table.Records {
			if rec.Name == target || id == target {
				return id
			}
		}
	}
	return ""
}

// --- get_cross_file_dependencies ---------------------------------------------

func (ts *Toolset) getCrossFileDependenciesSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "get_cross_file_dependencies",
		Description:    "Returns each module's resolved import targets, the project's module-level dependency graph.",
		RequiredParams: []string{"project_root"},
		RequiredFlag:   "cross_file_scan",
		Handler:        ts.getCrossFileDependencies,
	}
}

func (ts *Toolset) getCrossFileDependencies(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	proj := buildProjectIndex(files, ts.Frontends)

	deps := map[string][]string{}
	for modPath, table := range proj.Tables {
		seen := map[string]bool{}
		var targets []string
		for _, imp := range table.Imports {
			if !seen[imp.TargetName] {
				seen[imp.TargetName] = true
				targets = append(targets, imp.TargetName)
			}
		}
		sort.Strings(targets)
		deps[modPath] = targets
	}
	return map[string]interface{}{"dependencies": deps}, nil
}

// --- scan_dependencies -------------------------------------------------------

// advisory is one entry of the built-in, deliberately tiny fallback
// catalogue consulted when no external vulnerability-catalogue document
// is configured. Per §1 the real SOC2/HIPAA-style catalogue content is
// explicitly out of scope ("we consume verified claims"); this table only
// demonstrates the interface shape an operator-supplied catalogue fills.
type advisory struct {
	Name       string `json:"name"`
	MaxVersion string `json:"max_version_affected"`
	CVE        string `json:"cve"`
	Severity   string `json:"severity"`
}

func (ts *Toolset) scanDependenciesSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "scan_dependencies",
		Description:    "Matches a dependency list against a vulnerability catalogue and returns matching advisories.",
		RequiredParams: []string{"dependencies"},
		Handler:        ts.scanDependencies,
	}
}

func (ts *Toolset) scanDependencies(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	raw, ok := params["dependencies"].([]interface{})
	if !ok {
		return nil, NewError(ErrInvalidInput, "dependencies must be a list of {name, version} objects")
	}
	catalogue := ts.VulnerabilityCatalogue
	var matches []map[string]interface{}
	for _, item := range raw {
		dep, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := dep["name"].(string)
		version, _ := dep["version"].(string)
		for _, adv := range catalogue {
			if adv.Name == name && version != "" && version <= adv.MaxVersion {
				matches = append(matches, map[string]interface{}{
					"name": name, "version": version, "cve": adv.CVE, "severity": adv.Severity,
				})
			}
		}
	}
	return map[string]interface{}{"vulnerabilities": matches}, nil
}

// --- rename_symbol / update_symbol (mutating, backup discipline) -----------

func (ts *Toolset) renameSymbolSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "rename_symbol",
		Description:    "Renames a symbol within one file, simulates the edit's safety first, then writes the result with a backup.",
		RequiredParams: []string{"file", "old_name", "new_name"},
		Mutating:       true,
		Handler:        ts.renameSymbol,
	}
}

func (ts *Toolset) renameSymbol(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	file, _ := stringParam(params, "file")
	oldName, _ := stringParam(params, "old_name")
	newName, _ := stringParam(params, "new_name")

	original := bytesParam(params, "code")
	if original == nil {
		read, readErr := readFile(file)
		if readErr != nil {
			return nil, NewError(ErrNotFound, fmt.Sprintf("file %q not found", file)).
				WithDetails(map[string]interface{}{"target": file})
		}
		original = read
	}
	backupPath, err := WriteBackupBytes(file, original)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	proposed := []byte(renameIdentifier(string(original), oldName, newName))

	pctx := ts.refactorProjectContextFor(ctx, file, original)
	result, simErr := ts.Refactor.Simulate(pctx, refactorInput(file, original, proposed), symbolic.DefaultOptions())
	if simErr != nil {
		return nil, NewError(ErrInvalidInput, simErr.Error())
	}

	if !result.IsSafe {
		return map[string]interface{}{"applied": false, "result": result, "backup_path": backupPath}, nil
	}
	if writeErr := writeFile(file, proposed); writeErr != nil {
		return nil, NewError(ErrInternalError, writeErr.Error())
	}
	return map[string]interface{}{"applied": true, "result": result, "backup_path": backupPath}, nil
}

func (ts *Toolset) updateSymbolSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "update_symbol",
		Description:    "Replaces one named symbol's body with new source, validating safety before writing; restores the backup on failure.",
		RequiredParams: []string{"file", "target_name", "new_code"},
		Mutating:       true,
		Handler:        ts.updateSymbol,
	}
}

func (ts *Toolset) updateSymbol(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	file, _ := stringParam(params, "file")
	target, _ := stringParam(params, "target_name")
	newCode, _ := stringParam(params, "new_code")

	original, err := readFile(file)
	if err != nil {
		return nil, NewError(ErrNotFound, fmt.Sprintf("file %q not found", file)).
			WithDetails(map[string]interface{}{"target": file})
	}

	fe, ok := ts.Frontends.Lookup(file)
	if !ok {
		return nil, NewError(ErrInvalidInput, fmt.Sprintf("no frontend registered for %q", file))
	}
	mod := fe.Lower(file, original)
	id := findByName(mod, target)
	if id == ir.InvalidNodeID {
		return nil, NewError(ErrNotFound, fmt.Sprintf("symbol %q not found in %q", target, file)).
			WithDetails(map[string]interface{}{"target": target})
	}
	n := mod.Arena.Node(id)
	if int(n.Span.ByteEnd) > len(original) {
		return nil, NewError(ErrInternalError, "span out of bounds for current file contents")
	}
	proposed := append(append(append([]byte{}, original[:n.Span.ByteStart]...), []byte(newCode)...), original[n.Span.ByteEnd:]...)

	backupPath, err := WriteBackupBytes(file, original)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}

	pctx := ts.refactorProjectContextFor(ctx, file, original)
	result, simErr := ts.Refactor.Simulate(pctx, refactorInput(file, original, proposed), symbolic.DefaultOptions())
	if simErr != nil {
		return nil, NewError(ErrInvalidInput, simErr.Error())
	}
	if !result.IsSafe {
		return map[string]interface{}{"applied": false, "result": result, "backup_path": backupPath}, nil
	}
	if writeErr := writeFile(file, proposed); writeErr != nil {
		_ = RestoreBackup(file, backupPath)
		return nil, NewError(ErrInternalError, writeErr.Error())
	}
	return map[string]interface{}{"applied": true, "result": result, "backup_path": backupPath}, nil
}

// refactorProjectContextFor builds the refactor.ProjectContext a rename
// or update should validate against: the whole project if ctx carries a
// project_root, otherwise just the one file being edited.
func (ts *Toolset) refactorProjectContextFor(ctx *Context, file string, original []byte) *refactor.ProjectContext {
	if ctx.ProjectRoot != "" {
		files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
		if err == nil {
			files[file] = original
			return &refactor.ProjectContext{Project: buildProjectIndex(files, ts.Frontends), Files: files}
		}
	}
	return &refactor.ProjectContext{Project: symbols.NewProject(), Files: map[string][]byte{file: original}}
}

func refactorInput(file string, original, proposed []byte) refactor.Input {
	return refactor.Input{FilePath: file, OriginalCode: original, ProposedCode: proposed}
}

func readFile(path string) ([]byte, error) { return os.ReadFile(path) }

func writeFile(path string, data []byte) error { return os.WriteFile(path, data, 0o644) }

// renameIdentifier performs the textual rename a real caller would apply
// before asking the simulator to judge its safety — a whole-word
// replacement, not a regex-in-strings free-for-all (§4.10's own
// literal-reference scan, not this step, handles string-literal sites).
func renameIdentifier(src, oldName, newName string) string {
	if oldName == "" {
		return src
	}
	var b strings.Builder
	i := 0
	for i < len(src) {
		if strings.HasPrefix(src[i:], oldName) &&
			(i == 0 || !isIdentByte(src[i-1])) &&
			(i+len(oldName) == len(src) || !isIdentByte(src[i+len(oldName)])) {
			b.WriteString(newName)
			i += len(oldName)
			continue
		}
		b.WriteByte(src[i])
		i++
	}
	return b.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// --- generate_unit_tests -----------------------------------------------------

func (ts *Toolset) generateUnitTestsSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "generate_unit_tests",
		Description:    "Symbolically explores one function's feasible paths and emits generic input/expected-output test cases.",
		RequiredParams: []string{"file", "code", "function_name"},
		Handler:        ts.generateUnitTests,
	}
}

func (ts *Toolset) generateUnitTests(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	data, errObj := ts.symbolicExecute(ctx, params)
	if errObj != nil {
		return nil, errObj
	}
	result := data.(map[string]interface{})
	return map[string]interface{}{"test_cases": result["test_cases"], "paths_explored": result["paths"]}, nil
}
