package dispatcher

import (
	"os"
	"path/filepath"

	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/symbols"
)

var skippedProjectDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"__pycache__": true, ".venv": true, "dist": true, "build": true,
}

// crawlProjectFiles walks root and reads every file frontends recognizes,
// per §4.9's crawl_project family: a plain filepath.Walk skip-list, the
// same shape the original engine uses in diagnostic/extractor.go, graph/utils.go,
// and cmd/container_scanner.go for project-wide source collection.
func crawlProjectFiles(root string, reg *frontend.Registry) (map[string][]byte, error) {
	files := map[string][]byte{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			if skippedProjectDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := reg.Lookup(path); !ok {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil // an unreadable file is skipped, not fatal to the whole crawl
		}
		rel := path
		if r, relErr := filepath.Rel(root, path); relErr == nil {
			rel = filepath.ToSlash(r)
		}
		files[rel] = content
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// buildProjectIndex lowers every crawled file and folds it into a
// project-wide symbols.Project, per §4.3's "ByName" cross-module index.
func buildProjectIndex(files map[string][]byte, reg *frontend.Registry) *symbols.Project {
	proj := symbols.NewProject()
	for path, content := range files {
		fe, ok := reg.Lookup(path)
		if !ok {
			continue
		}
		mod := fe.Lower(path, content)
		table := symbols.Build(path, mod, content)
		proj.AddModule(table)
	}
	return proj
}

// CrawlProjectFiles is the exported form of crawlProjectFiles, used by
// the composition root (cmd) to build a startup-time SymbolSource.
func CrawlProjectFiles(root string, reg *frontend.Registry) (map[string][]byte, error) {
	return crawlProjectFiles(root, reg)
}

// BuildProjectIndex is the exported form of buildProjectIndex, used by
// the composition root (cmd) to build a startup-time SymbolSource.
func BuildProjectIndex(files map[string][]byte, reg *frontend.Registry) *symbols.Project {
	return buildProjectIndex(files, reg)
}
