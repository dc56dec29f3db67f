package commands

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/livefir/liveimage"
	"github.com/livefir/liveimage/cmd/liveimg/internal/ui"
)

// Process implements "liveimg process <dir>": walk the component files under
// a directory, rewrite their image references, and write the results either
// in place or into a mirror tree.
func Process(args []string) error {
	fset := flag.NewFlagSet("process", flag.ContinueOnError)
	outDir := fset.String("o", "", "write rewritten files into this mirror directory")
	configPath := fset.String("c", "", "config file path")
	extList := fset.String("ext", "html,svelte", "comma-separated file extensions to process")
	quiet := fset.Bool("q", false, "plain line output instead of the progress UI")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("process expects exactly one directory argument")
	}
	root := fset.Arg(0)

	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	if *configPath == "" {
		*configPath = filepath.Join(root, liveimage.ConfigFileName)
	}
	opts, err := liveimage.LoadOptions(*configPath)
	if err != nil {
		return err
	}
	if opts.SourceDir == "." {
		opts.SourceDir = root
	}

	pre, err := liveimage.New(opts)
	if err != nil {
		return err
	}
	defer pre.Close()

	files, err := collectFiles(root, strings.Split(*extList, ","))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("no component files found")
		return nil
	}

	run := func(report func(ui.FileResult)) error {
		for _, file := range files {
			res := processFile(pre, file, root, *outDir)
			report(res)
		}
		return nil
	}

	if *quiet {
		var changed int
		err := run(func(r ui.FileResult) {
			if r.Err != nil {
				fmt.Printf("FAIL %s: %v\n", r.Path, r.Err)
				return
			}
			if r.Changed {
				changed++
				fmt.Printf("  ok %s\n", r.Path)
			}
		})
		fmt.Printf("%d of %d files rewritten\n", changed, len(files))
		return err
	}

	return ui.RunProgress(len(files), run)
}

// collectFiles gathers the processable files under root in walk order.
func collectFiles(root string, exts []string) ([]string, error) {
	allowed := map[string]bool{}
	for _, e := range exts {
		e = strings.TrimSpace(strings.TrimPrefix(e, "."))
		if e != "" {
			allowed["."+strings.ToLower(e)] = true
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden trees and node_modules; nothing processable there.
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// processFile rewrites one file and persists the result.
func processFile(pre *liveimage.Preprocessor, file, root, outDir string) ui.FileResult {
	res := ui.FileResult{Path: file}

	data, err := os.ReadFile(file)
	if err != nil {
		res.Err = err
		return res
	}
	source := string(data)

	rewritten := pre.Rewrite(source, file)
	res.Changed = rewritten != source

	dst := file
	if outDir != "" {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			res.Err = err
			return res
		}
		dst = filepath.Join(outDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			res.Err = err
			return res
		}
	} else if !res.Changed {
		return res // nothing to write back
	}

	if err := os.WriteFile(dst, []byte(rewritten), 0o644); err != nil {
		res.Err = err
	}
	return res
}
