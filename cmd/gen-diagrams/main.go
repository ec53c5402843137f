// gen-diagrams renders the example workflows for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/mabelstudio/internal/diagram"
	"github.com/rendis/mabelstudio/internal/editor"
	"github.com/rendis/mabelstudio/internal/yamlio"
)

func main() {
	ctx := context.Background()
	paths, err := filepath.Glob(filepath.Join("examples", "*.yaml"))
	if err != nil || len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "no examples found, run from the repository root")
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	home, _ := os.UserHomeDir()
	binDir := filepath.Join(home, ".mabel", "bin")

	for _, path := range paths {
		text, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
		doc, err := yamlio.Import(text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "import %s: %v\n", path, err)
			os.Exit(1)
		}
		doc = editor.New(doc, editor.Options{}).Document()
		model := diagram.Build(doc, nil)
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")

		// ASCII (mermaid-ascii with hand-rolled fallback)
		ascii := diagram.RenderASCIIAuto(ctx, model, binDir)
		write(filepath.Join(outDir, name+"-ascii.txt"), []byte(ascii))
		fmt.Printf("=== %s (ASCII) ===\n%s\n", name, ascii)

		mermaid := diagram.RenderMermaid(model)
		write(filepath.Join(outDir, name+"-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"))

		if dot, err := diagram.RenderDOT(model); err != nil {
			fmt.Fprintf(os.Stderr, "dot error: %v\n", err)
		} else {
			write(filepath.Join(outDir, name+".dot"), []byte(dot))
		}

		png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if imgErr != nil {
			fmt.Fprintf(os.Stderr, "image error: %v\n", imgErr)
			continue
		}
		pngPath := filepath.Join(outDir, name+".png")
		write(pngPath, png)
		fmt.Printf("Written: %s (%d bytes)\n", pngPath, len(png))
	}
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
	}
}
