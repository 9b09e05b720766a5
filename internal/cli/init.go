package cli

import (
	"fmt"
	"path/filepath"

	"github.com/geocine/notexport/internal/utils"
)

// InitOptions captures options for initializing a new export project
type InitOptions struct {
	Name     string
	SrcDir   string // default: notes
	BuildDir string // default: site
	Title    string // optional site title; defaults to Name
}

// Init scaffolds a new export project at the given directory
func Init(opts InitOptions) error {
	if opts.Name == "" {
		opts.Name = "my-notes"
	}
	if opts.SrcDir == "" {
		opts.SrcDir = "notes"
	}
	if opts.BuildDir == "" {
		opts.BuildDir = "site"
	}
	if opts.Title == "" {
		opts.Title = opts.Name
	}

	root := opts.Name

	// Create root directory
	if err := utils.CreateDirAll(root); err != nil {
		return err
	}

	// Create notes directory
	srcPath := filepath.Join(root, opts.SrcDir)
	if err := utils.CreateDirAll(srcPath); err != nil {
		return err
	}

	// Write export.toml
	exportToml := []byte(fmt.Sprintf(`[site]
title = "%s"
src = "%s"

[build]
build-dir = "%s"

[export]
fix-links = true
slugify-paths = true
`, opts.Title, opts.SrcDir, opts.BuildDir))
	if err := utils.WriteFile(filepath.Join(root, "export.toml"), exportToml); err != nil {
		return err
	}

	// Seed a starter note
	index := []byte("---\ntitle: Welcome\n---\n\n# Welcome\n\nStart writing notes here.\n")
	if err := utils.WriteFile(filepath.Join(srcPath, "index.md"), index); err != nil {
		return err
	}

	// Create a .gitignore for the build dir
	gitignore := []byte(fmt.Sprintf("%s\n", opts.BuildDir))
	_ = utils.WriteFile(filepath.Join(root, ".gitignore"), gitignore)

	return utils.CreateDirAll(filepath.Join(root, opts.BuildDir))
}
