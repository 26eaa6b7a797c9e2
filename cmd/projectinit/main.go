package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"dreamwright/internal/domain"
	"dreamwright/internal/infra"
	"dreamwright/internal/storage"
)

// projectinit scaffolds a new project directory under PROJECTS_DIR:
// project.json plus the assets tree the pipeline writes into.
func main() {
	_ = godotenv.Load()

	name := flag.String("name", "", "project name (required)")
	id := flag.String("id", "", "directory name, defaults to the slug of -name")
	dir := flag.String("projects-dir", "", "projects root, defaults to PROJECTS_DIR")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: projectinit -name \"My Story\" [-id my_story] [-projects-dir ./projects]")
		os.Exit(2)
	}

	root := *dir
	if root == "" {
		cfg, err := infra.LoadConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		root = cfg.ProjectsDir
	}

	project := domain.NewProject(*name)
	dirName := *id
	if dirName == "" {
		dirName = project.ID
	}

	path := filepath.Join(root, dirName)
	store, err := storage.NewStore(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "store:", err)
		os.Exit(1)
	}
	if store.ProjectExists() {
		fmt.Fprintf(os.Stderr, "project already exists at %s\n", path)
		os.Exit(1)
	}
	if err := store.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	if err := store.SaveProject(project); err != nil {
		fmt.Fprintln(os.Stderr, "save:", err)
		os.Exit(1)
	}

	fmt.Printf("initialized project %q at %s\n", project.Name, path)
}
