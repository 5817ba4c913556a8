package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	packName     string
	packFile     string
	packRules    []string
)

func packPath(e *env, kind, name string) string {
	return filepath.Join(e.packsDir(kind), name+".json")
}

func loadPack(e *env, kind, name string) (*model.Pack, error) {
	var p model.Pack
	if err := readJSONFile(packPath(e, kind, name), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func savePack(e *env, kind string, p *model.Pack) error {
	path := packPath(e, kind, p.Name)
	if err := ensureParent(path); err != nil {
		return err
	}
	return writeJSONFile(path, p)
}

func listPacks(e *env, kind string) ([]string, error) {
	entries, err := os.ReadDir(e.packsDir(kind))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(ent.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func makePackCommands(kind string) (*cobra.Command, []*cobra.Command) {
	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s packs", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(func() (any, error) {
				e, err := resolveEnv()
				if err != nil {
					return nil, err
				}
				names, err := listPacks(e, kind)
				return map[string]any{"packs": names}, err
			})
		},
	}

	get := &cobra.Command{
		Use:   "get",
		Short: fmt.Sprintf("Show one %s pack", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(func() (any, error) {
				if packName == "" {
					return nil, fmt.Errorf("--name is required")
				}
				e, err := resolveEnv()
				if err != nil {
					return nil, err
				}
				return loadPack(e, kind, packName)
			})
		},
	}

	imp := &cobra.Command{
		Use:   "import",
		Short: fmt.Sprintf("Import a %s pack from a YAML bundle", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(func() (any, error) { return doPackImport(kind) })
		},
	}

	importWS := &cobra.Command{
		Use:   "import-workspace",
		Short: fmt.Sprintf("Create a %s pack from the current workspace's rules", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(func() (any, error) { return doPackImportWorkspace(kind) })
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: fmt.Sprintf("Export a %s pack to a YAML bundle", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(func() (any, error) { return doPackExport(kind) })
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: fmt.Sprintf("Delete a %s pack", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(func() (any, error) {
				if packName == "" {
					return nil, fmt.Errorf("--name is required")
				}
				e, err := resolveEnv()
				if err != nil {
					return nil, err
				}
				err = os.Remove(packPath(e, kind, packName))
				if os.IsNotExist(err) {
					err = nil
				}
				return map[string]any{"name": packName}, err
			})
		},
	}

	update := &cobra.Command{
		Use:   "update",
		Short: fmt.Sprintf("Replace a %s pack's rules", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(func() (any, error) { return doPackUpdate(kind) })
		},
	}

	all := []*cobra.Command{list, get, imp, importWS, export, del, update}
	for _, c := range all {
		c.Flags().StringVar(&packName, "name", "", "pack name")
	}
	imp.Flags().StringVar(&packFile, "file", "", "path to the YAML bundle to import")
	export.Flags().StringVar(&packFile, "file", "", "path to write the YAML bundle")
	update.Flags().StringSliceVar(&packRules, "rules", nil, "replacement rule set")

	parent := &cobra.Command{Use: kind + "-packs", Short: fmt.Sprintf("Manage %s packs", kind)}
	parent.AddCommand(list, get, imp, importWS, export, del, update)
	return parent, all
}

func init() {
	expParent, _ := makePackCommands("experience")
	langParent, _ := makePackCommands("language")
	rootCmd.AddCommand(expParent, langParent)
}

type packBundle struct {
	Name  string   `yaml:"name"`
	Rules []string `yaml:"rules"`
}

func doPackImport(kind string) (any, error) {
	if packFile == "" {
		return nil, fmt.Errorf("--file is required")
	}
	data, err := os.ReadFile(packFile)
	if err != nil {
		return nil, err
	}
	var bundle packBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse pack bundle: %w", err)
	}
	if bundle.Name == "" {
		return nil, fmt.Errorf("bundle is missing a name")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &model.Pack{Name: bundle.Name, Kind: kind, Rules: bundle.Rules, CreatedTS: now, UpdatedTS: now}
	if err := savePack(e, kind, p); err != nil {
		return nil, err
	}
	return p, nil
}

func doPackImportWorkspace(kind string) (any, error) {
	if packName == "" {
		return nil, fmt.Errorf("--name is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	rules, err := loadUserRules(e)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &model.Pack{Name: packName, Kind: kind, Rules: rules, CreatedTS: now, UpdatedTS: now}
	if err := savePack(e, kind, p); err != nil {
		return nil, err
	}
	return p, nil
}

func doPackExport(kind string) (any, error) {
	if packName == "" || packFile == "" {
		return nil, fmt.Errorf("--name and --file are required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	p, err := loadPack(e, kind, packName)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(packBundle{Name: p.Name, Rules: p.Rules})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(packFile, data, 0o644); err != nil {
		return nil, err
	}
	return map[string]any{"name": packName, "file": packFile}, nil
}

func doPackUpdate(kind string) (any, error) {
	if packName == "" {
		return nil, fmt.Errorf("--name is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	existing, err := loadPack(e, kind, packName)
	created := now0()
	if err != nil {
		existing = &model.Pack{Name: packName, Kind: kind, CreatedTS: created}
	}
	existing.Rules = packRules
	existing.UpdatedTS = now0()
	if err := savePack(e, kind, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func now0() time.Time { return time.Now().UTC() }
