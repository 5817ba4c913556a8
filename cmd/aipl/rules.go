package main

import (
	"fmt"
	"os"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/spf13/cobra"
)

func rulesPath(e *env) string {
	return e.wsDir() + "/rules.json"
}

func loadUserRules(e *env) ([]string, error) {
	var rules []string
	if err := readJSONFile(rulesPath(e), &rules); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return rules, nil
}

func saveUserRules(e *env, rules []string) error {
	path := rulesPath(e)
	if err := ensureParent(path); err != nil {
		return err
	}
	return writeJSONFile(path, rules)
}

var ruleText string

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user config rule to the workspace's authoritative layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doRulesAdd() })
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a user config rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doRulesDelete() })
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the workspace's user config rules",
}

func init() {
	for _, c := range []*cobra.Command{rulesAddCmd, rulesDeleteCmd} {
		c.Flags().StringVar(&ruleText, "rule", "", "rule text")
	}
	rulesCmd.AddCommand(rulesAddCmd, rulesDeleteCmd)
	rootCmd.AddCommand(rulesCmd)
}

func doRulesAdd() (any, error) {
	if ruleText == "" {
		return nil, fmt.Errorf("--rule is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	rules, err := loadUserRules(e)
	if err != nil {
		return nil, err
	}
	rules = append(rules, ruleText)
	if err := saveUserRules(e, rules); err != nil {
		return nil, err
	}
	return map[string]any{"rules": rules}, nil
}

func doRulesDelete() (any, error) {
	if ruleText == "" {
		return nil, fmt.Errorf("--rule is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	rules, err := loadUserRules(e)
	if err != nil {
		return nil, err
	}
	out := rules[:0]
	for _, r := range rules {
		if r != ruleText {
			out = append(out, r)
		}
	}
	if err := saveUserRules(e, out); err != nil {
		return nil, err
	}
	return map[string]any{"rules": out}, nil
}

func checksPath(e *env) string {
	return e.wsDir() + "/checks.json"
}

func loadUserChecks(e *env) ([]model.Check, error) {
	var checks []model.Check
	if err := readJSONFile(checksPath(e), &checks); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return checks, nil
}

func saveUserChecks(e *env, checks []model.Check) error {
	path := checksPath(e)
	if err := ensureParent(path); err != nil {
		return err
	}
	return writeJSONFile(path, checks)
}

var (
	checkType   string
	checkPath   string
	checkNeedle string
	checkCmd    string
	checkIndex  int
)

var checksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a reusable check to the workspace's check set",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doChecksAdd() })
	},
}

var checksDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a check by index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doChecksDelete() })
	},
}

var checksCommandGroup = &cobra.Command{
	Use:   "checks",
	Short: "Manage the workspace's reusable check set",
}

func init() {
	checksAddCmd.Flags().StringVar(&checkType, "type", "", "check type (file_exists, file_contains, command, ...)")
	checksAddCmd.Flags().StringVar(&checkPath, "path", "", "path argument, where applicable")
	checksAddCmd.Flags().StringVar(&checkNeedle, "needle", "", "needle argument, where applicable")
	checksAddCmd.Flags().StringVar(&checkCmd, "cmd", "", "command argument, where applicable")
	checksDeleteCmd.Flags().IntVar(&checkIndex, "index", -1, "index of the check to remove")
	checksCommandGroup.AddCommand(checksAddCmd, checksDeleteCmd)
	rootCmd.AddCommand(checksCommandGroup)
}

func doChecksAdd() (any, error) {
	if checkType == "" {
		return nil, fmt.Errorf("--type is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	checks, err := loadUserChecks(e)
	if err != nil {
		return nil, err
	}
	checks = append(checks, model.Check{
		Type:   model.CheckType(checkType),
		Path:   checkPath,
		Needle: checkNeedle,
		Cmd:    checkCmd,
	})
	if err := saveUserChecks(e, checks); err != nil {
		return nil, err
	}
	return map[string]any{"checks": checks}, nil
}

func doChecksDelete() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	checks, err := loadUserChecks(e)
	if err != nil {
		return nil, err
	}
	if checkIndex < 0 || checkIndex >= len(checks) {
		return nil, fmt.Errorf("--index out of range")
	}
	checks = append(checks[:checkIndex], checks[checkIndex+1:]...)
	if err := saveUserChecks(e, checks); err != nil {
		return nil, err
	}
	return map[string]any{"checks": checks}, nil
}
