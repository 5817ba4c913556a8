package main

import (
	"encoding/json"
	"fmt"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/profilestore"
	"github.com/spf13/cobra"
)

var (
	profileUserHardJSON string
	profileSoftReason   string
)

var profileGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the workspace's profile, creating it on first use",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doProfileGet() })
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace the workspace's user hard policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doProfileUpdate() })
	},
}

var profileProposeSoftCmd = &cobra.Command{
	Use:   "propose-soft",
	Short: "Scan the workspace and record a soft-policy draft, never enforced until approved",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doProfileProposeSoft() })
	},
}

var profileApproveSoftCmd = &cobra.Command{
	Use:   "approve-soft",
	Short: "Promote the pending soft-policy draft to approved",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doProfileApproveSoft() })
	},
}

var profileRejectSoftCmd = &cobra.Command{
	Use:   "reject-soft",
	Short: "Discard the pending soft-policy draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doProfileRejectSoft() })
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect or update a workspace's sandbox policy profile",
}

func init() {
	profileUpdateCmd.Flags().StringVar(&profileUserHardJSON, "hard-policy", "", "JSON-encoded HardPolicy to merge over the system default")
	profileProposeSoftCmd.Flags().StringVar(&profileSoftReason, "reason", "", "why this draft was requested (recorded in the review log)")
	profileCmd.AddCommand(profileGetCmd, profileUpdateCmd, profileProposeSoftCmd, profileApproveSoftCmd, profileRejectSoftCmd)
	rootCmd.AddCommand(profileCmd)
}

func openProfileStore(e *env) (*profilestore.Store, error) {
	if err := ensureParent(e.profileDBPath()); err != nil {
		return nil, err
	}
	return profilestore.Open(e.profileDBPath())
}

func doProfileGet() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	store, err := openProfileStore(e)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	res, err := store.EnsureProfile(e.mainRoot, nil, systemHard(e))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// systemHard returns the system-level hard policy: the config layer's
// hard_policy section if it carries any content, falling back to
// profilestore's built-in default otherwise.
func systemHard(e *env) model.HardPolicy {
	if e.cfg == nil {
		return profilestore.DefaultSystemHard()
	}
	return profilestore.MergeHard(profilestore.DefaultSystemHard(), &e.cfg.HardPolicy)
}

func doProfileUpdate() (any, error) {
	if profileUserHardJSON == "" {
		return nil, fmt.Errorf("--hard-policy is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	var raw model.HardPolicy
	if err := json.Unmarshal([]byte(profileUserHardJSON), &raw); err != nil {
		return nil, fmt.Errorf("parse --hard-policy: %w", err)
	}

	store, err := openProfileStore(e)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	res, err := store.EnsureProfile(e.mainRoot, &raw, systemHard(e))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func doProfileProposeSoft() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	store, err := openProfileStore(e)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if _, err := store.EnsureProfile(e.mainRoot, nil, systemHard(e)); err != nil {
		return nil, err
	}
	return store.ProposeSoftProfile(e.mainRoot, profileSoftReason)
}

func doProfileApproveSoft() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	store, err := openProfileStore(e)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.ApproveSoftProfile(e.workspaceID)
}

func doProfileRejectSoft() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	store, err := openProfileStore(e)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.RejectSoftProfile(e.workspaceID)
}
