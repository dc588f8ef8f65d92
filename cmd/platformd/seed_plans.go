package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/featureflag"
)

const defaultOrgID = "default"

func newSeedPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-plans",
		Short: "Create the shared default organization and its onboarding tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}

			p := buildPlatform(ctx, cfg, db)

			if _, err := p.tenants.GetOrg(ctx, defaultOrgID); err != nil {
				if _, err := p.tenants.CreateOrg(ctx, defaultOrgID, "Default Organization", defaultOrgID, "", config.PlanStarter); err != nil {
					return fmt.Errorf("seed default org: %w", err)
				}
				slog.Info("seeded default organization", "org_id", defaultOrgID)
			} else {
				slog.Info("default organization already exists", "org_id", defaultOrgID)
			}

			if _, err := p.onboarding.Get(ctx, defaultOrgID); err != nil {
				tracker := &featureflag.Tracker{OrgID: defaultOrgID, Stages: featureflag.DefaultOnboardingStages()}
				if err := p.onboarding.Put(ctx, tracker); err != nil {
					return fmt.Errorf("seed onboarding tracker: %w", err)
				}
				slog.Info("seeded onboarding tracker", "org_id", defaultOrgID)
			}

			return nil
		},
	}
}
