package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/domainguard/internal/domain"
)

// seedFile is the YAML layout accepted by `domainguard seed`.
type seedFile struct {
	Targets []seedTarget `yaml:"targets"`
}

type seedTarget struct {
	Name    string     `yaml:"name"`
	Expires string     `yaml:"expires"` // YYYY-MM-DD
	Owner   seedOwner  `yaml:"owner"`
	Alerts  []seedRule `yaml:"alerts"`
}

type seedOwner struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

type seedRule struct {
	Type  string `yaml:"type"`
	Days  int    `yaml:"days_before_expiry"`
	Email bool   `yaml:"email"`
	SMS   bool   `yaml:"sms"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load targets and alert rules into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := readSeed(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			// Check the whole file before writing anything, so a bad rule
			// never leaves its target behind without alerts.
			type seeded struct {
				target domain.Target
				rules  []domain.AlertRule
			}
			batch := make([]seeded, 0, len(targets))
			for _, st := range targets {
				tgt, rules, err := st.toDomain()
				if err != nil {
					return err
				}
				batch = append(batch, seeded{tgt, rules})
			}

			for _, b := range batch {
				tgt, rules := b.target, b.rules
				if err := a.seeder.AddTarget(cmd.Context(), &tgt); err != nil {
					return fmt.Errorf("add %s: %w", tgt.Name, err)
				}
				for i := range rules {
					rules[i].TargetID = tgt.ID
					if err := a.seeder.AddAlertRule(cmd.Context(), &rules[i]); err != nil {
						return fmt.Errorf("add %s rule for %s: %w", rules[i].Type, tgt.Name, err)
					}
				}
				a.logger.Info("target_seeded",
					zap.String("target_id", string(tgt.ID)),
					zap.String("domain", tgt.Name),
					zap.Int("rules", len(rules)),
				)
			}
			return nil
		},
	}
}

func readSeed(path string) ([]seedTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %q: %w", path, err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return f.Targets, nil
}

func (s seedTarget) toDomain() (domain.Target, []domain.AlertRule, error) {
	if s.Name == "" || s.Owner.Email == "" {
		return domain.Target{}, nil, fmt.Errorf("seed target needs name and owner email: %+v", s)
	}
	expires, err := time.Parse("2006-01-02", s.Expires)
	if err != nil {
		return domain.Target{}, nil, fmt.Errorf("%s: expires: %w", s.Name, err)
	}
	tgt := domain.Target{
		Name:      s.Name,
		Owner:     domain.Owner{Name: s.Owner.Name, Email: s.Owner.Email, Phone: s.Owner.Phone},
		ExpiresAt: expires.UTC(),
		Status:    domain.StatusActive,
	}
	rules := make([]domain.AlertRule, 0, len(s.Alerts))
	for _, r := range s.Alerts {
		rule := domain.AlertRule{
			Type:             domain.AlertType(r.Type),
			DaysBeforeExpiry: r.Days,
			EmailEnabled:     r.Email,
			SMSEnabled:       r.SMS,
		}
		// ssl_invalid and domain_downtime ignore the threshold, but storage
		// still requires one in [1,365].
		if rule.DaysBeforeExpiry == 0 && !rule.Type.UsesThreshold() {
			rule.DaysBeforeExpiry = 1
		}
		if err := rule.CheckDefinition(); err != nil {
			return domain.Target{}, nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		rules = append(rules, rule)
	}
	return tgt, rules, nil
}
