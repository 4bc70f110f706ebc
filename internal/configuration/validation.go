package configuration

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	seen := map[[2]string]bool{}
	defaults := map[string]int{}
	for _, integration := range c.Integrations {
		key := [2]string{integration.Project, integration.ID}
		if seen[key] {
			return errors.WithStack(&perferrors.ErrInvalidArgument{
				Name:    "integrations",
				Value:   integration.ID,
				Message: "integration id is not unique within project " + integration.Project,
			})
		}
		seen[key] = true
		if integration.Default {
			defaults[integration.Project]++
		}
	}
	for project, n := range defaults {
		if n > 1 {
			return errors.WithStack(&perferrors.ErrInvalidArgument{
				Name:    "integrations",
				Value:   project,
				Message: "project has more than one default integration",
			})
		}
	}
	return nil
}
