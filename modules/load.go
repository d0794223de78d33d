package modules

import (
	"github.com/iota-uz/assetdesk/pkg/application"
)

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
