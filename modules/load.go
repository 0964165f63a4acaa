package modules

import (
	"github.com/os2mo/mora/modules/org"
	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/services"
	"github.com/os2mo/mora/pkg/application"
)

// BuiltInModules returns the modules served on top of repo.
func BuiltInModules(repo lora.Repository, opts ...services.Option) []application.Module {
	return []application.Module{
		org.NewModule(&org.ModuleOptions{
			Repository: repo,
			Services:   opts,
		}),
	}
}
