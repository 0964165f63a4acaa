package org

import (
	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/presentation/controllers"
	"github.com/os2mo/mora/modules/org/services"
	"github.com/os2mo/mora/pkg/application"
)

type ModuleOptions struct {
	// Repository is the temporal store every read and write goes through.
	Repository lora.Repository
	Services   []services.Option
}

func NewModule(options *ModuleOptions) application.Module {
	return &Module{options: options}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	if m.options == nil || m.options.Repository == nil {
		return errMissingRepository
	}
	app.RegisterServices(
		services.NewOrgService(m.options.Repository, m.options.Services...),
	)
	app.RegisterControllers(
		controllers.NewOrgAPIController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "org"
}
