package importer

import (
	"os"

	"github.com/go-faster/errors"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/progress"
	"github.com/iota-uz/assetdesk/modules/importer/presentation/controllers"
	"github.com/iota-uz/assetdesk/modules/importer/services"
	"github.com/iota-uz/assetdesk/pkg/application"
	"github.com/iota-uz/assetdesk/pkg/configuration"
)

type ModuleOptions struct {
	Backend      backend.Backend
	Statuses     progress.Store
	Import       configuration.ImportOptions
	TenantHeader string
}

func NewModule(opts *ModuleOptions) *Module {
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
	service *services.ImportService
}

func (m *Module) Register(app application.Application) error {
	if m.options.Backend == nil {
		return errors.New("importer: backend is required")
	}
	statuses := m.options.Statuses
	if statuses == nil {
		statuses = progress.NewMemoryStore(m.options.Import.ProgressTTL)
	}

	registry, err := LoadRegistry(m.options.Import.SchemaFile)
	if err != nil {
		return err
	}

	log := app.Logger().WithField("module", m.Name())
	engine := services.NewEngine(
		m.options.Backend,
		services.WithLogger(log),
		services.WithDecoder(services.NewDecoder(m.options.Import.MaxFileSize)),
	)
	m.service = services.NewImportService(
		engine,
		registry,
		app.EventPublisher(),
		services.OptionsFromConfig(m.options.Import),
		log,
	)
	progress.Subscribe(app.EventPublisher(), statuses, log)

	app.RegisterServices(m.service)
	app.RegisterControllers(
		controllers.NewImportController(m.service, statuses, controllers.ImportControllerOptions{
			TenantHeader: m.options.TenantHeader,
			MaxFileSize:  m.options.Import.MaxFileSize,
		}),
	)
	return nil
}

// Service is available after Register.
func (m *Module) Service() *services.ImportService {
	return m.service
}

func (m *Module) Name() string {
	return "importer"
}

// LoadRegistry returns the built-in descriptors with the overrides in path applied. An empty path
// means no overrides.
func LoadRegistry(path string) (*schema.Registry, error) {
	registry := schema.DefaultRegistry()
	if path == "" {
		return registry, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read schema overrides")
	}
	if err := registry.ApplyOverrides(data); err != nil {
		return nil, errors.Wrapf(err, "apply schema overrides from %s", path)
	}
	return registry, nil
}
