package prompts

// BuiltinDefinitions returns the prompt set shipped with the server,
// mirroring the scaffolding CLI's command surface.
func BuiltinDefinitions() []*Definition {
	return []*Definition{
		{
			ID:          "create_project",
			Title:       "Create a Flutter project",
			Description: "Guide the assistant through creating a new Flutter project with the fly CLI.",
			Variables: []Variable{
				{Name: "name", Description: "Project name", Required: true},
				{Name: "template", Description: "Project template (minimal, riverpod)"},
				{Name: "organization", Description: "Organization identifier, e.g. com.example"},
			},
			Template: "Create a new Flutter project named {{name}} using the fly CLI. " +
				"Use the {{template}} template and the organization {{organization}}. " +
				"Run `fly create {{name}} --output json` and report the generated structure.",
		},
		{
			ID:          "add_screen",
			Title:       "Add a screen",
			Description: "Guide the assistant through adding a screen to an existing feature module.",
			Variables: []Variable{
				{Name: "name", Description: "Screen name", Required: true},
				{Name: "feature", Description: "Feature module name", Required: true},
				{Name: "type", Description: "Screen type (generic, list, detail, form, settings)"},
			},
			Template: "Add a {{type}} screen named {{name}} to the {{feature}} feature. " +
				"Use `fly add screen {{name}} --feature {{feature}} --output json` and wire up the view model and tests.",
		},
		{
			ID:          "add_service",
			Title:       "Add a service",
			Description: "Guide the assistant through adding a service to an existing feature module.",
			Variables: []Variable{
				{Name: "name", Description: "Service name", Required: true},
				{Name: "feature", Description: "Feature module name", Required: true},
				{Name: "type", Description: "Service type (api, repository, storage, analytics)"},
			},
			Template: "Add a {{type}} service named {{name}} to the {{feature}} feature. " +
				"Use `fly add service {{name}} --feature {{feature}} --output json`, then generate mocks and tests.",
		},
	}
}
