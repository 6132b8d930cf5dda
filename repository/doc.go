// Package repository binds a generic repository to one bun model type and
// exposes a context-aware facade (Repository) and a blocking facade
// (SyncRepository) over the query builder.
//
// A repository is declared once, usually as a package level variable:
//
//	var widgets = repository.MustDefine[Widget](repository.DefaultConfig().With(func(c *repository.Config) {
//		c.IDField = "id"
//		c.DisableField = "disabled_at"
//	}))
//
// and instantiated per unit of work:
//
//	repo, err := widgets.New(session)
package repository
