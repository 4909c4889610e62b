package app

import (
	"context"

	"github.com/artpar/mongopenter/adapters/metrics"
	"github.com/artpar/mongopenter/domain/catalog"
	"github.com/artpar/mongopenter/domain/spec"
	"github.com/artpar/mongopenter/ports"
)

// createDatabases grants the global user and then the per-database user on
// every declared database. A failed grant is logged and recorded on the
// report; it neither stops the sibling grant nor fails the task.
func (p *Provisioner) createDatabases(ctx context.Context, tr *taskRun) error {
	for _, dbSpec := range p.plan.Databases {
		db := tr.conn.Database(dbSpec.Name)

		for _, creds := range p.grantsFor(dbSpec) {
			created, err := grant(ctx, db, creds)
			if err != nil {
				gerr := newError(ErrCreate, "grant "+creds.User+" on "+dbSpec.Name, err)
				tr.logger.Error().
					Err(err).
					Str("database", dbSpec.Name).
					Str("user", creds.User).
					Msg("failed to add user to database")
				tr.report.GrantErrors = append(tr.report.GrantErrors, gerr)
				p.metrics.GrantFailures.WithLabelValues(dbSpec.Name).Inc()
				p.metrics.Item(TaskCreateDatabases, metrics.OutcomeFailed)
				continue
			}
			p.count(tr, TaskCreateDatabases, created)
			tr.logger.Debug().
				Str("database", dbSpec.Name).
				Str("user", creds.User).
				Bool("created", created).
				Msg("user granted")
		}
	}
	return nil
}

// grantsFor returns the global auth followed by the database auth.
func (p *Provisioner) grantsFor(db spec.DatabaseSpec) []spec.Credentials {
	var grants []spec.Credentials
	if a := p.setup.Auth; a != nil {
		grants = append(grants, spec.Credentials{User: a.User, Password: a.Password})
	}
	if db.Auth != nil {
		grants = append(grants, *db.Auth)
	}
	return grants
}

// grant creates the user unless it already exists.
func grant(ctx context.Context, db ports.Database, creds spec.Credentials) (bool, error) {
	exists, err := db.UserExists(ctx, creds.User)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := db.CreateUser(ctx, creds.User, creds.Password); err != nil {
		return false, err
	}
	return true, nil
}

// createCollections creates every collection whose qualified name is absent
// from its database catalog.
func (p *Provisioner) createCollections(ctx context.Context, tr *taskRun) error {
	for _, c := range p.plan.Collections {
		db := tr.conn.Database(c.Database)

		entries, err := db.ListCollections(ctx)
		if err != nil {
			p.metrics.Item(TaskCreateCollections, metrics.OutcomeFailed)
			return newError(ErrCatalogQuery, "list collections of "+c.Database, err)
		}

		if catalog.Contains(catalog.QualifiedNames(c.Database, entries), c.Qualified()) {
			p.count(tr, TaskCreateCollections, false)
			tr.logger.Debug().Str("collection", c.Qualified()).Msg("collection exists")
			continue
		}

		if err := db.CreateCollection(ctx, c.Name); err != nil {
			tr.logger.Error().Err(err).Str("collection", c.Qualified()).Msg("failed to create collection")
			p.metrics.Item(TaskCreateCollections, metrics.OutcomeFailed)
			return newError(ErrCreate, "create collection "+c.Qualified(), err)
		}
		p.count(tr, TaskCreateCollections, true)
		tr.logger.Info().Str("collection", c.Qualified()).Msg("collection created")
	}
	return nil
}

// createDocuments inserts every document whose query matches nothing.
func (p *Provisioner) createDocuments(ctx context.Context, tr *taskRun) error {
	for _, d := range p.plan.Documents {
		created, err := seedDocument(ctx, tr.conn.Database(d.Database), d.Collection, d.Query, d.Body)
		if err != nil {
			tr.logger.Error().
				Err(err).
				Str("collection", d.Namespace()).
				Interface("query", d.Query).
				Msg("failed to create document")
			p.metrics.Item(TaskCreateDocuments, metrics.OutcomeFailed)
			return newError(ErrCreate, "create document in "+d.Namespace(), err)
		}
		p.count(tr, TaskCreateDocuments, created)
	}
	return nil
}

// seedDocument inserts doc unless a document matching query exists.
func seedDocument(ctx context.Context, db ports.Database, collection string, query, doc any) (bool, error) {
	_, found, err := db.FindOne(ctx, collection, query)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if err := db.InsertOne(ctx, collection, doc); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provisioner) count(tr *taskRun, task string, created bool) {
	if created {
		tr.task.Created++
		p.metrics.Item(task, metrics.OutcomeCreated)
		return
	}
	tr.task.Skipped++
	p.metrics.Item(task, metrics.OutcomeSkipped)
}
