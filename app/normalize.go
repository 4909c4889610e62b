package app

import (
	"fmt"

	"github.com/artpar/mongopenter/config"
	"github.com/artpar/mongopenter/domain/spec"
)

// Normalize flattens a setup into a provisioning plan. List order follows
// declaration order; lists with no entries are nil.
func Normalize(setup *config.Setup, r *Resolver) (spec.Plan, error) {
	var plan spec.Plan
	if setup == nil {
		return plan, nil
	}

	for _, db := range setup.Databases {
		plan.Databases = append(plan.Databases, databaseSpec(db))

		for _, c := range db.Collections {
			plan.Collections = append(plan.Collections, spec.CollectionSpec{Database: db.Name, Name: c.Name})

			for i, entry := range c.Docs {
				resolved, err := r.Resolve(entry)
				if err != nil {
					return spec.Plan{}, fmt.Errorf("%s.%s docs[%d]: %w", db.Name, c.Name, i, err)
				}
				plan.Documents = append(plan.Documents, spec.DocumentSpec{
					Database:   db.Name,
					Collection: c.Name,
					Query:      resolved.Query,
					Body:       resolved.Doc,
				})
			}
		}
	}

	if sh := setup.Shards; sh != nil {
		if len(sh.Hosts) > 0 {
			plan.Shards = &spec.ShardSpec{Hosts: append([]string(nil), sh.Hosts...)}
		}
		tags := shardTagConfig(sh)
		if tags.Enabled() {
			plan.ShardTags = &tags
		}
	}

	return plan, nil
}

func databaseSpec(db config.Database) spec.DatabaseSpec {
	s := spec.DatabaseSpec{Name: db.Name, Options: db.Options}
	if db.Auth != nil {
		s.Auth = &spec.Credentials{User: db.Auth.User, Password: db.Auth.Password}
	}
	return s
}

func shardTagConfig(sh *config.Shards) spec.ShardTagConfig {
	c := spec.ShardTagConfig{
		ShardDB:         sh.ShardDB,
		ShardCollection: sh.ShardCollection,
		ShardKey:        sh.ShardKey,
	}
	for _, t := range sh.Tags {
		c.Tags = append(c.Tags, spec.ShardTag{Shard: t.Shard, Tag: t.Tag})
	}
	for _, k := range sh.KeyMap {
		c.KeyMap = append(c.KeyMap, spec.KeyRange{Host: k.Host, Tag: k.Tag})
	}
	return c
}
