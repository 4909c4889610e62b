package app

import (
	"context"
	"fmt"

	"github.com/artpar/mongopenter/adapters/metrics"
	"github.com/artpar/mongopenter/domain/catalog"
	"github.com/artpar/mongopenter/domain/spec"
	"github.com/artpar/mongopenter/ports"
	"go.mongodb.org/mongo-driver/bson"
)

// Cluster metadata locations.
const (
	adminDB          = "admin"
	configDB         = "config"
	shardsCollection = "shards"
	tagsCollection   = "tags"
)

// createShards registers every shard host with addShard.
func (p *Provisioner) createShards(ctx context.Context, tr *taskRun) error {
	admin := tr.conn.Database(adminDB)
	for _, host := range p.plan.Shards.Hosts {
		if err := runCommand(ctx, admin, bson.D{{Key: "addShard", Value: host}}); err != nil {
			tr.logger.Error().Err(err).Str("host", host).Msg("failed to add shard")
			p.metrics.Item(TaskCreateShards, metrics.OutcomeFailed)
			return newError(ErrCommand, "addShard "+host, err)
		}
		p.count(tr, TaskCreateShards, true)
		tr.logger.Info().Str("host", host).Msg("shard added")
	}
	return nil
}

// addShards tags shards, enables sharding, shards the collection on the
// configured key and upserts one tag range per key mapping.
func (p *Provisioner) addShards(ctx context.Context, tr *taskRun) error {
	cfg := *p.plan.ShardTags
	ns := cfg.Namespace()
	admin := tr.conn.Database(adminDB)
	clusterConfig := tr.conn.Database(configDB)

	for _, t := range cfg.Tags {
		if err := tagShard(ctx, clusterConfig, t); err != nil {
			p.metrics.Item(TaskAddShards, metrics.OutcomeFailed)
			return err
		}
		tr.logger.Debug().Str("shard", t.Shard).Str("tag", t.Tag).Msg("shard tagged")
	}

	if err := runCommand(ctx, admin, bson.D{{Key: "enableSharding", Value: cfg.ShardDB}}); err != nil {
		p.metrics.Item(TaskAddShards, metrics.OutcomeFailed)
		return newError(ErrCommand, "enableSharding "+cfg.ShardDB, err)
	}

	shardCmd := bson.D{
		{Key: "shardCollection", Value: ns},
		{Key: "key", Value: bson.D{{Key: cfg.ShardKey, Value: 1}}},
	}
	if err := runCommand(ctx, admin, shardCmd); err != nil {
		p.metrics.Item(TaskAddShards, metrics.OutcomeFailed)
		return newError(ErrCommand, "shardCollection "+ns, err)
	}
	tr.logger.Info().Str("namespace", ns).Str("key", cfg.ShardKey).Msg("collection sharded")

	for _, r := range cfg.KeyMap {
		filter, update := tagRange(ns, cfg.ShardKey, r.Tag)
		if _, err := clusterConfig.UpdateOne(ctx, tagsCollection, filter, update, true); err != nil {
			tr.logger.Error().Err(err).Str("host", r.Host).Str("tag", r.Tag).Msg("failed to add tag range")
			p.metrics.Item(TaskAddShards, metrics.OutcomeFailed)
			return newError(ErrCreate, "tag range "+r.Tag+" on "+ns, err)
		}
		p.count(tr, TaskAddShards, true)
	}
	return nil
}

// tagShard adds a tag to a registered shard's tag set.
func tagShard(ctx context.Context, clusterConfig ports.Database, t spec.ShardTag) error {
	filter := bson.D{{Key: "_id", Value: t.Shard}}

	_, found, err := clusterConfig.FindOne(ctx, shardsCollection, filter)
	if err != nil {
		return newError(ErrCatalogQuery, "find shard "+t.Shard, err)
	}
	if !found {
		return newError(ErrCommand, "tag shard "+t.Shard, fmt.Errorf("shard %q is not registered", t.Shard))
	}

	update := bson.D{{Key: "$addToSet", Value: bson.D{{Key: "tags", Value: t.Tag}}}}
	if _, err := clusterConfig.UpdateOne(ctx, shardsCollection, filter, update, false); err != nil {
		return newError(ErrCommand, "tag shard "+t.Shard, err)
	}
	return nil
}

// tagRange builds the upsert keyed by (ns, min) for a tag.
func tagRange(ns, key, tag string) (filter, update bson.D) {
	lower := bson.D{{Key: key, Value: tag}}
	upper := bson.D{{Key: key, Value: spec.RangeMax(tag)}}
	filter = bson.D{{Key: "ns", Value: ns}, {Key: "min", Value: lower}}
	update = bson.D{{Key: "$set", Value: bson.D{
		{Key: "ns", Value: ns},
		{Key: "min", Value: lower},
		{Key: "max", Value: upper},
		{Key: "tag", Value: tag},
	}}}
	return filter, update
}

// runCommand runs cmd and fails on a transport error or an embedded errmsg.
func runCommand(ctx context.Context, db ports.Database, cmd bson.D) error {
	reply, err := db.RunCommand(ctx, cmd)
	if err != nil {
		return err
	}
	return catalog.CommandFailure(reply)
}
