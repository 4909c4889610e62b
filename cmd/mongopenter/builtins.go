package main

import (
	"context"
	"fmt"

	"github.com/artpar/mongopenter/core/extension"
	"github.com/artpar/mongopenter/domain/catalog"
	"github.com/artpar/mongopenter/ports"
	"go.mongodb.org/mongo-driver/bson"
)

// builtinExtensions are the compiled-in extensions a setup may list under
// scripts by name.
var builtinExtensions = extension.Catalog{
	"ping": pingExtension,
}

// pingExtension checks after setup that the deployment still answers.
func pingExtension(r extension.Registrar) error {
	r.On(extension.EventSetupComplete, func(ctx context.Context, conn ports.Conn) error {
		reply, err := conn.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}})
		if err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		return catalog.CommandFailure(reply)
	})
	return nil
}
