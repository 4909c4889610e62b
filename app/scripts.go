package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/artpar/mongopenter/config"
	"github.com/artpar/mongopenter/core/extension"
	"github.com/artpar/mongopenter/ports"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"
)

// Script is a declarative extension: a list of steps run when an event
// fires.
type Script struct {
	On    string       `yaml:"on"`
	Steps []ScriptStep `yaml:"steps"`
}

// ScriptStep is either a query-checked insert or a database command.
type ScriptStep struct {
	Database   string    `yaml:"database"`
	Collection string    `yaml:"collection"`
	Query      any       `yaml:"query"`
	Insert     any       `yaml:"insert"`
	Command    yaml.Node `yaml:"command"`
}

func (s ScriptStep) isCommand() bool {
	return !s.Command.IsZero()
}

// LoadExtensions instantiates every script named by the setup into reg.
// A name found in the catalog runs its compiled-in factory; anything else
// is read as a script file relative to the setup directory.
func LoadExtensions(setup *config.Setup, catalog extension.Catalog, reg *extension.Registry, logger zerolog.Logger) error {
	if setup == nil {
		return nil
	}
	for _, name := range setup.Scripts {
		found, err := catalog.Load(name, reg)
		if err != nil {
			return err
		}
		if found {
			logger.Debug().Str("script", name).Msg("extension loaded")
			continue
		}

		script, err := LoadScript(setup.ResolvePath(name))
		if errors.Is(err, os.ErrNotExist) {
			return newError(ErrResourceNotFound, "load script "+name, err)
		}
		if err != nil {
			return fmt.Errorf("load script %s: %w", name, err)
		}
		reg.On(script.On, script.Hook(name, logger))
		logger.Debug().Str("script", name).Str("event", script.On).Int("steps", len(script.Steps)).Msg("script loaded")
	}
	return nil
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.On == "" {
		s.On = extension.EventSetupComplete
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("%s: steps[%d]: %w", path, i, err)
		}
	}
	return &s, nil
}

func (s ScriptStep) validate() error {
	if s.Database == "" {
		return errors.New("database is required")
	}
	switch {
	case s.isCommand() && s.Insert != nil:
		return errors.New("step has both command and insert")
	case s.isCommand():
		if s.Command.Kind != yaml.MappingNode || len(s.Command.Content) == 0 {
			return errors.New("command must be a non-empty mapping")
		}
	case s.Insert != nil:
		if s.Collection == "" || s.Query == nil {
			return errors.New("insert requires collection and query")
		}
	default:
		return errors.New("step needs insert or command")
	}
	return nil
}

// Hook returns the extension hook running the script's steps in order.
func (s *Script) Hook(name string, logger zerolog.Logger) extension.Hook {
	steps := s.Steps
	return func(ctx context.Context, conn ports.Conn) error {
		for i, step := range steps {
			if err := step.run(ctx, conn, logger); err != nil {
				return fmt.Errorf("script %s step %d: %w", name, i, err)
			}
		}
		return nil
	}
}

func (s ScriptStep) run(ctx context.Context, conn ports.Conn, logger zerolog.Logger) error {
	db := conn.Database(s.Database)

	if s.isCommand() {
		cmd, err := commandDocument(&s.Command)
		if err != nil {
			return err
		}
		if err := runCommand(ctx, db, cmd); err != nil {
			return err
		}
		logger.Debug().Str("database", s.Database).Str("command", cmd[0].Key).Msg("script command run")
		return nil
	}

	created, err := seedDocument(ctx, db, s.Collection, s.Query, s.Insert)
	if err != nil {
		return err
	}
	logger.Debug().
		Str("collection", s.Database+"."+s.Collection).
		Bool("created", created).
		Msg("script document seeded")
	return nil
}

// commandDocument converts a YAML mapping into a command document.
// Key order is kept since the first key names the command.
func commandDocument(n *yaml.Node) (bson.D, error) {
	v, err := nodeValue(n)
	if err != nil {
		return nil, err
	}
	cmd, ok := v.(bson.D)
	if !ok || len(cmd) == 0 {
		return nil, errors.New("command must be a non-empty mapping")
	}
	return cmd, nil
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		d := make(bson.D, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			d = append(d, bson.E{Key: n.Content[i].Value, Value: v})
		}
		return d, nil
	case yaml.SequenceNode:
		a := make(bson.A, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			a = append(a, v)
		}
		return a, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
