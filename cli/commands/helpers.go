package commands

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/satishbabariya/prisma-go-client/internal/config"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/engine/httpengine"
	"github.com/satishbabariya/prisma-go-client/runtime/engine/memory"
	"github.com/satishbabariya/prisma-go-client/runtime/engine/sqlengine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
)

// getSchemaPath returns the schema path from args, the flag or the config,
// relative to the project directory.
func getSchemaPath(flagValue string, args []string) string {
	path := cfg.SchemaPath
	if flagValue != "" {
		path = flagValue
	}
	if len(args) > 0 {
		path = args[0]
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}

func loadSchema(path string) (*schema.Datamodel, error) {
	f, err := config.AppFs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open schema")
	}
	defer f.Close()
	return schema.Parse(path, f)
}

// connectionInfo resolves provider and url from the config, falling back to
// the schema datasource.
func connectionInfo(c *config.Config, dm *schema.Datamodel) (string, string) {
	provider, url := c.Provider, c.DatabaseURL
	if ds, ok := dm.Datasource(); ok {
		if p, _ := ds.Values["provider"].(string); provider == "" {
			provider = p
		}
		if u, _ := ds.Values["url"].(string); url == "" {
			url = u
		}
	}
	if provider == "" {
		provider = detectProvider(url)
	}
	return provider, url
}

func detectProvider(connStr string) string {
	switch {
	case strings.HasPrefix(connStr, "postgres://"), strings.HasPrefix(connStr, "postgresql://"):
		return "postgresql"
	case strings.HasPrefix(connStr, "mysql://"), strings.Contains(connStr, "@tcp("):
		return "mysql"
	case strings.HasPrefix(connStr, "file:"), strings.HasSuffix(connStr, ".db"):
		return "sqlite"
	default:
		return ""
	}
}

// openEngine builds the engine selected by the configuration.
func openEngine(c *config.Config, dm *schema.Datamodel) (engine.Engine, error) {
	switch c.Engine {
	case config.EngineMemory:
		e, err := memory.New(dm, memory.WithMaxTransactions(c.MaxTransactions))
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EngineSQL:
		provider, url := connectionInfo(c, dm)
		if url == "" {
			return nil, errors.New("no database url: set DATABASE_URL or database_url")
		}
		e, err := sqlengine.Open(provider, strings.TrimPrefix(url, "sqlite://"), dm, sqlengine.WithMaxOpenConns(c.MaxOpenConns))
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EngineHTTP:
		e, err := httpengine.New(c.EngineURL)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, errors.Errorf("unknown engine %q", c.Engine)
	}
}
