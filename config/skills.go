package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/aschepis/backscratcher/skillloop/skill"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Skills is the configured execution surface together with the catalog
// advertised to the model.
type Skills struct {
	Executor skill.Executor
	Catalog  *skill.Catalog
	close    func() error
}

// Close releases the executor's connections.
func (s *Skills) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewSkills builds the executor named by the config. registry serves the
// local executor and is ignored otherwise. Tools declared in the config form
// the catalog; without them the catalog is fetched from the remote surface.
func (c *Config) NewSkills(ctx context.Context, registry *skill.Registry, logger zerolog.Logger) (*Skills, error) {
	var (
		executor skill.Executor
		remote   []llm.ToolSpec
		closeFn  func() error
	)

	switch c.Executor {
	case ExecutorLocal:
		if registry == nil {
			return nil, errors.New("local executor requires a skill registry")
		}
		executor = registry

	case ExecutorHTTP:
		sessionID := c.SkillService.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		var opts []skill.HTTPOption
		if c.SkillService.AuthToken != "" {
			opts = append(opts, skill.WithAuthToken(c.SkillService.AuthToken))
		}
		httpExec, err := skill.NewHTTPExecutor(c.SkillService.URL, sessionID, logger, opts...)
		if err != nil {
			return nil, err
		}
		executor = httpExec
		if len(c.Tools) == 0 {
			if remote, err = httpExec.FetchTools(ctx); err != nil {
				return nil, fmt.Errorf("failed to fetch skill catalog: %w", err)
			}
		}

	case ExecutorMCP:
		var (
			mcpExec *skill.MCPExecutor
			err     error
		)
		if c.MCPServer.URL != "" {
			mcpExec, err = skill.NewMCPHTTPExecutor(ctx, c.MCPServer.URL, logger)
		} else {
			mcpExec, err = skill.NewMCPStdioExecutor(ctx, c.MCPServer.Command, c.MCPServer.Args, c.MCPServer.Env, logger)
		}
		if err != nil {
			return nil, err
		}
		// Listing also registers the safe-name mapping used by Execute.
		listed, err := mcpExec.ListTools(ctx)
		if err != nil {
			_ = mcpExec.Close()
			return nil, err
		}
		if len(c.Tools) == 0 {
			remote = listed
		}
		executor = mcpExec
		closeFn = mcpExec.Close

	default:
		return nil, fmt.Errorf("unknown executor %q", c.Executor)
	}

	specs := c.Tools
	if len(specs) == 0 {
		specs = remote
	}
	catalog, err := skill.NewCatalog(specs...)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, fmt.Errorf("invalid tool catalog: %w", err)
	}

	logger.Info().Str("executor", c.Executor).Strs("tools", catalog.Names()).Msg("Skills ready")
	return &Skills{Executor: executor, Catalog: catalog, close: closeFn}, nil
}
