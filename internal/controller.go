package internal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/crowdchess/internal/account"
	"github.com/dcrodman/crowdchess/internal/archive"
	"github.com/dcrodman/crowdchess/internal/core"
	"github.com/dcrodman/crowdchess/internal/core/data"
	"github.com/dcrodman/crowdchess/internal/core/debug"
	"github.com/dcrodman/crowdchess/internal/rules"
	"github.com/dcrodman/crowdchess/internal/scheduler"
	"github.com/dcrodman/crowdchess/internal/server"
)

// Controller is the main entrypoint for crowdchess. It's responsible for
// initializing any shared resources (such as database and logging), wiring the
// game components together, and running the server until it stops.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	db     *gorm.DB
	server *server.Server
}

func (c *Controller) Start(ctx context.Context) error {
	defer c.Shutdown()

	var err error
	// Set up the logger, which will be used by every component.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.PprofEnabled {
		debug.StartUtilities(c.logger, c.Config.Debugging.PprofPort)
	}

	if err := c.openDatabase(); err != nil {
		return err
	}

	engine := rules.Chess{}
	accounts := account.NewStore(c.db, c.logger)
	gameArchive := &archive.Archive{
		DB:       c.db,
		Logger:   c.logger,
		Engine:   engine,
		Accounts: accounts,
		PGNDir:   c.Config.QualifiedPath("archive"),
	}

	c.server = &server.Server{
		Config:    c.Config,
		Logger:    c.logger,
		Accounts:  accounts,
		Archive:   gameArchive,
		Engine:    engine,
		Scheduler: scheduler.New(c.logger, gameArchive),
	}
	if err := c.server.Init(); err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}

	c.server.Run(ctx)
	return nil
}

func (c *Controller) openDatabase() error {
	dataSource := c.Config.DatabaseURL()
	if strings.EqualFold(c.Config.Database.Engine, "sqlite") {
		if err := os.MkdirAll(c.Config.DataDir, 0750); err != nil {
			return fmt.Errorf("error creating data directory: %w", err)
		}
		dataSource = c.Config.QualifiedPath(c.Config.Database.Filename)
	}

	dialector, err := data.Dialector(c.Config.Database.Engine, dataSource)
	if err != nil {
		return err
	}
	c.db, err = data.Initialize(dialector, c.Config.Debugging.DatabaseLoggingEnabled)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	return nil
}

func (c *Controller) Shutdown() {
	if c.db == nil {
		return
	}
	if err := data.Shutdown(c.db); err != nil && c.logger != nil {
		c.logger.Errorf("error closing database: %v", err)
	}
	c.db = nil
}
