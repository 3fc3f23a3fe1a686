package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"orienta/internal/config"
	"orienta/internal/database"
	"orienta/internal/logger"
	"orienta/internal/repository"
	"orienta/internal/service"
)

func setupLogger(c *cli.Context) {
	logger.Setup(logger.Config{Level: c.String("log-level")})
}

func readDefinition(path string) (*service.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := service.ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func load(c *cli.Context) error {
	setupLogger(c)

	def, err := readDefinition(c.String("file"))
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	questionnaireRepo := repository.NewQuestionnaireRepository(db.DB)
	versionRepo := repository.NewVersionRepository(db.DB)
	structureRepo := repository.NewStructureRepository(db.DB)
	responseRepo := repository.NewResponseRepository(db.DB)

	importer := service.NewImportService(
		service.NewQuestionnaireService(db.DB, questionnaireRepo, versionRepo, responseRepo),
		service.NewVersionService(db.DB, questionnaireRepo, versionRepo, structureRepo, responseRepo),
		service.NewStructureService(db.DB, questionnaireRepo, versionRepo, structureRepo, responseRepo),
	)

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := importer.Import(ctx, def, service.ImportOptions{
		Publish: c.Bool("publish"),
		Primary: c.Bool("primary"),
	})
	if err != nil {
		return err
	}

	service.NewAuditService(repository.NewAuditRepository(db.DB)).Log(ctx, service.AuditEntry{
		Action:   service.AuditQuestionnaireImport,
		Resource: fmt.Sprintf("/api/v1/versions/%d", result.Version.ID),
		Details:  "importer " + c.String("file"),
	})

	slog.Info("Definition loaded",
		"code", result.Questionnaire.Code,
		"version_id", result.Version.ID,
		"version", result.Version.Number,
		"status", result.Version.Status,
		"created_questionnaire", result.CreatedQuestionnaire,
		"sections", result.Sections,
		"questions", result.Questions,
	)
	return nil
}
